//go:build !nomidi

package plugin

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	Bt "github.com/maroda/batteria/types"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// General MIDI percussion is channel 10, 0-indexed 9 on the wire
const gmPercussionChannel = 9

// gateTime is how long a triggered drum note is held
const gateTime = 100 * time.Millisecond

// padNotes maps drum pads to General MIDI percussion keys.
var padNotes = map[string]uint8{
	"kick":   36, // Bass Drum 1
	"snare":  38, // Acoustic Snare
	"hihat":  42, // Closed Hi-Hat
	"tom":    45, // Low Tom
	"cymbal": 49, // Crash Cymbal 1
}

// noteFallback sounds for pads with no table entry
const noteFallback = 38

type MIDIOutput struct {
	Port drivers.Out
	Send func(msg midi.Message) error
	WG   sync.WaitGroup
}

func NewMIDIOutput(port int) (*MIDIOutput, error) {
	out, err := midi.OutPort(port)
	if err != nil {
		slog.Error("Error opening MIDI port", slog.Int("port", port))
		return nil, fmt.Errorf("error opening MIDI port: %q", err)
	}

	send, err := midi.SendTo(out)
	if err != nil {
		slog.Error("Error sending to MIDI port", slog.Int("port", port))
		return nil, fmt.Errorf("error sending to MIDI port: %q", err)
	}

	initmidi := &MIDIOutput{
		Port: out,
		Send: send,
		WG:   sync.WaitGroup{},
	}

	return initmidi, nil
}

func (mo *MIDIOutput) SendNoteOnMIDI(midic, midin, midiv uint8) error {
	return mo.Send(midi.NoteOn(midic, midin, midiv))
}

func (mo *MIDIOutput) SendNoteOffMIDI(midic, midin uint8) error {
	return mo.Send(midi.NoteOff(midic, midin))
}

// VelocityToMIDI scales the sensor's g-force reading into 1..127.
// The sensor saturates around 16g on a hard strike.
func VelocityToMIDI(velocity float64) uint8 {
	v := int(velocity / 16.0 * 127.0)
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

// WriteHit triggers the percussion note for the hit's pad.
// The note is gated off asynchronously so the impact path
// never waits on sound.
func (mo *MIDIOutput) WriteHit(hit *Bt.HitResult, velocity float64) error {
	note, ok := padNotes[hit.DrumPad]
	if !ok {
		note = noteFallback
	}
	midiv := VelocityToMIDI(velocity)

	mo.WG.Add(1)
	go func() {
		defer mo.WG.Done()
		if err := mo.SendNoteOnMIDI(gmPercussionChannel, note, midiv); err != nil {
			slog.Error("NoteOn event failed")
			return
		}
		time.Sleep(gateTime)
		if err := mo.SendNoteOffMIDI(gmPercussionChannel, note); err != nil {
			slog.Error("NoteOff event failed, attempting Flush")
			mo.Flush()
		}
	}()

	return nil
}

func (mo *MIDIOutput) Flush() error {
	return mo.Send(midi.ControlChange(gmPercussionChannel, midi.AllNotesOff, midi.Off))
}

func (mo *MIDIOutput) Close() error {
	mo.WG.Wait()

	if mo.Port != nil {
		mo.Port.Close()
		midi.CloseDriver()
	}
	return nil
}

func (mo *MIDIOutput) Type() string { return "MIDI" }

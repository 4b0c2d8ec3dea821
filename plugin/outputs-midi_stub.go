//go:build nomidi

package plugin

import (
	"fmt"

	Bt "github.com/maroda/batteria/types"
)

type MIDIOutput struct{}

func NewMIDIOutput(port int) (*MIDIOutput, error) {
	return &MIDIOutput{}, nil
}

func (m *MIDIOutput) WriteHit(hit *Bt.HitResult, velocity float64) error {
	return fmt.Errorf("MIDI support not compiled in this build")
}

func (m *MIDIOutput) Flush() error { return nil }
func (m *MIDIOutput) Close() error { return nil }
func (m *MIDIOutput) Type() string { return "midi-disabled" }

package batteria

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	Bt "github.com/maroda/batteria/types"
)

// SensorMessage is the raw wire shape from the percussion sensor.
// Pointer fields distinguish absent from zero.
type SensorMessage struct {
	Type      string   `json:"type"`
	Velocity  *float64 `json:"velocity,omitempty"`
	Magnitude *float64 `json:"magnitude,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // epoch ms
	ID        int64    `json:"id,omitempty"`
}

// SensorResponse is the tagged union of everything the ingestion
// layer can answer with. The transport marshals it as-is.
type SensorResponse interface {
	ResponseType() string
}

type Pong struct {
	Type       string `json:"type"`
	ServerTime int64  `json:"server_time"` // epoch ms
}

func (p Pong) ResponseType() string { return p.Type }

type ImpactAck struct {
	Type     string       `json:"type"`
	Status   string       `json:"status,omitempty"`
	Pad      string       `json:"pad,omitempty"`
	Material string       `json:"material,omitempty"`
	Position *Bt.Position `json:"position,omitempty"`
	Velocity float64      `json:"velocity,omitempty"`
}

func (a ImpactAck) ResponseType() string { return a.Type }

type CalibrationAck struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

func (c CalibrationAck) ResponseType() string { return c.Type }

type ProtocolError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e ProtocolError) ResponseType() string { return e.Type }

// ImpactOutcome is what the impact handler hands back for the ack:
// the resolved pad, the struck surface material, its anchor position,
// and the echoed velocity.
type ImpactOutcome struct {
	Pad      string
	Material string
	Position Bt.Position
	Velocity float64
}

// ImpactHandler processes one impact event end to end.
// It is a directly-awaited call: the transport goroutine blocks on it,
// bounded by the context the transport supplies.
// A nil outcome with a nil error means "processed, nothing to report".
type ImpactHandler interface {
	HandleImpact(ctx context.Context, ev Bt.ImpactEvent) (*ImpactOutcome, error)
}

// SensorIngestion is the protocol state machine over inbound sensor
// messages. One connection is active at a time; a newcomer REPLACES
// the current one. The hardware is a single physical sensor and after
// a power-cycle it reconnects before the dead TCP peer is noticed,
// so rejecting the newcomer would lock out the only real device.
type SensorIngestion struct {
	mu       sync.Mutex
	activeID string // "" when disconnected
	seq      int64
	handler  ImpactHandler
	onDisco  []func(id string)
	clock    func() int64 // epoch ms
}

func NewSensorIngestion(handler ImpactHandler) *SensorIngestion {
	return &SensorIngestion{
		handler: handler,
		clock:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Connect records id as the single active client.
// The replaced previous client id is returned, "" when there was none.
func (si *SensorIngestion) Connect(id string) string {
	si.mu.Lock()
	prev := si.activeID
	si.activeID = id
	si.mu.Unlock()

	if prev != "" {
		slog.Warn("Sensor reconnected, replacing active client",
			slog.String("old", prev), slog.String("new", id))
	} else {
		slog.Info("Sensor connected", slog.String("client", id))
	}
	return prev
}

// Disconnect clears the active-client slot and notifies observers.
// A stale id (already replaced) is ignored.
func (si *SensorIngestion) Disconnect(id string) {
	si.mu.Lock()
	if si.activeID != id {
		si.mu.Unlock()
		return
	}
	si.activeID = ""
	observers := append([]func(string){}, si.onDisco...)
	si.mu.Unlock()

	slog.Info("Sensor disconnected", slog.String("client", id))
	for _, fn := range observers {
		fn(id)
	}
}

// AddDisconnectObserver registers fn to run on transport disconnect.
func (si *SensorIngestion) AddDisconnectObserver(fn func(id string)) {
	si.mu.Lock()
	si.onDisco = append(si.onDisco, fn)
	si.mu.Unlock()
}

func (si *SensorIngestion) IsConnected() bool {
	si.mu.Lock()
	defer si.mu.Unlock()
	return si.activeID != ""
}

// nextSeq keeps event sequence ids monotonic when the sensor omits them.
func (si *SensorIngestion) nextSeq(reported int64) int64 {
	si.mu.Lock()
	defer si.mu.Unlock()
	if reported > si.seq {
		si.seq = reported
		return reported
	}
	si.seq++
	return si.seq
}

// HandleMessage dispatches one raw sensor message and always answers.
// No input terminates the connection: malformed payloads and unknown
// types get a structured error response and the transport stays open.
func (si *SensorIngestion) HandleMessage(ctx context.Context, raw []byte) SensorResponse {
	var msg SensorMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("Failed to parse sensor message", slog.Any("Error", err))
		return ProtocolError{Type: "error", Message: "invalid message format"}
	}

	switch {
	case msg.Type == "ping":
		return Pong{Type: "pong", ServerTime: si.clock()}

	case msg.Type == "impact" || msg.Velocity != nil:
		return si.handleImpact(ctx, msg)

	case msg.Type == "calibration":
		return CalibrationAck{Type: "calibration_ack", Status: "not_implemented"}

	default:
		return ProtocolError{
			Type:    "error",
			Message: fmt.Sprintf("unknown message type: %q", msg.Type),
		}
	}
}

func (si *SensorIngestion) handleImpact(ctx context.Context, msg SensorMessage) SensorResponse {
	var velocity float64
	if msg.Velocity != nil {
		velocity = *msg.Velocity
	}
	if velocity < 0 {
		return ProtocolError{Type: "error", Message: "negative velocity"}
	}

	// the sensor reports magnitude as 0.1 * velocity; derive when absent
	magnitude := velocity * 0.1
	if msg.Magnitude != nil {
		magnitude = *msg.Magnitude
	}

	ts := msg.Timestamp
	if ts == 0 {
		ts = si.clock()
	}

	ev := Bt.ImpactEvent{
		Seq:       si.nextSeq(msg.ID),
		Velocity:  velocity,
		Magnitude: magnitude,
		Timestamp: ts,
	}

	if si.handler == nil {
		return ImpactAck{Type: "ack", Status: "received"}
	}

	// awaited directly, without the ingestion lock held:
	// the handler blocks on the vision oracle
	outcome, err := si.handler.HandleImpact(ctx, ev)
	if err != nil {
		slog.Warn("Impact handler failed", slog.Any("Error", err))
		return ImpactAck{Type: "ack", Status: "received"}
	}
	if outcome == nil {
		return ImpactAck{Type: "ack", Status: "received"}
	}

	pos := outcome.Position
	return ImpactAck{
		Type:     "ack",
		Pad:      outcome.Pad,
		Material: outcome.Material,
		Position: &pos,
		Velocity: outcome.Velocity,
	}
}

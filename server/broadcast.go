package batteria

import (
	"log/slog"
	"sync"

	Bt "github.com/maroda/batteria/types"
)

// Monitor event discriminants.
const (
	EventImpactProcessed    = "impact_processed"
	EventSensorConnected    = "sensor_connected"
	EventSensorDisconnected = "sensor_disconnected"
)

// MonitorEvent is the wire shape fanned out to monitor clients.
type MonitorEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// XY is the pixel-position wire shape.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HitPayload is the published form of a HitResult.
type HitPayload struct {
	DrumPad    string     `json:"drum_pad"`
	Position   XY         `json:"position"`
	Confidence float64    `json:"confidence"`
	SegmentID  int        `json:"segment_id"`
	Bbox       [4]float64 `json:"bbox"`
	Timestamp  int64      `json:"timestamp"`
	StickPos   *XY        `json:"drumstick_position,omitempty"`
}

func NewHitPayload(hr Bt.HitResult) HitPayload {
	hp := HitPayload{
		DrumPad:    hr.DrumPad,
		Position:   XY{X: hr.Position.X, Y: hr.Position.Y},
		Confidence: hr.Confidence,
		SegmentID:  hr.SegmentID,
		Bbox:       hr.Bbox,
		Timestamp:  hr.Timestamp,
	}
	if hr.StickPos != nil {
		hp.StickPos = &XY{X: hr.StickPos.X, Y: hr.StickPos.Y}
	}
	return hp
}

// Sink is one registered monitor client.
// Send is allowed to block briefly (transport write deadline);
// an error marks the sink broken and it gets pruned.
type Sink interface {
	ID() string
	Send(ev MonitorEvent) error
}

// EventBroadcaster fans derived results out to passive observers.
// A failing sink never affects delivery to the others and never
// raises to the publisher.
type EventBroadcaster struct {
	mu    sync.Mutex
	sinks map[string]Sink

	// OnPrune, when set, runs once per sink removed after a failed send.
	OnPrune func(id string)
}

func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		sinks: make(map[string]Sink),
	}
}

// Register adds a sink. Re-registering the same ID is a no-op swap.
func (eb *EventBroadcaster) Register(s Sink) {
	eb.mu.Lock()
	eb.sinks[s.ID()] = s
	eb.mu.Unlock()

	slog.Info("Monitor sink registered", slog.String("sink", s.ID()))
}

// Unregister removes a sink. Unknown IDs are ignored.
func (eb *EventBroadcaster) Unregister(id string) {
	eb.mu.Lock()
	delete(eb.sinks, id)
	eb.mu.Unlock()
}

// Count returns the number of registered sinks.
func (eb *EventBroadcaster) Count() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.sinks)
}

// Publish sends ev to every registered sink and returns how many
// received it. Sinks that fail are pruned from the registry.
// Sends run outside the registry lock: a slow sink must not
// serialize the impact path behind it.
func (eb *EventBroadcaster) Publish(ev MonitorEvent) int {
	eb.mu.Lock()
	targets := make([]Sink, 0, len(eb.sinks))
	for _, s := range eb.sinks {
		targets = append(targets, s)
	}
	eb.mu.Unlock()

	delivered := 0
	var failed []string
	for _, s := range targets {
		if err := s.Send(ev); err != nil {
			slog.Warn("Pruning broken monitor sink",
				slog.String("sink", s.ID()), slog.Any("Error", err))
			failed = append(failed, s.ID())
			continue
		}
		delivered++
	}

	if len(failed) > 0 {
		eb.mu.Lock()
		for _, id := range failed {
			delete(eb.sinks, id)
		}
		eb.mu.Unlock()
		if eb.OnPrune != nil {
			for _, id := range failed {
				eb.OnPrune(id)
			}
		}
	}

	return delivered
}

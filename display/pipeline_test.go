package batteria_test

import (
	"context"
	"errors"
	"testing"
	"time"

	Bd "github.com/maroda/batteria/display"
	Bs "github.com/maroda/batteria/server"
	Bt "github.com/maroda/batteria/types"
)

func testConfig() *Bs.Config {
	return &Bs.Config{
		Addr:                ":0",
		FrameMaxAge:         2 * time.Second,
		FrameMaxCount:       20,
		OracleTimeout:       50 * time.Millisecond,
		CalibrationInterval: 5 * time.Second,
		CalibrationDelay:    0,
	}
}

// stubCalibrator answers every segmentation with a fixed snapshot.
type stubCalibrator struct {
	snap  Bt.Snapshot
	err   error
	calls int
}

func (c *stubCalibrator) Segment(ctx context.Context, frame Bt.Frame) (Bt.Snapshot, error) {
	c.calls++
	return c.snap, c.err
}

// memSink collects broadcast events in memory.
type memSink struct {
	id     string
	events []Bs.MonitorEvent
}

func (s *memSink) ID() string                    { return s.id }
func (s *memSink) Send(ev Bs.MonitorEvent) error { s.events = append(s.events, ev); return nil }

func calibratedSnapshot() Bt.Snapshot {
	return Bt.Snapshot{
		Segments: []Bt.Segment{
			{ID: 0, Bbox: [4]float64{0, 0, 100, 100}, Confidence: 0.9, Class: "cup", Material: "ceramic", Area: 10000},
			{ID: 1, Bbox: [4]float64{200, 0, 50, 50}, Confidence: 0.6, Class: "book", Material: "paper", Area: 2500},
		},
		Timestamp: 1.0,
	}
}

func impact(velocity float64) Bt.ImpactEvent {
	return Bt.ImpactEvent{Seq: 1, Velocity: velocity, Magnitude: velocity * 0.1, Timestamp: 1700000000000}
}

func TestPipeline_HandleImpact(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty frame buffer refuses the impact", func(t *testing.T) {
		p := Bd.NewPipeline(testConfig(), nil, nil, nil)
		_, err := p.HandleImpact(ctx, impact(5))
		assertError(t, err, Bs.ErrNoFrame)
	})

	t.Run("Uncalibrated impact is counted and refused", func(t *testing.T) {
		p := Bd.NewPipeline(testConfig(), nil, nil, nil)
		p.AddFrame(Bt.Frame{Payload: []byte("jpeg"), Timestamp: 1.0})

		_, err := p.HandleImpact(ctx, impact(5))
		assertError(t, err, Bs.ErrNotCalibrated)
		assertUint64(t, p.Stats.ImpactsUnmatched.Load(), 1)
	})

	t.Run("Calibrated impact resolves by fallback and fans out", func(t *testing.T) {
		p := Bd.NewPipeline(testConfig(), nil, nil, nil)
		p.AddFrame(Bt.Frame{Payload: []byte("jpeg"), Timestamp: 1.0})
		p.Segments.Store(calibratedSnapshot())

		sink := &memSink{id: "m1"}
		p.Cast.Register(sink)

		outcome, err := p.HandleImpact(ctx, impact(7.5))
		assertError(t, err, nil)
		if outcome == nil {
			t.Fatal("expected an outcome for a calibrated impact")
		}

		// segment 0 wins by area, default cyclic table maps id 0 to snare
		assertString(t, outcome.Pad, Bs.PadSnare)
		assertString(t, outcome.Material, "ceramic")
		assertFloat64(t, outcome.Velocity, 7.5)
		assertFloat64(t, outcome.Position.X, 50)

		assertUint64(t, p.Stats.ImpactsProcessed.Load(), 1)
		assertUint64(t, p.Stats.FallbackMatches.Load(), 1)

		assertInt(t, len(sink.events), 1)
		assertString(t, sink.events[0].Type, Bs.EventImpactProcessed)
	})

	t.Run("A supplied mapper drives the pad", func(t *testing.T) {
		mapper := Bs.NewMaterialPadMap()
		p := Bd.NewPipeline(testConfig(), nil, nil, mapper)
		p.AddFrame(Bt.Frame{Payload: []byte("jpeg"), Timestamp: 1.0})
		p.Segments.Store(calibratedSnapshot())

		outcome, err := p.HandleImpact(ctx, impact(3))
		assertError(t, err, nil)
		assertString(t, outcome.Pad, Bs.PadTom) // cup + ceramic
	})

	t.Run("Sensor disconnect is broadcast to monitors", func(t *testing.T) {
		p := Bd.NewPipeline(testConfig(), nil, nil, nil)
		sink := &memSink{id: "m1"}
		p.Cast.Register(sink)

		p.Ingest.Connect("sensor-1")
		p.Ingest.Disconnect("sensor-1")

		assertInt(t, len(sink.events), 1)
		assertString(t, sink.events[0].Type, Bs.EventSensorDisconnected)
	})
}

func TestPipeline_Calibrate(t *testing.T) {
	ctx := context.Background()

	t.Run("No calibrator configured is an error", func(t *testing.T) {
		p := Bd.NewPipeline(testConfig(), nil, nil, nil)
		p.AddFrame(Bt.Frame{Payload: []byte("jpeg"), Timestamp: 1.0})
		assertGotError(t, p.Calibrate(ctx))
	})

	t.Run("Empty buffer cannot calibrate", func(t *testing.T) {
		cal := &stubCalibrator{snap: calibratedSnapshot()}
		p := Bd.NewPipeline(testConfig(), nil, cal, nil)
		assertError(t, p.Calibrate(ctx), Bs.ErrNoFrame)
		assertInt(t, cal.calls, 0)
	})

	t.Run("Successful calibration stores the snapshot", func(t *testing.T) {
		cal := &stubCalibrator{snap: calibratedSnapshot()}
		p := Bd.NewPipeline(testConfig(), nil, cal, nil)
		p.AddFrame(Bt.Frame{Payload: []byte("jpeg"), Timestamp: 1.0})

		assertError(t, p.Calibrate(ctx), nil)
		if !p.Segments.IsCalibrated() {
			t.Error("expected the store to hold the new snapshot")
		}
		assertInt(t, p.Segments.SegmentCount(), 2)
		assertUint64(t, p.Stats.Calibrations.Load(), 1)
	})

	t.Run("Oracle failure keeps the previous snapshot", func(t *testing.T) {
		cal := &stubCalibrator{snap: calibratedSnapshot()}
		p := Bd.NewPipeline(testConfig(), nil, cal, nil)
		p.AddFrame(Bt.Frame{Payload: []byte("jpeg"), Timestamp: 1.0})
		assertError(t, p.Calibrate(ctx), nil)

		cal.err = errors.New("model overloaded")
		assertGotError(t, p.Calibrate(ctx))
		if !p.Segments.IsCalibrated() {
			t.Error("a failed recalibration must not clear the store")
		}
		assertUint64(t, p.Stats.CalibrationErrors.Load(), 1)
	})
}

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %q, want %q", got, want)
	}
}

func assertGotError(t testing.TB, got error) {
	t.Helper()
	if got == nil {
		t.Error("wanted an error but didn't get one")
	}
}

func assertInt(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func assertUint64(t testing.TB, got, want uint64) {
	t.Helper()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func assertFloat64(t testing.TB, got, want float64) {
	t.Helper()
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func assertString(t testing.TB, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

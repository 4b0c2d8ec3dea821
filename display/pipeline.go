package batteria

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	Bo "github.com/maroda/batteria/obvy"
	Bp "github.com/maroda/batteria/plugin"
	Bs "github.com/maroda/batteria/server"
	Bt "github.com/maroda/batteria/types"
)

// Pipeline is the composition root: the long-lived core objects,
// constructed once at process start and threaded by reference into
// every handler. There is no ambient global state.
type Pipeline struct {
	Frames     *Bs.FrameBuffer
	Segments   *Bs.SegmentationStore
	Localizer  *Bs.HitLocalizer
	Ingest     *Bs.SensorIngestion
	Cast       *Bs.EventBroadcaster
	Stats      *Bo.StatsInternal
	Calibrator Bs.Calibrator
	Outputs    []Bp.HitOutput
	Supervisor *CalibrationSupervisor
	server     *http.Server
}

// NewPipeline wires the core together. The detector and calibrator
// oracles may be nil: every impact then resolves by fallback and
// calibration only happens through stored snapshots.
func NewPipeline(cfg *Bs.Config, detector Bs.PositionDetector, calibrator Bs.Calibrator, mapper Bs.PadMapper) *Pipeline {
	p := &Pipeline{
		Frames:     Bs.NewFrameBuffer(cfg.FrameMaxAge, cfg.FrameMaxCount),
		Segments:   Bs.NewSegmentationStore(),
		Localizer:  Bs.NewHitLocalizer(detector, mapper, cfg.OracleTimeout),
		Cast:       Bs.NewEventBroadcaster(),
		Stats:      Bo.NewStatsInternal(),
		Calibrator: calibrator,
	}

	// the pipeline itself is the awaited impact handler
	p.Ingest = Bs.NewSensorIngestion(p)
	p.Ingest.AddDisconnectObserver(func(id string) {
		p.Cast.Publish(Bs.MonitorEvent{Type: Bs.EventSensorDisconnected})
	})
	p.Cast.OnPrune = func(id string) {
		p.Stats.SinkPrunes.Add(1)
		p.Stats.MonitorSinks.Store(int64(p.Cast.Count()))
	}

	return p
}

// AddFrame feeds one camera frame into the rolling buffer.
func (p *Pipeline) AddFrame(frame Bt.Frame) {
	p.Frames.Add(frame)
	p.Stats.FramesAdded.Add(1)
}

// Calibrate copies the latest frame out of the buffer and asks the
// calibration oracle to segment it, storing the result. The oracle
// call runs on the local copy: no buffer lock is held across it.
func (p *Pipeline) Calibrate(ctx context.Context) error {
	if p.Calibrator == nil {
		return errors.New("no calibrator configured")
	}

	frame, ok := p.Frames.Latest()
	if !ok {
		return Bs.ErrNoFrame
	}

	snap, err := p.Calibrator.Segment(ctx, frame)
	if err != nil {
		p.Stats.CalibrationErrors.Add(1)
		slog.Warn("Calibration failed", slog.Any("Error", err))
		return err
	}

	p.Segments.Store(snap)
	p.Stats.Calibrations.Add(1)
	return nil
}

// HandleImpact correlates one sensor impact with the current
// calibration and fans the result out. It implements Bs.ImpactHandler.
//
// Frame and snapshot are copied out first; the localizer's oracle
// call then runs on those copies with no core lock held.
func (p *Pipeline) HandleImpact(ctx context.Context, ev Bt.ImpactEvent) (*Bs.ImpactOutcome, error) {
	frame, ok := p.Frames.Latest()
	if !ok {
		slog.Warn("Impact with empty frame buffer", slog.Int64("seq", ev.Seq))
		return nil, Bs.ErrNoFrame
	}

	snap, ok := p.Segments.Current()
	if !ok {
		p.Stats.ImpactsUnmatched.Add(1)
		return nil, Bs.ErrNotCalibrated
	}

	hit, err := p.Localizer.Localize(ctx, frame, snap, ev.Timestamp, nil)
	if err != nil {
		if errors.Is(err, Bs.ErrNotCalibrated) {
			p.Stats.ImpactsUnmatched.Add(1)
		}
		return nil, err
	}

	p.Stats.ImpactsProcessed.Add(1)
	if hit.StickPos == nil {
		p.Stats.FallbackMatches.Add(1)
	}

	p.Cast.Publish(Bs.MonitorEvent{
		Type: Bs.EventImpactProcessed,
		Data: impactData{
			HitPayload: Bs.NewHitPayload(hit),
			Velocity:   ev.Velocity,
		},
	})

	for _, out := range p.Outputs {
		if err := out.WriteHit(&hit, ev.Velocity); err != nil {
			slog.Error("Hit output failed",
				slog.String("output", out.Type()), slog.Any("Error", err))
		}
	}

	return &Bs.ImpactOutcome{
		Pad:      hit.DrumPad,
		Material: hit.Material,
		Position: hit.Position,
		Velocity: ev.Velocity,
	}, nil
}

// impactData is the monitor payload: the hit plus its impact velocity.
type impactData struct {
	Bs.HitPayload
	Velocity float64 `json:"velocity"`
}

// StartWeb runs the calibration supervisor and serves the websocket
// and API endpoints. Blocks until the server exits.
func (p *Pipeline) StartWeb(cfg *Bs.Config) error {
	if p.Calibrator != nil {
		p.NewCalibrationSupervisor(cfg.CalibrationInterval, cfg.CalibrationDelay)
		p.Supervisor.Start()
		defer p.Supervisor.Stop()
	}

	p.server = &http.Server{
		Addr:    cfg.Addr,
		Handler: p.SetupMux(),
	}

	slog.Info("Starting Batteria server...", slog.String("Addr", cfg.Addr))
	if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Could not start server", slog.Any("Error", err))
		return err
	}
	return nil
}

package batteria

import (
	"context"
	"sync"
	"time"
)

// CalibrationSupervisor manages the periodic recalibration goroutine.
// It is strongly coupled to the Pipeline, one knows about the other.
type CalibrationSupervisor struct {
	Pipeline *Pipeline
	Ticker   *time.Ticker
	StopChan chan struct{}
	WG       sync.WaitGroup
	Interval time.Duration
	Delay    time.Duration // initial delay before the first calibration
}

// NewCalibrationSupervisor is a wrapper around the Pipeline that
// recalibrates on a fixed cadence from the freshest frame.
func (p *Pipeline) NewCalibrationSupervisor(interval, delay time.Duration) *CalibrationSupervisor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	cs := &CalibrationSupervisor{
		Pipeline: p,
		Interval: interval,
		Delay:    delay,
	}
	p.Supervisor = cs
	return cs
}

// Start the CalibrationSupervisor
func (cs *CalibrationSupervisor) Start() {
	cs.StopChan = make(chan struct{})
	cs.Ticker = time.NewTicker(cs.Interval)

	cs.WG.Add(1)
	go func() {
		defer cs.WG.Done()
		defer cs.Ticker.Stop()

		if cs.Delay > 0 {
			select {
			case <-time.After(cs.Delay):
			case <-cs.StopChan:
				return
			}
		}

		for {
			// errors are counted and logged inside Calibrate;
			// the loop keeps its cadence regardless
			cs.Pipeline.Calibrate(context.Background())

			select {
			case <-cs.Ticker.C:
			case <-cs.StopChan:
				return
			}
		}
	}()
}

// Stop the CalibrationSupervisor
func (cs *CalibrationSupervisor) Stop() {
	if cs.StopChan != nil {
		close(cs.StopChan)
		cs.WG.Wait()
	}
}

// Restart the CalibrationSupervisor
func (cs *CalibrationSupervisor) Restart() {
	cs.Stop()
	cs.Start()
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	Bd "github.com/maroda/batteria/display"
	Bo "github.com/maroda/batteria/obvy"
	Bp "github.com/maroda/batteria/plugin"
	Bs "github.com/maroda/batteria/server"
)

func main() {
	user := Bs.FillEnvVar("USER")
	fmt.Printf("Batteria initializing for ... %s\n", user)

	ctx := context.Background()
	cfg, err := Bs.LoadConfig(ctx)
	if err != nil {
		slog.Error("Bad configuration", slog.Any("Error", err))
		panic("Failed to load configuration")
	}

	// tracing is best-effort: no collector configured is not fatal
	shutdown, err := Bo.InitOTelHNY()
	if err != nil {
		slog.Warn("Tracing disabled", slog.Any("Error", err))
	} else {
		defer shutdown()
	}

	// the simple cyclic table is the default;
	// a config file can switch on the material mapping
	mapper := Bs.PadMapper(Bs.NewCyclicPadMap())
	if cfg.PadConfigFile != "" {
		cf, err := Bs.LoadPadConfigFileName(cfg.PadConfigFile)
		if err != nil {
			slog.Error("Could not load pad config", slog.Any("Error", err))
			panic("Failed to load pad config")
		}
		mapper, err = Bs.NewPadMapperFromConfig(cf)
		if err != nil {
			slog.Error("Bad pad config", slog.Any("Error", err))
			panic("Failed to build pad mapper")
		}
	}

	oracle := Bs.NewHostedOracle(cfg.DetectURL, cfg.SegmentURL)
	var detector Bs.PositionDetector
	var calibrator Bs.Calibrator
	if cfg.DetectURL != "" {
		detector = oracle
	}
	if cfg.SegmentURL != "" {
		calibrator = oracle
	}

	p := Bd.NewPipeline(cfg, detector, calibrator, mapper)

	if cfg.MIDIEnabled {
		out, err := Bp.OutputLookup("midi", cfg.MIDIPort)
		if err != nil {
			slog.Warn("MIDI output unavailable", slog.Any("Error", err))
		} else {
			p.Outputs = append(p.Outputs, out)
			defer out.Close()
		}
	}

	if err := p.StartWeb(cfg); err != nil {
		slog.Error("Problem running Batteria", slog.Any("Error", err))
		panic("Failed to start batteria server")
	}
}

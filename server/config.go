package batteria

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the process-level runtime configuration, filled from env.
type Config struct {
	Addr                string        `env:"BATTERIA_ADDR, default=:8090"`
	FrameMaxAge         time.Duration `env:"BATTERIA_FRAME_MAX_AGE, default=2s"`
	FrameMaxCount       int           `env:"BATTERIA_FRAME_MAX_COUNT, default=20"`
	OracleTimeout       time.Duration `env:"BATTERIA_ORACLE_TIMEOUT, default=500ms"`
	CalibrationInterval time.Duration `env:"BATTERIA_CALIBRATION_INTERVAL, default=5s"`
	CalibrationDelay    time.Duration `env:"BATTERIA_CALIBRATION_DELAY, default=5s"`
	PadConfigFile       string        `env:"BATTERIA_PAD_CONFIG"`
	DetectURL           string        `env:"BATTERIA_DETECT_URL"`
	SegmentURL          string        `env:"BATTERIA_SEGMENT_URL"`
	MIDIEnabled         bool          `env:"BATTERIA_MIDI"`
	MIDIPort            int           `env:"BATTERIA_MIDI_PORT"`
}

// LoadConfig fills Config from the environment.
func LoadConfig(ctx context.Context) (*Config, error) {
	var c Config
	if err := envconfig.Process(ctx, &c); err != nil {
		slog.Error("Could not process env config", slog.Any("Error", err))
		return nil, err
	}
	return &c, nil
}

// FillEnvVar returns the value of a runtime Environment Variable
func FillEnvVar(ev string) string {
	// If the EnvVar doesn't exist return a default string
	value := os.Getenv(ev)
	if value == "" {
		value = "ENOENT"
	}
	return value
}

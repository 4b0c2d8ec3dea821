package batteria

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatsInternal holds internal counters behind an attached
// prometheus registry. Hot paths bump atomics; prometheus reads
// them lazily through GaugeFunc collectors at scrape time.
type StatsInternal struct {
	FramesAdded       atomic.Uint64
	Calibrations      atomic.Uint64
	CalibrationErrors atomic.Uint64
	ImpactsProcessed  atomic.Uint64
	ImpactsUnmatched  atomic.Uint64 // impacts that found no calibration
	FallbackMatches   atomic.Uint64 // localized without a strike position
	SensorMessages    atomic.Uint64
	ProtocolErrors    atomic.Uint64
	MonitorSinks      atomic.Int64
	SinkPrunes        atomic.Uint64
	HTTPRequests      atomic.Uint64

	registry *prometheus.Registry
}

// NewStatsInternal creates the counters with an attached registry.
func NewStatsInternal() *StatsInternal {
	s := &StatsInternal{
		registry: prometheus.NewRegistry(),
	}

	gauges := []struct {
		name string
		help string
		read func() float64
	}{
		{"batteria_frames_added_total", "Frames accepted into the rolling buffer",
			func() float64 { return float64(s.FramesAdded.Load()) }},
		{"batteria_calibrations_total", "Calibration snapshots stored",
			func() float64 { return float64(s.Calibrations.Load()) }},
		{"batteria_calibration_errors_total", "Calibration oracle failures",
			func() float64 { return float64(s.CalibrationErrors.Load()) }},
		{"batteria_impacts_processed_total", "Impacts correlated to a segment",
			func() float64 { return float64(s.ImpactsProcessed.Load()) }},
		{"batteria_impacts_unmatched_total", "Impacts arriving before calibration",
			func() float64 { return float64(s.ImpactsUnmatched.Load()) }},
		{"batteria_fallback_matches_total", "Hits localized without a strike position",
			func() float64 { return float64(s.FallbackMatches.Load()) }},
		{"batteria_sensor_messages_total", "Messages received on the sensor socket",
			func() float64 { return float64(s.SensorMessages.Load()) }},
		{"batteria_protocol_errors_total", "Malformed or unknown sensor messages",
			func() float64 { return float64(s.ProtocolErrors.Load()) }},
		{"batteria_monitor_sinks", "Currently registered monitor sinks",
			func() float64 { return float64(s.MonitorSinks.Load()) }},
		{"batteria_sink_prunes_total", "Monitor sinks pruned after a failed send",
			func() float64 { return float64(s.SinkPrunes.Load()) }},
		{"batteria_http_requests_total", "API requests served",
			func() float64 { return float64(s.HTTPRequests.Load()) }},
	}

	for _, g := range gauges {
		s.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.read,
		))
	}

	return s
}

// Handler serves the /metrics scrape endpoint for this registry.
func (s *StatsInternal) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

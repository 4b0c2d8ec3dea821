package batteria

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	Bt "github.com/maroda/batteria/types"
)

// SetupMux handles all data serving:
// - Prometheus metric endpoint
// - Websocket endpoints for the sensor and for monitor clients
// - Version for programmatic use
// - Frame ingestion and status for the capture side
func (p *Pipeline) SetupMux() *mux.Router {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.Handle("/metrics", p.Stats.Handler())
	r.HandleFunc("/ws/sensor", p.SensorHandler)
	r.HandleFunc("/ws/monitor", p.MonitorHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(p.StatsMiddleware)
	api.HandleFunc("/version", p.VersionHandler)
	api.HandleFunc("/status", p.StatusHandler)
	api.HandleFunc("/frame", p.FrameHandler).Methods(http.MethodPost)
	api.HandleFunc("/calibrate", p.CalibrateHandler).Methods(http.MethodPost)

	return r
}

var Version = "dev"

// StatsMiddleware counts API requests for the scrape endpoint.
func (p *Pipeline) StatsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.Stats.HTTPRequests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (p *Pipeline) VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"version": Version})
}

// StatusHandler reports the live state of the correlation core.
func (p *Pipeline) StatusHandler(w http.ResponseWriter, r *http.Request) {
	type Status struct {
		Calibrated      bool `json:"calibrated"`
		SegmentCount    int  `json:"segment_count"`
		BufferSize      int  `json:"buffer_size"`
		SensorConnected bool `json:"sensor_connected"`
		MonitorSinks    int  `json:"monitor_sinks"`
	}

	status := Status{
		Calibrated:      p.Segments.IsCalibrated(),
		SegmentCount:    p.Segments.SegmentCount(),
		BufferSize:      p.Frames.Size(),
		SensorConnected: p.Ingest.IsConnected(),
		MonitorSinks:    p.Cast.Count(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// frameUpload is what the capture side POSTs:
// a base64 image (with or without a data-URL prefix) and
// an optional capture timestamp in Unix seconds.
type frameUpload struct {
	Frame     string  `json:"frame"`
	Timestamp float64 `json:"timestamp"`
}

// FrameHandler accepts one camera frame into the rolling buffer.
func (p *Pipeline) FrameHandler(w http.ResponseWriter, r *http.Request) {
	var up frameUpload
	if err := json.NewDecoder(r.Body).Decode(&up); err != nil {
		http.Error(w, "invalid frame payload", http.StatusBadRequest)
		return
	}

	// strip a data-URL prefix if the browser sent one
	data := up.Frame
	if i := strings.IndexByte(data, ','); i >= 0 {
		data = data[i+1:]
	}
	payload, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		http.Error(w, "invalid frame encoding", http.StatusBadRequest)
		return
	}

	p.AddFrame(Bt.Frame{Payload: payload, Timestamp: up.Timestamp})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"buffer_size": p.Frames.Size(),
	})
}

// CalibrateHandler triggers an immediate recalibration from the
// latest frame, outside the supervisor's cadence.
func (p *Pipeline) CalibrateHandler(w http.ResponseWriter, r *http.Request) {
	if err := p.Calibrate(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"segments": p.Segments.SegmentCount(),
	})
}

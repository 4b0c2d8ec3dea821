package batteria

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	Bs "github.com/maroda/batteria/server"
)

// writeWait bounds each websocket write so one dead peer
// cannot stall a publish
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// monitorSink is one connected monitor client behind the broadcaster.
// Writes are guarded by the sink's own mutex and a write deadline.
type monitorSink struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *monitorSink) ID() string { return s.id }

func (s *monitorSink) Send(ev Bs.MonitorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

// SensorHandler is the percussion sensor's websocket endpoint.
// One message in, one response out, and no input closes the
// connection from this side: parse errors and unknown types get
// a structured error response and the loop continues.
func (p *Pipeline) SensorHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	p.Ingest.Connect(id)
	p.Cast.Publish(Bs.MonitorEvent{Type: Bs.EventSensorConnected})
	defer p.Ingest.Disconnect(id)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return // transport-detected disconnect
		}
		p.Stats.SensorMessages.Add(1)

		resp := p.Ingest.HandleMessage(r.Context(), raw)
		if resp.ResponseType() == "error" {
			p.Stats.ProtocolErrors.Add(1)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := conn.WriteJSON(resp); err != nil {
			slog.Warn("Could not answer sensor", slog.Any("Error", err))
			return
		}
	}
}

// MonitorHandler registers a passive observer for broadcast events.
// The read loop only exists to notice the peer going away.
func (p *Pipeline) MonitorHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sink := &monitorSink{id: uuid.NewString(), conn: conn}
	p.Cast.Register(sink)
	p.Stats.MonitorSinks.Store(int64(p.Cast.Count()))
	slog.Info("Monitor client connected", slog.String("sink", sink.id))

	defer func() {
		// the prune path may have removed it already; Unregister is idempotent
		p.Cast.Unregister(sink.id)
		p.Stats.MonitorSinks.Store(int64(p.Cast.Count()))
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

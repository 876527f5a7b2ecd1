// Package statusapi exposes a read-only HTTP view of the scheduler's last
// completed cycle plus a streaming "watch" websocket, for operators and
// dashboards that should never be able to perturb scheduling decisions.
// Routing follows jontk-slurm-client's pkg/watch/pkg/streaming vocabulary
// (github.com/gorilla/mux for REST, github.com/gorilla/websocket for the
// stream), reading from internal/events.Broker rather than issuing any
// command back into the cycle.
package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quillhpc/qsched/internal/events"
)

// CycleReport is the last-completed-cycle snapshot the status endpoints
// serve (spec §4.K step 7 outcome, summarized for external consumption).
type CycleReport struct {
	CycleID       string        `json:"cycle_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	JobsRun       int           `json:"jobs_run"`
	JobsCanNotRun int           `json:"jobs_can_not_run"`
	JobsPreempted int           `json:"jobs_preempted"`
	ReservationsConfirmed int   `json:"reservations_confirmed"`
}

// ReportSource supplies the most recent cycle report; internal/cycle's
// Driver implements it directly.
type ReportSource interface {
	LastReport() (CycleReport, bool)
}

// StreamType distinguishes what kind of object a watch subscribes to,
// mirroring jontk-slurm-client's streaming.StreamType vocabulary.
type StreamType string

const (
	StreamCycles StreamType = "cycles"
)

// StreamMessage is one websocket frame sent to a watcher.
type StreamMessage struct {
	Type      string      `json:"type"`
	Stream    StreamType  `json:"stream"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Error     string      `json:"error,omitempty"`
}

// Server is the status/watch HTTP server.
type Server struct {
	reports ReportSource
	broker  *events.Broker
	log     zerolog.Logger

	router   *mux.Router
	upgrader websocket.Upgrader
}

// New builds a Server wired to reports for the REST snapshot and broker
// for the live websocket stream.
func New(reports ReportSource, broker *events.Broker, log zerolog.Logger) *Server {
	s := &Server{
		reports: reports,
		broker:  broker,
		log:     log.With().Str("component", "statusapi").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	s.router = mux.NewRouter().StrictSlash(true)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/status/cycle", s.handleCycle).Methods(http.MethodGet)
	s.router.HandleFunc("/watch", s.handleWatch).Methods(http.MethodGet)
}

// Handler returns the server's http.Handler for embedding in an
// http.Server (the teacher wires its API servers the same way).
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	report, ok := s.reports.LastReport()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no cycle has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleWatch upgrades to a websocket and forwards every cycle-lifecycle
// event published on the broker until the client disconnects, following
// jontk-slurm-client's HandleWebSocket shape: upgrade, derive a
// request-scoped context, run a keepalive ping loop alongside delivery.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			msg := StreamMessage{Type: "event", Stream: StreamCycles, Data: ev, Timestamp: time.Now()}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

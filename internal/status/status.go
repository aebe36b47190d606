// Package status serves the read-only HTTP API used to monitor a live
// mission: current drone state, the detection log, operator events and
// ingestion counters.
package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nidar-uav/ground-control/internal/detection"
	"github.com/nidar-uav/ground-control/internal/events"
	"github.com/nidar-uav/ground-control/internal/ingest"
	"github.com/nidar-uav/ground-control/internal/state"
	"github.com/nidar-uav/ground-control/internal/telemetry"
)

// defaultEventCount bounds /api/events responses when no count is given.
const defaultEventCount = 100

// Ingestor is the view of the ingestion scheduler the API exposes.
type Ingestor interface {
	State() ingest.State
	Stats() ingest.Stats
}

// Server answers status queries from in-memory mission state. All handlers
// are read-only; the API never mutates the pipeline.
type Server struct {
	states     *state.Store
	detections *detection.Log
	events     *events.Log
	ingestor   Ingestor
	logger     *slog.Logger
}

// NewServer creates a status server over the given mission state. A nil
// logger disables logging.
func NewServer(states *state.Store, detections *detection.Log, eventLog *events.Log, ingestor Ingestor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger
	}
	return &Server{
		states:     states,
		detections: detections,
		events:     eventLog,
		ingestor:   ingestor,
		logger:     logger.With(slog.String("component", "status")),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/detections", s.handleDetections)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Serve runs the API on listenAddr until ctx is cancelled, then shuts the
// listener down gracefully.
func (s *Server) Serve(ctx context.Context, listenAddr string) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("status API listening", "addr", listenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.logger.Info("status API stopped")
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := struct {
		Drones []telemetry.DroneState `json:"drones"`
	}{Drones: s.states.All()}
	writeJSON(w, resp)
}

func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var from, to time.Time
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from timestamp, want RFC3339", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to timestamp, want RFC3339", http.StatusBadRequest)
			return
		}
		to = t
	}
	droneID := 0
	if v := q.Get("drone"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			http.Error(w, "invalid drone id", http.StatusBadRequest)
			return
		}
		droneID = id
	}

	list := s.detections.Query(from, to, droneID)
	if list == nil {
		list = []telemetry.DetectionEvent{}
	}
	resp := struct {
		Detections []telemetry.DetectionEvent `json:"detections"`
	}{Detections: list}
	writeJSON(w, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var list []events.Event
	if v := q.Get("since"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid since sequence", http.StatusBadRequest)
			return
		}
		list = s.events.Since(seq)
	} else {
		n := defaultEventCount
		if v := q.Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				http.Error(w, "invalid event count", http.StatusBadRequest)
				return
			}
			n = parsed
		}
		list = s.events.Recent(n)
	}
	if list == nil {
		list = []events.Event{}
	}

	resp := struct {
		Total  uint64         `json:"total"`
		Events []events.Event `json:"events"`
	}{Total: s.events.Total(), Events: list}
	writeJSON(w, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := struct {
		Ingestion string `json:"ingestion"`
		ingest.Stats
	}{Ingestion: s.ingestor.State().String(), Stats: s.ingestor.Stats()}
	writeJSON(w, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("{\"ok\":true}\n"))
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

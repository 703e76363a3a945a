package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paulaanasilva/mazephases/internal/config"
	"github.com/paulaanasilva/mazephases/internal/events"
	"github.com/paulaanasilva/mazephases/internal/orchestrator"
)

// PhaseLoader is the loader surface the HTTP handlers drive.
type PhaseLoader interface {
	Load(ctx context.Context, run orchestrator.RunConfiguration) orchestrator.Outcome
	NextPhase() (*orchestrator.Descriptor, error)
	Status() orchestrator.Status
}

// DefaultReloadTimeout bounds a /phases/reload request.
const DefaultReloadTimeout = 30 * time.Second

// Server serves phases and the operational endpoints.
type Server struct {
	loader       PhaseLoader
	materializer *orchestrator.Materializer
	logger       *zap.Logger

	runMu sync.Mutex
	run   config.GameParams

	ReloadTimeout time.Duration

	alerter *Alerter

	srvMu      sync.Mutex
	httpServer *http.Server
	closed     bool
}

// NewServer creates a server. run is the configuration reloads start from.
func NewServer(loader PhaseLoader, m *orchestrator.Materializer, run config.GameParams, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		loader:        loader,
		materializer:  m,
		logger:        logger,
		run:           run,
		ReloadTimeout: DefaultReloadTimeout,
	}
}

// SetAlerter enables fallback alerts on reload.
func (s *Server) SetAlerter(a *Alerter) {
	s.alerter = a
}

// Run returns the run configuration of the last load.
func (s *Server) Run() config.GameParams {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.run
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/metrics", metricsHandler)
	mux.HandleFunc("/events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("/ws/events", RequireAnyRole(s.wsEventsHandler))
	mux.HandleFunc("/phases/next", s.nextPhaseHandler)
	mux.HandleFunc("/phases/status", s.statusHandler)
	mux.HandleFunc("/phases/reload", RequireAdmin(s.reloadHandler))
	return mux
}

// ListenAndServe serves on port until Shutdown. TLS is used when configured.
func (s *Server) ListenAndServe(port int) error {
	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srvMu.Lock()
	if s.closed {
		s.srvMu.Unlock()
		return nil
	}
	s.httpServer = srv
	s.srvMu.Unlock()

	s.logger.Info("API listening", zap.String("addr", srv.Addr), zap.Bool("tls", tlsCfg != nil))
	if tlsCfg != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server started by ListenAndServe. A later
// ListenAndServe returns immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.srvMu.Lock()
	srv := s.httpServer
	s.closed = true
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "mazephases",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// PhaseResponse is the body of a successful /phases/next.
type PhaseResponse struct {
	Phase     *orchestrator.Phase `json:"phase"`
	Remaining int                 `json:"remaining"`
}

// nextPhaseHandler advances the sequence and returns the materialized phase.
func (s *Server) nextPhaseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	d, err := s.loader.NextPhase()
	switch {
	case errors.Is(err, orchestrator.ErrNotLoaded):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, orchestrator.ErrNoMorePhases):
		writeJSON(w, http.StatusGone, ErrorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	phase, err := s.materializer.Materialize(d)
	if err != nil {
		recordInvalid()
		s.logger.Error("phase failed to materialize",
			zap.String("name", d.Name),
			zap.Int("index", d.Index),
			zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, orchestrator.ErrMalformedRecord) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, ErrorResponse{Error: err.Error()})
		return
	}

	recordServed()
	writeJSON(w, http.StatusOK, PhaseResponse{Phase: phase, Remaining: s.loader.Status().Remaining})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.loader.Status())
}

// ReloadResponse summarizes a load triggered over HTTP.
type ReloadResponse struct {
	LoadID    string `json:"load_id"`
	Strategy  string `json:"strategy"`
	Source    string `json:"source"`
	Phases    int    `json:"phases"`
	Fallback  bool   `json:"fallback"`
	Navigated bool   `json:"navigated"`
	Error     string `json:"error,omitempty"`
}

// reloadHandler re-runs the load. Query parameters use the game page's
// names and override the current run configuration.
func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}

	run, err := s.Run().WithQuery(r.URL.Query())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.ReloadTimeout)
	defer cancel()

	out := s.Reload(ctx, run)
	resp := ReloadResponse{
		LoadID:    out.LoadID,
		Strategy:  out.Strategy.String(),
		Source:    string(out.Source),
		Phases:    out.Phases,
		Fallback:  out.Fallback(),
		Navigated: out.Navigated,
	}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reload loads run, remembers it for later reloads and updates readiness
// and metrics.
func (s *Server) Reload(ctx context.Context, run config.GameParams) orchestrator.Outcome {
	out := s.loader.Load(ctx, run)

	s.runMu.Lock()
	s.run = run
	s.runMu.Unlock()

	RecordLoad(out)
	SetLoaderReady(true)
	if s.alerter != nil {
		s.alerter.LoadCompleted(out)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package server exposes the sync trigger and the CRM webhook over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"portal-sync/internal/domain"
	"portal-sync/internal/sync"
)

// SyncRunner runs one sync pass.
type SyncRunner interface {
	Run(ctx context.Context, p sync.Params) (sync.RunResult, error)
}

// UpdateStore is what the webhook needs from storage.
type UpdateStore interface {
	GetProjectByServiceID(ctx context.Context, serviceID string) (domain.Project, error)
	InsertServiceUpdate(ctx context.Context, u *domain.ServiceUpdate) error
}

type Config struct {
	Addr              string
	WebhookSecret     string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

type Server struct {
	cfg    Config
	runner SyncRunner
	store  UpdateStore
	log    *zap.Logger

	// one sync per process; a second trigger is refused, not queued
	running gosync.Mutex

	httpServer *http.Server
}

func New(cfg Config, runner SyncRunner, st UpdateStore, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{cfg: cfg, runner: runner, store: st, log: log}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/sync", s.handleSync)
	mux.HandleFunc("POST /api/hubspot/push-update", s.handlePushUpdate)
	return logRequests(s.log, mux)
}

// ListenAndServe runs until ctx ends, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	serveErr := make(chan error, 1)
	s.log.Info("http server listening", zap.String("addr", s.cfg.Addr))
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		s.log.Info("http server stopped")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type syncFailure struct {
	Success bool   `json:"success"`
	RunID   string `json:"runId,omitempty"`
	Error   string `json:"error"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.running.TryLock() {
		writeJSON(w, http.StatusConflict, syncFailure{Error: "sync already running"})
		return
	}
	defer s.running.Unlock()

	params := sync.ParseParams(r.URL.Query())
	// a run is not abandoned when the caller disconnects
	res, err := s.runner.Run(context.WithoutCancel(r.Context()), params)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, syncFailure{RunID: res.RunID, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

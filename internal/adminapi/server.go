// Copyright 2025 James Ross

// Package adminapi exposes internal/admin's inspect and maintenance
// operations as JSON endpoints for dashboards that can't shell out to the
// CLI. It is a thin adapter: every handler forwards straight to
// internal/admin and adds no business logic of its own.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/holocron/orchestrator/internal/store"
)

// Config controls the admin API's listen address and timeouts.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig matches the CLI's own defaults for local/dev use.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8081",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server wraps an AdminBackend behind a gorilla/mux router.
type Server struct {
	cfg     Config
	backend store.AdminBackend
	log     *zap.Logger
	srv     *http.Server
}

// NewServer builds a Server. log may be nil, defaulting to zap.NewNop().
func NewServer(cfg Config, backend store.AdminBackend, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, backend: backend, log: log}
}

// Start begins serving in the background and returns immediately; callers
// shut it down via Shutdown.
func (s *Server) Start() {
	router := s.routes()
	s.srv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.Info("admin api listening", zap.String("addr", s.cfg.ListenAddr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin api server stopped", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/work-items", s.handleListWorkItems).Methods(http.MethodGet)
	api.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/search", s.handleSearchJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{job_id}", s.handleInspectJob).Methods(http.MethodGet)
	api.HandleFunc("/admin/mark-source-failed", s.handleMarkSourceFailed).Methods(http.MethodPost)
	api.HandleFunc("/admin/reset-completed-to-pending", s.handleResetCompletedToPending).Methods(http.MethodPost)
	api.HandleFunc("/admin/purge-dead-jobs", s.handlePurgeDeadJobs).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

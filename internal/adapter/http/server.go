// Package http exposes the converter's operational endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/icon-grid-etl/internal/convert"
)

// ProgressReporter exposes how far the conversion has advanced. The converter
// implements it; readiness is derived from the reported snapshot.
type ProgressReporter interface {
	Progress() convert.Progress
}

// Server exposes health, readiness, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type readyResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	ModelRun string `json:"model_run,omitempty"`
	Timestep *int   `json:"timestep,omitempty"`
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics routes.
func NewServer(addr string, progress ProgressReporter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", handleReady(progress))
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReady answers 503 until the first timestep has been converted, then
// 200 with the most recently completed model run and timestep.
func handleReady(reporter ProgressReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		p := reporter.Progress()
		if !p.Ready {
			writeJSON(w, http.StatusServiceUnavailable, readyResponse{
				Status: "not ready",
				Reason: "no timestep converted yet",
			})
			return
		}
		ts := p.Timestep
		writeJSON(w, http.StatusOK, readyResponse{
			Status:   "ready",
			ModelRun: p.ModelRun.UTC().Format(time.RFC3339),
			Timestep: &ts,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}

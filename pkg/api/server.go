// Package api provides the optional debug HTTP server exposed while a
// collection run is in progress: health, collection status, and Prometheus
// metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perimetric/pagecov/pkg/logging"
)

// Status is the live view served at /status.
type Status struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	ScriptActive bool      `json:"script_active"`
	StyleActive  bool      `json:"style_active"`
}

// StatusFunc supplies the current status on each request.
type StatusFunc func() Status

// Server is the debug HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
}

// NewServer builds a Server listening on addr.
func NewServer(addr string, status StatusFunc, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves in a background goroutine until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("debug server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("debug server failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/toolagent/internal/config"
	"github.com/michaelbrown/toolagent/internal/runner"
	"github.com/michaelbrown/toolagent/internal/storage"
	"github.com/michaelbrown/toolagent/internal/tools"
)

// Server is the HTTP API for triggering and inspecting agent runs.
type Server struct {
	cfg     *config.Config
	store   storage.Store
	runner  *runner.Runner
	toolset *tools.Aggregation
	runs    *RunManager
	router  chi.Router

	mu     sync.Mutex
	http   *http.Server
	closed bool
}

// New creates a Server. toolset is the aggregation the runner was built with
// and is reported by /api/tools.
func New(cfg *config.Config, store storage.Store, r *runner.Runner, toolset *tools.Aggregation) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		runner:  r,
		toolset: toolset,
		runs:    NewRunManager(),
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		// WebSocket (no JSON content-type)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(jsonContentType)

			r.Get("/tools", s.handleListTools)

			r.Get("/runs", s.handleListRuns)
			r.Post("/runs", s.handleCreateRun)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Delete("/runs/{id}", s.handleDeleteRun)
			r.Post("/runs/{id}/cancel", s.handleCancelRun)
			r.Get("/runs/{id}/messages", s.handleGetMessages)
		})

		// Export sets its own content type.
		r.Get("/runs/{id}/export", s.handleExportRun)
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.http = hs
	s.mu.Unlock()

	slog.Info("toolagent server starting", "url", "http://localhost"+addr)
	return hs.ListenAndServe()
}

// Shutdown cancels in-flight runs and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server", "active_runs", s.runs.Active())
	s.runs.CancelAll()

	s.mu.Lock()
	s.closed = true
	hs := s.http
	s.mu.Unlock()
	if hs == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return hs.Shutdown(shutdownCtx)
}

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"taskmux/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer  *http.Server
	router      *chi.Mux
	registry    *core.Registry
	logger      *slog.Logger
	authToken   string
	stopTimeout time.Duration
}

// NewServer constructs the HTTP API server.
func NewServer(addr, authToken string, registry *core.Registry, logger *slog.Logger, stopTimeout time.Duration) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}

	s := &Server{
		router:      router,
		registry:    registry,
		logger:      logger,
		authToken:   authToken,
		stopTimeout: stopTimeout,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleStartTask)
			r.Post("/prune", s.handlePrune)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleStatus)
				r.Get("/logs", s.handleLogs)
				r.Post("/stdin", s.handleWrite)
				r.Post("/signal", s.handleSignal)
				r.Post("/stop", s.handleStop)
				r.Post("/wait", s.handleWait)
			})
		})
	})
}

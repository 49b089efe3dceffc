package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dshills/codebase-context/internal/app"
	"github.com/dshills/codebase-context/internal/logging"
	"github.com/dshills/codebase-context/pkg/types"
)

// RequestTimeout bounds every API request.
const RequestTimeout = 60 * time.Second

// Service is the application surface the handlers call into.
type Service interface {
	Retrieve(ctx context.Context, query, directory string) ([]types.ContextItem, error)
	Index(ctx context.Context, req app.IndexRequest) (*app.IndexResult, error)
	Status(ctx context.Context, path string) (*app.Status, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	logger     *logging.Logger
	addr       string
}

// NewServer creates a new API Server with all routes mounted.
func NewServer(addr string, svc Service, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(requestContext)
	router.Use(requestLogging(logger))
	router.Use(chimiddleware.Recoverer)

	h := &handlers{service: svc, logger: logger}
	router.Get("/healthz", h.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(RequestTimeout))
		r.Post("/retrieve", h.retrieve)
		r.Post("/index", h.index)
		r.Get("/status", h.status)
	})

	return &Server{
		router: router,
		addr:   addr,
		logger: logger,
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}

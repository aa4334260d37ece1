// Package core provides the API chassis for the farewatch service. It
// creates a chi router and enforces cross-cutting concerns -- recovery,
// timeouts, request correlation, logging, and error handling -- before
// requests reach domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"farewatch/internal/config"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// Long enough for an inline single-watch trigger (which fans out into
// multiple upstream fare searches) to complete.
const defaultRequestTimeout = 2 * time.Minute

// RouteRegistrar registers a handler group's routes on the v1 router.
// The indirection avoids an import cycle between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the API dependencies, allowing injection during
// testing and distinct configuration per environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by the application entry point.
	V1RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes the router and validator and prepares the server for
// route mounting. The caller mounts routes via MountRoutes after wiring
// registrars; this separation lets tests customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	v, err := NewValidator(logger)
	if err != nil {
		return nil, fmt.Errorf("creating validator: %w", err)
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: v,
		router:    chi.NewRouter(),
	}, nil
}

// MountRoutes registers the global middleware chain, the v1 API group, and
// the top-level health endpoint.
//
// Middleware ordering: Recoverer is outermost to catch all panics, then the
// context timeout, then request ID generation (so the logger can include it),
// then logging and CORS.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(CORSMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		for _, registrar := range s.V1RouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server-held resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	return nil
}

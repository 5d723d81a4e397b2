// Package core provides the API chassis for the ZoneAtlas platform.
// It creates a chi router and enforces cross-cutting concerns (security,
// logging, rate limiting, error handling) before requests reach
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zoneatlas/internal/config"
)

// RouteRegistrar registers a group of domain handler routes on the API
// router. The indirection avoids import cycles between core and the
// handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the ZoneAtlas API, allowing
// for easy injection during testing and distinct configuration for
// different environments.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Authenticator  Authenticator  // Resolves tokens to Actors; optional auth when nil.
	RateLimitStore RateLimitStore // Per-IP search bucket; no limiting when nil.
	DB             HealthChecker  // Readiness probe target.

	// APIRouteRegistrars populate the /api namespace; WebhookRegistrars
	// populate /webhooks (which bypasses bearer auth).
	APIRouteRegistrars []RouteRegistrar
	WebhookRegistrars  []RouteRegistrar

	router *chi.Mux
}

// NewServer initializes dependencies, sets up the router, and prepares
// the server for route mounting. It performs a fail-fast check on
// critical configuration.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction. This separation allows tests to customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if closer, ok := s.DB.(interface{ Close() }); ok {
		closer.Close()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}

package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zoneatlas/internal/types"
)

// defaultRequestTimeout is the soft timeout applied to request contexts
// when no explicit RequestTimeout is configured.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs to prevent accidental leakage of credentials.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
}

// MountRoutes defines the top-level routing hierarchy.
// It registers the global middleware chain, the /api group (optional
// bearer auth), the /webhooks group (signature-verified, no bearer
// auth), and the health check.
func (s *Server) MountRoutes() {
	// Global Middleware Registration (strict order matters).
	s.registerGlobalMiddleware()

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		for _, registrar := range s.APIRouteRegistrars {
			registrar(r)
		}
	})

	s.router.Route("/webhooks", func(r chi.Router) {
		for _, registrar := range s.WebhookRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer        - Catches panics; outermost to catch all failures.
//  2. ContextTimeout   - Sets soft deadline before the platform hard timeout.
//  3. RequestID        - Generates/propagates correlation ID for tracing.
//  4. SecurityHeaders  - Ensures all responses include security headers.
//  5. RequestLogger    - Structured logging (redacted headers).
//  6. CORS             - Browser security headers.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && s.Config.Server.DashboardURL != "" {
		return []string{s.Config.Server.DashboardURL}
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware sets a deadline on the request context. If
// the deadline is exceeded, downstream handlers receive a cancelled
// context; the response is controlled by the handler's behavior on
// context cancellation.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware generates or propagates a unique request ID for
// correlation across logs and traces. If the incoming request contains
// an X-Request-Id header, that value is reused; otherwise a new random
// ID is generated.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateRequestID produces a cryptographically random hex string
// suitable for use as a request correlation ID.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// If crypto/rand fails we still need a non-empty ID.
		return "fallback-" + hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}

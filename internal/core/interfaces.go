package core

import (
	"context"
	"time"

	"zoneatlas/internal/types"
)

// Authenticator decouples the HTTP layer from specific auth mechanisms
// (DB lookups), allowing for easy mocking in tests.
type Authenticator interface {
	// ResolveToken resolves a bearer token into the Actor it represents.
	//
	// Distinct error codes:
	//  - ErrCodeAuthTokenInvalid if the token is malformed or not found.
	//  - ErrCodeAuthTokenRevoked if the token has been revoked.
	//  - ErrCodeAuthTokenExpired if the token exists but has expired.
	ResolveToken(ctx context.Context, token string) (*types.Actor, error)
}

// RateLimitStore abstracts the backing store for rate limiting.
// Production uses PostgreSQL atomic updates; tests use in-memory fakes.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for the given
	// key and checks it against the limit within the window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (count int, allowed bool, resetAt time.Time, err error)
}

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

package db

import (
	"context"
	"time"

	"zoneatlas/internal/types"
)

// RateLimitRepo is a PostgreSQL-backed fixed-window rate limiter keyed
// by arbitrary string (the API uses "search:<ip>"). The counter bump
// and window rollover happen in a single atomic upsert.
type RateLimitRepo struct {
	db    DBTX
	clock types.Clock
}

// NewRateLimitRepo creates a new RateLimitRepo backed by the given
// database connection (pool or transaction).
func NewRateLimitRepo(db DBTX, clock types.Clock) *RateLimitRepo {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &RateLimitRepo{db: db, clock: clock}
}

// incrementQuery resets the window when it has elapsed, otherwise bumps
// the counter, and returns the post-bump count with the window start.
const incrementQuery = `
	INSERT INTO rate_limits (key, count, window_start)
	VALUES ($1, 1, $2)
	ON CONFLICT (key) DO UPDATE SET
		count = CASE WHEN rate_limits.window_start <= $3 THEN 1 ELSE rate_limits.count + 1 END,
		window_start = CASE WHEN rate_limits.window_start <= $3 THEN $2 ELSE rate_limits.window_start END
	RETURNING count, window_start`

// IncrementAndCheck atomically increments the counter for key and
// checks it against limit within the window.
func (r *RateLimitRepo) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (count int, allowed bool, resetAt time.Time, err error) {
	now := r.clock.Now()
	cutoff := now.Add(-window)

	var windowStart time.Time
	if err := r.db.QueryRow(ctx, incrementQuery, key, now, cutoff).Scan(&count, &windowStart); err != nil {
		return 0, false, time.Time{}, types.NewAppError(types.ErrCodeInternalDB, "rate limit increment failed", err)
	}

	return count, count <= limit, windowStart.Add(window), nil
}

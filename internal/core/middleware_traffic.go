package core

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"zoneatlas/internal/types"
)

// RateLimitByIP enforces a fixed-window per-IP limit for one named
// bucket. The search bucket runs at 20 requests per minute per IP.
//
// If no RateLimitStore is configured (e.g., during tests), the
// middleware passes through without limiting. On store errors it fails
// open: a rate limit store outage must not block all API traffic.
//
// On every response the middleware sets:
//   - X-RateLimit-Limit: the maximum requests in the window.
//   - X-RateLimit-Remaining: requests remaining.
//   - X-RateLimit-Reset: Unix timestamp when the window resets.
//
// When limited it also sets Retry-After.
func (s *Server) RateLimitByIP(bucket string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.RateLimitStore == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := bucket + ":" + clientIP(r)
			count, allowed, resetAt, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, window)
			if err != nil {
				s.Logger.Error("rate limit store error",
					slog.String("bucket", bucket),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			remaining := limit - count
			if remaining < 0 {
				remaining = 0
			}
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				s.Logger.Warn("rate limit exceeded",
					slog.String("bucket", bucket),
					slog.String("ip", clientIP(r)),
					slog.String("path", r.URL.Path),
				)

				retryAfter := int(time.Until(resetAt).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				h.Set("Retry-After", strconv.Itoa(retryAfter))

				Error(w, r, types.NewAppError(types.ErrCodeRateLimit,
					"Rate limit exceeded. Please retry after the reset time.", nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the originating client IP, preferring the leftmost
// X-Forwarded-For entry set by the edge proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

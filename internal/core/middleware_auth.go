package core

import (
	"net/http"
	"strings"

	"zoneatlas/internal/types"
)

// AuthMiddleware resolves an optional bearer token into an Actor.
//
// Zoning search is open to anonymous callers at the free tier, so a
// missing Authorization header is NOT an error: the request proceeds
// with no Actor in context and downstream code treats it as free tier.
// A header that is present but unresolvable is rejected with 401 so a
// paying customer with a broken token gets a clear signal instead of
// silently degraded results.
//
// Handlers that require authentication (history, report purchases)
// enforce presence themselves via RequireActor.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(authHeader)
		if token == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Bearer token is required", nil))
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			Error(w, r, err)
			return
		}
		if actor == nil {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid authentication token", nil))
			return
		}

		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), actor)))
	})
}

// extractBearerToken parses the Authorization header value and returns
// the token string. It expects the format "Bearer <token>"
// (case-insensitive scheme per RFC 7235). Returns "" if the format is
// invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// RequireActor extracts the authenticated Actor or writes a 401.
// Returns nil when the response has already been written.
func RequireActor(w http.ResponseWriter, r *http.Request) *types.Actor {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return nil
	}
	return actor
}

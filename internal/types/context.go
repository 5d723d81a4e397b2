package types

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	actorContextKey     contextKey = "actor"
	requestIDContextKey contextKey = "request_id"
	loggerContextKey    contextKey = "logger"
)

// Actor identifies the authenticated principal for a request. A nil
// Actor in context means the request is anonymous and is treated as
// the free tier.
type Actor struct {
	UserID     uuid.UUID
	Email      string
	Tier       PlanTier
	IsTestMode bool
	Source     string // "api_token" or "session"
}

// WithActor returns a new context carrying the given actor.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// GetActor extracts the actor from context. Returns nil, false when the
// request is unauthenticated.
func GetActor(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok || actor == nil {
		return nil, false
	}
	return actor, true
}

// TierFromContext resolves the effective plan tier for a request,
// defaulting to free for anonymous requests.
func TierFromContext(ctx context.Context) PlanTier {
	if actor, ok := GetActor(ctx); ok && actor.Tier.IsValid() {
		return actor.Tier
	}
	return PlanTierFree
}

// WithRequestID returns a new context carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// GetRequestID extracts the request ID from context, or "" if absent.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// WithLogger returns a new context carrying a request-scoped logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext extracts the request-scoped logger, or nil.
func LoggerFromContext(ctx context.Context) Logger {
	logger, _ := ctx.Value(loggerContextKey).(Logger)
	return logger
}

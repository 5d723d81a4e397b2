// Package auth resolves bearer API tokens into request actors. Tokens
// look like za_live_<40 hex chars> (za_test_ in test mode); the first
// 8 characters of the hex body are stored in clear for lookup and the
// full token is verified against a bcrypt hash, so a database leak
// alone cannot forge a working token.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"zoneatlas/internal/types"
)

// bcryptCost matches the platform-wide hashing cost.
const bcryptCost = 12

const (
	tokenPrefixLive = "za_live_"
	tokenPrefixTest = "za_test_"
	prefixLen       = 8
	secretLen       = 32
)

// TokenStore is the narrow data access the authenticator needs.
type TokenStore interface {
	FindByPrefix(ctx context.Context, prefix string) (*types.APIToken, error)
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}

// SubscriptionLookup resolves a user's subscription for tier resolution.
type SubscriptionLookup interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*types.UserSubscription, error)
}

// Service authenticates bearer tokens.
type Service struct {
	tokens TokenStore
	subs   SubscriptionLookup
	clock  types.Clock
	logger types.Logger
}

// NewService creates an auth Service.
func NewService(tokens TokenStore, subs SubscriptionLookup, clock types.Clock, logger types.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Service{tokens: tokens, subs: subs, clock: clock, logger: logger}
}

// ResolveToken validates a bearer token and returns the Actor it
// represents.
//
// Distinct error codes:
//   - ErrCodeAuthTokenInvalid for malformed, unknown, or wrong-secret tokens
//   - ErrCodeAuthTokenRevoked for revoked tokens
//   - ErrCodeAuthTokenExpired for expired tokens
//
// The tier comes from the user's subscription row; a user without one
// resolves to the free tier so new accounts work before the signup
// trigger lands.
func (s *Service) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	prefix, isTest, err := splitToken(token)
	if err != nil {
		return nil, err
	}

	record, err := s.tokens.FindByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	if record.RevokedAt != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenRevoked, "token has been revoked", nil)
	}
	if record.ExpiresAt != nil && record.ExpiresAt.Before(s.clock.Now()) {
		return nil, types.NewAppError(types.ErrCodeAuthTokenExpired, "token has expired", nil)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.SecretHash), []byte(token)); err != nil {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token secret mismatch", nil)
	}

	tier := types.PlanTierFree
	if sub, err := s.subs.GetByUserID(ctx, record.UserID); err == nil {
		if sub.Status.IsEntitled() {
			tier = types.NormalizeTier(string(sub.Tier))
		}
	} else if appErr, ok := err.(*types.AppError); !ok || appErr.Code != types.ErrCodeNotFoundSubscription {
		// A database failure here must not silently grant free tier on a
		// paid account; surface it so the caller can 500.
		return nil, err
	}

	// Best effort; usage tracking must not fail authentication.
	if err := s.tokens.TouchLastUsed(ctx, record.ID); err != nil {
		s.logger.Warn("failed to record token usage", "token_id", record.ID, "error", err.Error())
	}

	return &types.Actor{
		UserID:     record.UserID,
		Tier:       tier,
		IsTestMode: isTest,
		Source:     "api_token",
	}, nil
}

// splitToken validates the token shape and returns its lookup prefix.
func splitToken(token string) (prefix string, isTest bool, err error) {
	var rest string
	switch {
	case strings.HasPrefix(token, tokenPrefixLive):
		rest = strings.TrimPrefix(token, tokenPrefixLive)
	case strings.HasPrefix(token, tokenPrefixTest):
		rest = strings.TrimPrefix(token, tokenPrefixTest)
		isTest = true
	default:
		return "", false, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unrecognized token format", nil)
	}
	if len(rest) < prefixLen+secretLen {
		return "", false, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token too short", nil)
	}
	return rest[:prefixLen], isTest, nil
}

// GenerateToken mints a new API token for a user. It returns the
// clear-text token (shown once) and the stored record with the bcrypt
// hash. Used by the operator tooling.
func GenerateToken(userID uuid.UUID, name string, testMode bool, expiresAt *time.Time) (string, *types.APIToken, error) {
	raw := make([]byte, (prefixLen+secretLen)/2)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("token entropy: %w", err)
	}
	body := hex.EncodeToString(raw)

	scheme := tokenPrefixLive
	if testMode {
		scheme = tokenPrefixTest
	}
	token := scheme + body

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("token hash: %w", err)
	}

	return token, &types.APIToken{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       name,
		Prefix:     body[:prefixLen],
		SecretHash: string(hash),
		IsTestMode: testMode,
		ExpiresAt:  expiresAt,
	}, nil
}

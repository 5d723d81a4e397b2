package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneatlas/internal/types"
)

// fakeTokenStore serves one token record keyed by prefix.
type fakeTokenStore struct {
	record  *types.APIToken
	touched int
}

func (f *fakeTokenStore) FindByPrefix(ctx context.Context, prefix string) (*types.APIToken, error) {
	if f.record == nil || f.record.Prefix != prefix {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown token", nil)
	}
	return f.record, nil
}

func (f *fakeTokenStore) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	f.touched++
	return nil
}

type fakeSubLookup struct {
	sub *types.UserSubscription
	err error
}

func (f *fakeSubLookup) GetByUserID(ctx context.Context, userID uuid.UUID) (*types.UserSubscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func mintToken(t *testing.T, userID uuid.UUID, expiresAt *time.Time) (string, *types.APIToken) {
	t.Helper()
	token, record, err := GenerateToken(userID, "test token", false, expiresAt)
	require.NoError(t, err)
	return token, record
}

func TestService_ResolveToken_Success(t *testing.T) {
	userID := uuid.New()
	token, record := mintToken(t, userID, nil)
	store := &fakeTokenStore{record: record}
	subs := &fakeSubLookup{sub: &types.UserSubscription{
		UserID: userID,
		Tier:   types.PlanTierPro,
		Status: types.SubscriptionStatusActive,
	}}

	svc := NewService(store, subs, fixedClock{time.Now()}, types.NopLogger{})

	actor, err := svc.ResolveToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, actor.UserID)
	assert.Equal(t, types.PlanTierPro, actor.Tier)
	assert.False(t, actor.IsTestMode)
	assert.Equal(t, "api_token", actor.Source)
	assert.Equal(t, 1, store.touched)
}

func TestService_ResolveToken_WrongSecret(t *testing.T) {
	userID := uuid.New()
	_, record := mintToken(t, userID, nil)
	// A second token sharing the prefix but with a different secret.
	otherToken := "za_live_" + record.Prefix + "0123456789abcdef0123456789abcdef"

	store := &fakeTokenStore{record: record}
	svc := NewService(store, &fakeSubLookup{}, nil, types.NopLogger{})

	_, err := svc.ResolveToken(context.Background(), otherToken)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenInvalid, appErr.Code)
}

func TestService_ResolveToken_Revoked(t *testing.T) {
	userID := uuid.New()
	token, record := mintToken(t, userID, nil)
	revokedAt := time.Now().Add(-time.Hour)
	record.RevokedAt = &revokedAt

	svc := NewService(&fakeTokenStore{record: record}, &fakeSubLookup{}, nil, types.NopLogger{})

	_, err := svc.ResolveToken(context.Background(), token)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenRevoked, appErr.Code)
}

func TestService_ResolveToken_Expired(t *testing.T) {
	userID := uuid.New()
	expires := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	token, record := mintToken(t, userID, &expires)

	svc := NewService(&fakeTokenStore{record: record}, &fakeSubLookup{},
		fixedClock{expires.Add(time.Minute)}, types.NopLogger{})

	_, err := svc.ResolveToken(context.Background(), token)
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeAuthTokenExpired, appErr.Code)
}

func TestService_ResolveToken_NoSubscriptionIsFreeTier(t *testing.T) {
	userID := uuid.New()
	token, record := mintToken(t, userID, nil)
	subs := &fakeSubLookup{err: types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for user", nil)}

	svc := NewService(&fakeTokenStore{record: record}, subs, nil, types.NopLogger{})

	actor, err := svc.ResolveToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, types.PlanTierFree, actor.Tier)
}

func TestService_ResolveToken_CanceledSubscriptionIsFreeTier(t *testing.T) {
	userID := uuid.New()
	token, record := mintToken(t, userID, nil)
	subs := &fakeSubLookup{sub: &types.UserSubscription{
		UserID: userID,
		Tier:   types.PlanTierBusiness,
		Status: types.SubscriptionStatusCanceled,
	}}

	svc := NewService(&fakeTokenStore{record: record}, subs, nil, types.NopLogger{})

	actor, err := svc.ResolveToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, types.PlanTierFree, actor.Tier)
}

func TestService_ResolveToken_MalformedToken(t *testing.T) {
	svc := NewService(&fakeTokenStore{}, &fakeSubLookup{}, nil, types.NopLogger{})

	for _, token := range []string{"", "Bearer xyz", "za_live_short", "sk_live_other_scheme"} {
		_, err := svc.ResolveToken(context.Background(), token)
		require.Error(t, err, "token %q should be rejected", token)
	}
}

func TestGenerateToken_TestMode(t *testing.T) {
	token, record, err := GenerateToken(uuid.New(), "ci token", true, nil)
	require.NoError(t, err)
	assert.True(t, record.IsTestMode)
	assert.Contains(t, token, "za_test_")
	assert.Len(t, record.Prefix, prefixLen)
}

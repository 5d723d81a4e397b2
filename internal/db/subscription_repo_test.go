package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"zoneatlas/internal/types"
)

func TestSubscriptionRepo_GetByUserID_NotFound(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByUserID(context.Background(), uuid.New())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

func TestSubscriptionRepo_DowngradeToFree(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewSubscriptionRepo(dbx)
	limit := 3
	saveLimit := 1
	exportLimit := 0

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.DowngradeToFree(context.Background(), "sub_123", types.PlanLimits{
		Tier:        types.PlanTierFree,
		SearchLimit: &limit,
		SaveLimit:   &saveLimit,
		ExportLimit: &exportLimit,
	})
	require.NoError(t, err)

	// Replaying the deletion event hits zero rows and reports not-found,
	// which the webhook handler treats as already-processed.
	dbx2 := new(mockDBTX)
	repo2 := NewSubscriptionRepo(dbx2)
	dbx2.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err = repo2.DowngradeToFree(context.Background(), "sub_123", types.PlanLimits{Tier: types.PlanTierFree})
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundSubscription, appErr.Code)
}

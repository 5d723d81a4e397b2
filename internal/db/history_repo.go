package db

import (
	"context"

	"github.com/google/uuid"

	"zoneatlas/internal/types"
)

// HistoryRepo provides data access for the search_history table.
// Entries are append-only; there is no update path.
type HistoryRepo struct {
	db DBTX
}

// NewHistoryRepo creates a new HistoryRepo backed by the given database
// connection (pool or transaction).
func NewHistoryRepo(db DBTX) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// Append records one completed search. Failure here must not fail the
// surrounding lookup; callers log and continue.
func (r *HistoryRepo) Append(ctx context.Context, entry *types.SearchHistoryEntry) error {
	const query = `
		INSERT INTO search_history (id, user_id, address, latitude, longitude, district_id, district_code, searched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`

	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.UserID, entry.Address, entry.Latitude, entry.Longitude,
		entry.DistrictID, nullIfEmpty(entry.DistrictCode),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "search history insert failed", err)
	}
	return nil
}

// ListByUser returns a user's search history, newest first, capped at
// limit rows.
func (r *HistoryRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]types.SearchHistoryEntry, error) {
	const query = `
		SELECT id, user_id, address, latitude, longitude, district_id, COALESCE(district_code, ''), searched_at
		FROM search_history
		WHERE user_id = $1
		ORDER BY searched_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "search history query failed", err)
	}
	defer rows.Close()

	var entries []types.SearchHistoryEntry
	for rows.Next() {
		var e types.SearchHistoryEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Address, &e.Latitude, &e.Longitude, &e.DistrictID, &e.DistrictCode, &e.SearchedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan search history row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating search history rows", err)
	}
	return entries, nil
}

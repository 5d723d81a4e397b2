package db

import (
	"context"

	"github.com/google/uuid"

	"zoneatlas/internal/types"
)

// UsageRepo provides data access for the search_usage table, which
// tracks the per-user monthly search counter.
//
// The table has a composite primary key (user_id, period_start) where
// period_start is the first day of the calendar month. All mutation
// goes through TryConsume so the increment-and-check is a single
// atomic statement; application code never read-modify-writes the
// counter.
type UsageRepo struct {
	db DBTX
	// freeSearchLimit is applied when the user has no subscription row.
	// A brand new account behaves like the free tier until the signup
	// trigger lands.
	freeSearchLimit int
}

// NewUsageRepo creates a new UsageRepo backed by the given database
// connection. freeSearchLimit is the fallback monthly ceiling for users
// without a subscription row.
func NewUsageRepo(db DBTX, freeSearchLimit int) *UsageRepo {
	return &UsageRepo{db: db, freeSearchLimit: freeSearchLimit}
}

// tryConsumeQuery performs the whole quota decision in one statement so
// two concurrent requests cannot both pass when exactly one search
// remains. The conditional upsert only bumps the counter while it is
// under the limit; a NULL limit (unlimited) always bumps, preserving
// the counter for observability. The final projection reports the
// effective tier, limit, post-increment usage, and whether the consume
// was allowed.
const tryConsumeQuery = `
WITH sub AS (
    SELECT s.tier, s.search_limit, TRUE AS found
    FROM user_subscriptions s
    WHERE s.user_id = $1
),
eff AS (
    SELECT COALESCE((SELECT tier FROM sub), 'free') AS tier,
           CASE WHEN (SELECT found FROM sub) THEN (SELECT search_limit FROM sub)
                ELSE $2::int
           END AS search_limit
),
bumped AS (
    INSERT INTO search_usage AS u (user_id, period_start, used)
    SELECT $1, date_trunc('month', now())::date, 1
    WHERE (SELECT search_limit FROM eff) IS NULL
       OR (SELECT search_limit FROM eff) > 0
    ON CONFLICT (user_id, period_start) DO UPDATE
        SET used = u.used + 1, updated_at = now()
        WHERE (SELECT search_limit FROM eff) IS NULL
           OR u.used < (SELECT search_limit FROM eff)
    RETURNING used
)
SELECT (SELECT tier FROM eff),
       (SELECT search_limit FROM eff),
       COALESCE(
           (SELECT used FROM bumped),
           (SELECT used FROM search_usage
            WHERE user_id = $1 AND period_start = date_trunc('month', now())::date),
           0),
       (SELECT used FROM bumped) IS NOT NULL`

// TryConsume atomically consumes one search from the user's monthly
// quota. It returns the decision with the effective tier and limit; a
// denied decision is not an error. Database failures are hard errors
// and must abort the surrounding lookup.
func (r *UsageRepo) TryConsume(ctx context.Context, userID uuid.UUID) (types.UsageDecision, error) {
	var (
		decision types.UsageDecision
		rawTier  string
	)
	err := r.db.QueryRow(ctx, tryConsumeQuery, userID, r.freeSearchLimit).Scan(
		&rawTier, &decision.Limit, &decision.Used, &decision.Allowed,
	)
	if err != nil {
		return types.UsageDecision{}, types.NewAppError(types.ErrCodeInternalDB, "usage consume failed", err)
	}

	decision.Tier = types.NormalizeTier(rawTier)
	decision.Unlimited = decision.Limit == nil
	return decision, nil
}

// CurrentUsage returns the user's search count for the current month
// without consuming quota. Used by the dashboard endpoints.
func (r *UsageRepo) CurrentUsage(ctx context.Context, userID uuid.UUID) (int, error) {
	const query = `
		SELECT COALESCE(
			(SELECT used FROM search_usage
			 WHERE user_id = $1 AND period_start = date_trunc('month', now())::date),
			0)`

	var used int
	if err := r.db.QueryRow(ctx, query, userID).Scan(&used); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "usage query failed", err)
	}
	return used, nil
}

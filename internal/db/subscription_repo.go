package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"zoneatlas/internal/types"
)

// SubscriptionRepo provides data access for the user_subscriptions
// table. Rows are mutated exclusively by the Stripe webhook handlers;
// everything else reads.
//
// All writes use set semantics (full overwrite of the mirrored fields)
// so replaying the same webhook event is harmless.
type SubscriptionRepo struct {
	db DBTX
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the
// given database connection (pool or transaction).
func NewSubscriptionRepo(db DBTX) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

const subscriptionColumns = `
	id, user_id, tier, status, search_limit, save_limit, export_limit,
	current_period_start, current_period_end,
	COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
	created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.UserSubscription, error) {
	var s types.UserSubscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.Tier, &s.Status,
		&s.SearchLimit, &s.SaveLimit, &s.ExportLimit,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd,
		&s.StripeCustomerID, &s.StripeSubscriptionID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByUserID returns the subscription for a user, or a not-found error.
func (r *SubscriptionRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*types.UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE user_id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for user", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "subscription query failed", err)
	}
	return sub, nil
}

// GetByStripeSubscriptionID returns the subscription mirrored from the
// given Stripe subscription, or a not-found error.
func (r *SubscriptionRepo) GetByStripeSubscriptionID(ctx context.Context, stripeSubID string) (*types.UserSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE stripe_subscription_id = $1`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, stripeSubID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for stripe id", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "subscription query failed", err)
	}
	return sub, nil
}

// Upsert overwrites the mirrored subscription state for a user, keyed
// by user_id. Safe to call repeatedly with the same event payload.
func (r *SubscriptionRepo) Upsert(ctx context.Context, sub *types.UserSubscription) error {
	const query = `
		INSERT INTO user_subscriptions (
			id, user_id, tier, status, search_limit, save_limit, export_limit,
			current_period_start, current_period_end,
			stripe_customer_id, stripe_subscription_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier,
			status = EXCLUDED.status,
			search_limit = EXCLUDED.search_limit,
			save_limit = EXCLUDED.save_limit,
			export_limit = EXCLUDED.export_limit,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			updated_at = now()`

	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.UserID, sub.Tier, sub.Status,
		sub.SearchLimit, sub.SaveLimit, sub.ExportLimit,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		nullIfEmpty(sub.StripeCustomerID), nullIfEmpty(sub.StripeSubscriptionID),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "subscription upsert failed", err)
	}
	return nil
}

// UpdateStatus sets only the lifecycle status for the subscription
// mirrored from the given Stripe subscription id.
func (r *SubscriptionRepo) UpdateStatus(ctx context.Context, stripeSubID string, status types.SubscriptionStatus) error {
	const query = `
		UPDATE user_subscriptions
		SET status = $2, updated_at = now()
		WHERE stripe_subscription_id = $1`

	tag, err := r.db.Exec(ctx, query, stripeSubID, status)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "subscription status update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for stripe id", nil)
	}
	return nil
}

// DowngradeToFree resets a canceled subscription to the free tier's
// fixed limits and clears the Stripe subscription linkage. The limits
// come from the plan registry so cancellation yields exactly the free
// plan, not merely an inactive paid row.
func (r *SubscriptionRepo) DowngradeToFree(ctx context.Context, stripeSubID string, freeLimits types.PlanLimits) error {
	const query = `
		UPDATE user_subscriptions
		SET tier = $2,
		    status = $3,
		    search_limit = $4,
		    save_limit = $5,
		    export_limit = $6,
		    stripe_subscription_id = NULL,
		    updated_at = now()
		WHERE stripe_subscription_id = $1`

	tag, err := r.db.Exec(ctx, query, stripeSubID,
		types.PlanTierFree, types.SubscriptionStatusCanceled,
		freeLimits.SearchLimit, freeLimits.SaveLimit, freeLimits.ExportLimit,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "subscription downgrade failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription for stripe id", nil)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"zoneatlas/internal/types"
)

// PurchaseRepo provides data access for the report_purchases table.
// The state column is only mutated through guarded transitions so
// concurrent webhook redeliveries cannot race a purchase into an
// illegal state.
type PurchaseRepo struct {
	db DBTX
}

// NewPurchaseRepo creates a new PurchaseRepo backed by the given
// database connection (pool or transaction).
func NewPurchaseRepo(db DBTX) *PurchaseRepo {
	return &PurchaseRepo{db: db}
}

const purchaseColumns = `
	id, user_id, email, address, latitude, longitude,
	stripe_session_id, state, COALESCE(error_message, ''), COALESCE(errored_state, ''),
	created_at, updated_at, completed_at`

func scanPurchase(row pgx.Row) (*types.ReportPurchase, error) {
	var p types.ReportPurchase
	err := row.Scan(
		&p.ID, &p.UserID, &p.Email, &p.Address, &p.Latitude, &p.Longitude,
		&p.StripeSessionID, &p.State, &p.ErrorMessage, &p.ErroredState,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateIfAbsent inserts a new purchase in the created state, keyed by
// the Stripe checkout session id. When a purchase for the session
// already exists (webhook redelivery) the existing row is returned
// unchanged, so replaying the same checkout event never spawns a
// second pipeline run.
func (r *PurchaseRepo) CreateIfAbsent(ctx context.Context, p *types.ReportPurchase) (*types.ReportPurchase, error) {
	const insert = `
		INSERT INTO report_purchases (id, user_id, email, address, latitude, longitude, stripe_session_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (stripe_session_id) DO NOTHING`

	_, err := r.db.Exec(ctx, insert,
		p.ID, p.UserID, p.Email, p.Address, p.Latitude, p.Longitude,
		p.StripeSessionID, types.PurchaseStateCreated,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "purchase insert failed", err)
	}
	return r.GetByStripeSessionID(ctx, p.StripeSessionID)
}

// GetByID returns a purchase by primary key, or a not-found error.
func (r *PurchaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*types.ReportPurchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM report_purchases WHERE id = $1`
	p, err := scanPurchase(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPurchase, "no purchase with id", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "purchase query failed", err)
	}
	return p, nil
}

// GetByStripeSessionID returns the purchase for a checkout session, or
// a not-found error.
func (r *PurchaseRepo) GetByStripeSessionID(ctx context.Context, sessionID string) (*types.ReportPurchase, error) {
	query := `SELECT ` + purchaseColumns + ` FROM report_purchases WHERE stripe_session_id = $1`
	p, err := scanPurchase(r.db.QueryRow(ctx, query, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPurchase, "no purchase for session", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "purchase query failed", err)
	}
	return p, nil
}

// Transition advances a purchase from one pipeline state to the next.
// The transition is validated against the state machine and then
// guarded in SQL by the expected current state, so a concurrent worker
// that already advanced the row causes a conflict error instead of a
// silent double-apply.
func (r *PurchaseRepo) Transition(ctx context.Context, id uuid.UUID, from, to types.PurchaseState) error {
	if !from.CanTransitionTo(to) {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictPurchaseState,
			"illegal purchase state transition", nil,
			map[string]any{"from": string(from), "to": string(to)})
	}

	const query = `
		UPDATE report_purchases
		SET state = $3,
		    error_message = NULL,
		    errored_state = NULL,
		    completed_at = CASE WHEN $3 = 'complete' THEN now() ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1 AND state = $2`

	tag, err := r.db.Exec(ctx, query, id, from, to)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "purchase transition failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictPurchaseState,
			"purchase no longer in expected state", nil,
			map[string]any{"expected": string(from), "attempted": string(to)})
	}
	return nil
}

// MarkErrored moves a purchase to the errored terminal state, recording
// the failure message and the state at which it occurred.
func (r *PurchaseRepo) MarkErrored(ctx context.Context, id uuid.UUID, atState types.PurchaseState, message string) error {
	const query = `
		UPDATE report_purchases
		SET state = $2, errored_state = $3, error_message = $4, updated_at = now()
		WHERE id = $1 AND state <> 'complete'`

	tag, err := r.db.Exec(ctx, query, id, types.PurchaseStateErrored, atState, message)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "purchase error update failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPurchase, "no purchase to mark errored", nil)
	}
	return nil
}

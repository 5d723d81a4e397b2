// This file implements the Stripe webhook endpoint that mirrors
// billing state into local rows and kicks off report delivery for
// one-time purchases.
//
// The endpoint is NOT behind bearer auth; security comes from
// verifying the Stripe-Signature header. Every handler uses idempotent
// set semantics so Stripe's redeliveries are harmless.
package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zoneatlas/internal/core"
	"zoneatlas/internal/external"
	"zoneatlas/internal/types"
)

// maxWebhookBodySize caps Stripe webhook payloads (64 KB). Stripe
// events are small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// webhookSourceName tags report jobs enqueued from this endpoint.
const webhookSourceName = "stripe_webhook"

// SubscriptionMirror is the subset of the subscription repository the
// webhook handler needs.
type SubscriptionMirror interface {
	Upsert(ctx context.Context, sub *types.UserSubscription) error
	UpdateStatus(ctx context.Context, stripeSubID string, status types.SubscriptionStatus) error
	DowngradeToFree(ctx context.Context, stripeSubID string, freeLimits types.PlanLimits) error
}

// PurchaseCreator creates report purchase rows idempotently.
type PurchaseCreator interface {
	CreateIfAbsent(ctx context.Context, p *types.ReportPurchase) (*types.ReportPurchase, error)
}

// ReportEnqueuer hands a purchase to the report worker.
type ReportEnqueuer interface {
	EnqueueReport(ctx context.Context, purchaseID uuid.UUID, source string) error
}

// PlanResolver maps a tier to its fixed limits.
type PlanResolver interface {
	Limits(tier types.PlanTier) types.PlanLimits
}

// StripeWebhookHandler processes asynchronous billing events from
// Stripe.
type StripeWebhookHandler struct {
	verifier   external.WebhookVerifier
	subs       SubscriptionMirror
	purchases  PurchaseCreator
	reports    ReportEnqueuer
	plans      PlanResolver
	priceTiers map[string]types.PlanTier
	secret     string
	logger     *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler. priceTiers
// maps Stripe price ids to plan tiers (from STRIPE_PRICE_TIERS_JSON).
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	subs SubscriptionMirror,
	purchases PurchaseCreator,
	reports ReportEnqueuer,
	plans PlanResolver,
	priceTiers map[string]types.PlanTier,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:   verifier,
		subs:       subs,
		purchases:  purchases,
		reports:    reports,
		plans:      plans,
		priceTiers: priceTiers,
		secret:     secret,
		logger:     logger,
	}
}

// RegisterRoutes mounts the webhook endpoint on the public webhook
// router group.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/stripe", h.Handle)
}

// Handle verifies, parses, and dispatches one Stripe event.
//
// Subscription mirror failures are logged and acknowledged with 200 so
// Stripe does not retry forever against a poisoned event; the local
// row converges on the next event for that subscription. Report
// purchase failures return 5xx instead: those events carry money
// already taken for a report not yet delivered, and Stripe's retry
// schedule is the recovery path.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"failed to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"missing Stripe-Signature header", nil))
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed",
			"error", err.Error(),
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid,
			"webhook signature verification failed", err))
		return
	}

	event, err := parseStripeEvent(payload)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"invalid webhook event payload", err))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.eventID(),
		"event_type", event.eventType(),
	)

	if err := h.dispatch(r.Context(), event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.eventID(),
			"event_type", event.eventType(),
			"error", err.Error(),
		)
		if _, critical := event.(*checkoutCompletedEvent); critical {
			core.Error(w, r, err)
			return
		}
		// Acknowledge non-critical failures; state converges on the
		// next event for the same subscription.
	}

	w.WriteHeader(http.StatusOK)
}

// dispatch routes a parsed event to its handler. The switch is
// exhaustive over the closed event union; unknown event types parse to
// ignoredEvent.
func (h *StripeWebhookHandler) dispatch(ctx context.Context, event stripeEvent) error {
	switch e := event.(type) {
	case *checkoutCompletedEvent:
		return h.handleCheckoutCompleted(ctx, e)
	case *subscriptionUpdatedEvent:
		return h.handleSubscriptionUpdated(ctx, e)
	case *subscriptionDeletedEvent:
		return h.handleSubscriptionDeleted(ctx, e)
	case *invoicePaidEvent:
		return h.handleInvoicePaid(ctx, e)
	case *invoicePaymentFailedEvent:
		return h.handleInvoicePaymentFailed(ctx, e)
	case *ignoredEvent:
		h.logger.Info("ignoring unhandled webhook event type", "event_type", e.Type)
		return nil
	default:
		return fmt.Errorf("unreachable event variant %T", event)
	}
}

// handleCheckoutCompleted processes checkout.session.completed.
//
// mode=payment sessions are one-time report purchases: a purchase row
// is created idempotently (keyed by the session id) and a report job
// is enqueued. mode=subscription sessions mirror the new subscription.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, e *checkoutCompletedEvent) error {
	session := e.Session

	switch session.Mode {
	case "payment":
		if session.PaymentStatus != "paid" {
			h.logger.Info("skipping unpaid checkout session",
				"session_id", session.ID,
				"payment_status", session.PaymentStatus,
			)
			return nil
		}
		return h.createReportPurchase(ctx, e)

	case "subscription":
		return h.mirrorCheckoutSubscription(ctx, e)

	default:
		h.logger.Info("ignoring checkout session with unhandled mode",
			"session_id", session.ID,
			"mode", session.Mode,
		)
		return nil
	}
}

// createReportPurchase inserts the purchase row (no-op when the event
// is a redelivery) and enqueues the report job.
func (h *StripeWebhookHandler) createReportPurchase(ctx context.Context, e *checkoutCompletedEvent) error {
	session := e.Session

	email := session.email()
	if email == "" {
		return fmt.Errorf("checkout session %s has no purchaser email", session.ID)
	}

	lat, err := strconv.ParseFloat(session.Metadata["lat"], 64)
	if err != nil {
		return fmt.Errorf("checkout session %s has invalid lat metadata: %w", session.ID, err)
	}
	lon, err := strconv.ParseFloat(session.Metadata["lon"], 64)
	if err != nil {
		return fmt.Errorf("checkout session %s has invalid lon metadata: %w", session.ID, err)
	}

	purchase := &types.ReportPurchase{
		ID:              uuid.New(),
		Email:           email,
		Address:         session.Metadata["address"],
		Latitude:        lat,
		Longitude:       lon,
		StripeSessionID: session.ID,
		State:           types.PurchaseStateCreated,
	}
	if userID, err := uuid.Parse(session.ClientReferenceID); err == nil {
		purchase.UserID = &userID
	}

	stored, err := h.purchases.CreateIfAbsent(ctx, purchase)
	if err != nil {
		return fmt.Errorf("create report purchase: %w", err)
	}

	// The worker resumes from the stored state, so enqueueing a
	// redelivered purchase is safe even mid-pipeline.
	if err := h.reports.EnqueueReport(ctx, stored.ID, webhookSourceName); err != nil {
		return fmt.Errorf("enqueue report job: %w", err)
	}

	h.logger.Info("report purchase accepted",
		"purchase_id", stored.ID.String(),
		"session_id", session.ID,
		"state", string(stored.State),
	)
	return nil
}

// mirrorCheckoutSubscription upserts the subscription row for a
// subscription-mode checkout.
func (h *StripeWebhookHandler) mirrorCheckoutSubscription(ctx context.Context, e *checkoutCompletedEvent) error {
	session := e.Session

	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		return fmt.Errorf("checkout session %s has no usable client_reference_id: %w", session.ID, err)
	}

	tier := types.NormalizeTier(session.Metadata["tier"])
	limits := h.plans.Limits(tier)

	sub := &types.UserSubscription{
		ID:                   uuid.New(),
		UserID:               userID,
		Tier:                 tier,
		Status:               types.SubscriptionStatusActive,
		SearchLimit:          limits.SearchLimit,
		SaveLimit:            limits.SaveLimit,
		ExportLimit:          limits.ExportLimit,
		StripeCustomerID:     session.Customer,
		StripeSubscriptionID: session.Subscription,
	}
	if err := h.subs.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("mirror checkout subscription: %w", err)
	}
	return nil
}

// handleSubscriptionUpdated mirrors plan and status changes. The tier
// is resolved from the subscription's price id via the configured
// price-to-tier mapping; an unknown price falls back to the free tier
// so an entitlement is never granted by accident.
func (h *StripeWebhookHandler) handleSubscriptionUpdated(ctx context.Context, e *subscriptionUpdatedEvent) error {
	sub := e.Subscription

	userID, err := uuid.Parse(sub.Metadata["user_id"])
	if err != nil {
		return fmt.Errorf("subscription %s has no usable user_id metadata: %w", sub.ID, err)
	}

	tier := types.PlanTierFree
	if priceID := sub.priceID(); priceID != "" {
		if mapped, ok := h.priceTiers[priceID]; ok {
			tier = mapped
		} else {
			h.logger.Warn("unknown stripe price id, defaulting to free tier",
				"subscription_id", sub.ID,
				"price_id", priceID,
			)
		}
	}
	limits := h.plans.Limits(tier)

	row := &types.UserSubscription{
		ID:                   uuid.New(),
		UserID:               userID,
		Tier:                 tier,
		Status:               types.SubscriptionStatus(sub.Status),
		SearchLimit:          limits.SearchLimit,
		SaveLimit:            limits.SaveLimit,
		ExportLimit:          limits.ExportLimit,
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		StripeCustomerID:     sub.Customer,
		StripeSubscriptionID: sub.ID,
	}
	if err := h.subs.Upsert(ctx, row); err != nil {
		return fmt.Errorf("mirror subscription update: %w", err)
	}
	return nil
}

// handleSubscriptionDeleted downgrades the user to the free tier's
// fixed limits. Merely marking the row canceled would leave paid
// limits in place.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, e *subscriptionDeletedEvent) error {
	freeLimits := h.plans.Limits(types.PlanTierFree)
	if err := h.subs.DowngradeToFree(ctx, e.Subscription.ID, freeLimits); err != nil {
		return fmt.Errorf("downgrade on subscription delete: %w", err)
	}
	return nil
}

// handleInvoicePaid marks the subscription active again (clears any
// past_due from a prior failed payment).
func (h *StripeWebhookHandler) handleInvoicePaid(ctx context.Context, e *invoicePaidEvent) error {
	if e.Invoice.Subscription == "" {
		// One-time invoices carry no subscription; nothing to mirror.
		return nil
	}
	if err := h.subs.UpdateStatus(ctx, e.Invoice.Subscription, types.SubscriptionStatusActive); err != nil {
		return fmt.Errorf("mark subscription active: %w", err)
	}
	return nil
}

// handleInvoicePaymentFailed records dunning state. The subscription
// stays entitled while past_due; Stripe decides when to cancel.
func (h *StripeWebhookHandler) handleInvoicePaymentFailed(ctx context.Context, e *invoicePaymentFailedEvent) error {
	if e.Invoice.Subscription == "" {
		return nil
	}
	if err := h.subs.UpdateStatus(ctx, e.Invoice.Subscription, types.SubscriptionStatusPastDue); err != nil {
		return fmt.Errorf("mark subscription past_due: %w", err)
	}
	return nil
}

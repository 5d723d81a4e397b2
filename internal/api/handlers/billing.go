package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zoneatlas/internal/core"
	"zoneatlas/internal/external"
	"zoneatlas/internal/types"
)

// BillingHandler opens subscription checkout sessions. The webhook
// mirror relies on the client_reference_id and tier metadata this
// handler attaches to each session.
type BillingHandler struct {
	checkout     CheckoutStarter
	tierPrices   map[types.PlanTier]string
	dashboardURL string
	validator    *core.Validator
	logger       *slog.Logger
}

// NewBillingHandler builds the handler. priceTiers is the configured
// price-id-to-tier mapping; the handler inverts it to find the price
// for a requested tier.
func NewBillingHandler(checkout CheckoutStarter, priceTiers map[string]types.PlanTier, dashboardURL string, v *core.Validator, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(logger)
	}
	tierPrices := make(map[types.PlanTier]string, len(priceTiers))
	for priceID, tier := range priceTiers {
		tierPrices[tier] = priceID
	}
	return &BillingHandler{
		checkout:     checkout,
		tierPrices:   tierPrices,
		dashboardURL: dashboardURL,
		validator:    v,
		logger:       logger,
	}
}

// RegisterRoutes mounts the billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Post("/checkout", h.CreateCheckout)
	})
}

type subscriptionCheckoutRequest struct {
	Tier string `json:"tier" validate:"required,plantier"`
}

type subscriptionCheckoutResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// CreateCheckout opens a subscription-mode checkout session for the
// requested tier. Requires auth: the session carries the user id as
// client_reference_id so the completed-checkout webhook can mirror the
// subscription onto the right account. Redirect URLs are constructed
// server-side; client-supplied URLs would be an open redirect.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	actor := core.RequireActor(w, r)
	if actor == nil {
		return
	}

	var req subscriptionCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	tier := types.NormalizeTier(req.Tier)
	if tier == types.PlanTierFree {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTier,
			"the free tier has no checkout; cancel the current subscription instead", nil))
		return
	}
	priceID, ok := h.tierPrices[tier]
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidTier,
			"no price is configured for this tier", nil))
		return
	}

	session, err := h.checkout.CreateCheckoutSession(r.Context(), external.CreateCheckoutSessionInput{
		Mode:              "subscription",
		PriceID:           priceID,
		SuccessURL:        h.dashboardURL + "/billing?success=true",
		CancelURL:         h.dashboardURL + "/billing?canceled=true",
		CustomerEmail:     actor.Email,
		ClientReferenceID: actor.UserID.String(),
		Metadata: map[string]string{
			"tier": string(tier),
		},
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "subscription checkout session created",
		"session_id", session.ID,
		"user_id", actor.UserID.String(),
		"tier", string(tier),
	)
	core.JSON(w, r, http.StatusCreated, subscriptionCheckoutResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	})
}

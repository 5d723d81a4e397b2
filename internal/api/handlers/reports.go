package handlers

import (
	"context"
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

// CheckoutStarter opens a Stripe-hosted checkout session.
type CheckoutStarter interface {
	CreateCheckoutSession(ctx context.Context, in external.CreateCheckoutSessionInput) (*external.CreatedCheckoutSession, error)
}

// PurchaseReader loads report purchase rows for status polling.
type PurchaseReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.ReportPurchase, error)
}

// ReportsHandler sells one-time zoning reports and exposes purchase
// status for the dashboard's polling UI.
type ReportsHandler struct {
	checkout      CheckoutStarter
	purchases     PurchaseReader
	reportPriceID string
	dashboardURL  string
	validator     *core.Validator
	logger        *slog.Logger
}

func NewReportsHandler(checkout CheckoutStarter, purchases PurchaseReader, reportPriceID, dashboardURL string, v *core.Validator, logger *slog.Logger) *ReportsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = core.NewValidator(logger)
	}
	return &ReportsHandler{
		checkout:      checkout,
		purchases:     purchases,
		reportPriceID: reportPriceID,
		dashboardURL:  dashboardURL,
		validator:     v,
		logger:        logger,
	}
}

// RegisterRoutes mounts the report purchase endpoints.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{purchaseID}", h.Status)
	})
}

type createReportRequest struct {
	Address string  `json:"address" validate:"required"`
	Lat     float64 `json:"lat" validate:"latitude"`
	Lon     float64 `json:"lon" validate:"longitude"`
	Email   string  `json:"email" validate:"omitempty,email"`
}

type createReportResponse struct {
	SessionID   string `json:"sessionId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// Create opens a payment-mode checkout session for a single report.
// Works with or without a bearer token; anonymous buyers supply an
// email, authenticated ones inherit theirs from the token.
func (h *ReportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReportRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	input := external.CreateCheckoutSessionInput{
		Mode:       "payment",
		PriceID:    h.reportPriceID,
		SuccessURL: h.dashboardURL + "/reports/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.dashboardURL + "/reports/cancel",
		Metadata: map[string]string{
			"address": req.Address,
			"lat":     formatCoord(req.Lat),
			"lon":     formatCoord(req.Lon),
		},
	}
	if actor, ok := types.GetActor(r.Context()); ok {
		input.ClientReferenceID = actor.UserID.String()
		input.CustomerEmail = actor.Email
	} else {
		if req.Email == "" {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
				"email is required for anonymous report purchases", nil))
			return
		}
		input.CustomerEmail = req.Email
	}

	session, err := h.checkout.CreateCheckoutSession(r.Context(), input)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "report checkout session created",
		"session_id", session.ID,
		"address", req.Address,
	)
	core.JSON(w, r, http.StatusCreated, createReportResponse{
		SessionID:   session.ID,
		CheckoutURL: session.URL,
	})
}

type reportStatusResponse struct {
	ID           uuid.UUID  `json:"id"`
	Address      string     `json:"address"`
	State        string     `json:"state"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Status returns the pipeline state of one purchase. Requires auth and
// ownership; anonymous purchases are tracked through the checkout
// success page instead.
func (h *ReportsHandler) Status(w http.ResponseWriter, r *http.Request) {
	actor := core.RequireActor(w, r)
	if actor == nil {
		return
	}

	purchaseID, err := uuid.Parse(chi.URLParam(r, "purchaseID"))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"invalid purchase id", err))
		return
	}

	purchase, err := h.purchases.GetByID(r.Context(), purchaseID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	// Ownership check hides other users' purchases behind the same 404
	// as a missing row.
	if purchase.UserID == nil || *purchase.UserID != actor.UserID {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundPurchase,
			"report purchase not found", nil))
		return
	}

	core.JSON(w, r, http.StatusOK, reportStatusResponse{
		ID:           purchase.ID,
		Address:      purchase.Address,
		State:        string(purchase.State),
		ErrorMessage: purchase.ErrorMessage,
		CreatedAt:    purchase.CreatedAt,
		CompletedAt:  purchase.CompletedAt,
	})
}

// formatCoord renders a coordinate with enough precision to survive
// the metadata round trip through Stripe.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

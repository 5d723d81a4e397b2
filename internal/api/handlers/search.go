// Package handlers contains the HTTP handler implementations for the
// ZoneAtlas API. Each handler defines narrow local interfaces for its
// dependencies and registers its own routes on the router groups
// mounted by the core server.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"zoneatlas/internal/core"
	"zoneatlas/internal/search"
	"zoneatlas/internal/types"
)

// ZoningSearcher runs one tier-gated zoning lookup.
type ZoningSearcher interface {
	Lookup(ctx context.Context, in search.LookupInput) (*search.LookupOutput, error)
}

// SearchHandler serves GET /api/zoning/search.
type SearchHandler struct {
	searcher   ZoningSearcher
	upgradeURL string
	logger     *slog.Logger
}

// NewSearchHandler creates a SearchHandler. upgradeURL is the public
// pricing page surfaced in quota-exceeded responses.
func NewSearchHandler(searcher ZoningSearcher, upgradeURL string, logger *slog.Logger) *SearchHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchHandler{
		searcher:   searcher,
		upgradeURL: upgradeURL,
		logger:     logger,
	}
}

// RegisterRoutes mounts the search endpoint.
func (h *SearchHandler) RegisterRoutes(r chi.Router) {
	r.Get("/zoning/search", h.Search)
}

// searchResponse is the success envelope for the search endpoint. The
// shape is part of the public API contract consumed by the dashboard
// and third-party clients.
type searchResponse struct {
	Success       bool               `json:"success"`
	Data          types.ZoningResult `json:"data"`
	UserTier      string             `json:"userTier"`
	Authenticated bool               `json:"authenticated"`
	Timestamp     string             `json:"timestamp"`
}

// quotaExceededResponse is the 429 envelope, shaped for the dashboard's
// upgrade prompt.
type quotaExceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	UpgradeURL string `json:"upgradeUrl"`
	Tier       string `json:"tier"`
	Limit      any    `json:"limit"`
}

// Search handles GET /api/zoning/search?lat=<f>&lon=<f>&address=<s>.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	latStr, lonStr := q.Get("lat"), q.Get("lon")
	if latStr == "" || lonStr == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingCoords,
			"lat and lon query parameters are required", nil))
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidLat,
			"lat must be a valid number", err))
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidLon,
			"lon must be a valid number", err))
		return
	}

	out, err := h.searcher.Lookup(r.Context(), search.LookupInput{
		Lat:     lat,
		Lon:     lon,
		Address: q.Get("address"),
	})
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeQuotaSearchExceeded {
			h.writeQuotaExceeded(w, r, appErr)
			return
		}
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, searchResponse{
		Success:       true,
		Data:          out.Result,
		UserTier:      string(out.Tier),
		Authenticated: out.Authenticated,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

// writeQuotaExceeded renders the dedicated 429 envelope with the
// upgrade link instead of the generic error shape.
func (h *SearchHandler) writeQuotaExceeded(w http.ResponseWriter, r *http.Request, appErr *types.AppError) {
	resp := quotaExceededResponse{
		Error:      string(appErr.Code),
		Message:    appErr.Message,
		UpgradeURL: h.upgradeURL,
	}
	if tier, ok := appErr.Details["tier"].(string); ok {
		resp.Tier = tier
	}
	resp.Limit = appErr.Details["limit"]

	core.JSON(w, r, http.StatusTooManyRequests, resp)
}

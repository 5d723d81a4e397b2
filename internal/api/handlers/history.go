package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"zoneatlas/internal/core"
	"zoneatlas/internal/types"
)

// historyDefaultLimit caps a listing when the client does not ask for
// a page size; historyMaxLimit caps what it may ask for.
const (
	historyDefaultLimit = 50
	historyMaxLimit     = 500
)

// HistoryLister loads a user's past searches, newest first.
type HistoryLister interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]types.SearchHistoryEntry, error)
}

// HistoryHandler serves the dashboard's search history view and its
// CSV download.
type HistoryHandler struct {
	history HistoryLister
	logger  *slog.Logger
}

func NewHistoryHandler(history HistoryLister, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{history: history, logger: logger}
}

// RegisterRoutes mounts the history endpoints. Both require auth.
func (h *HistoryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/export", h.ExportCSV)
	})
}

type historyListResponse struct {
	Success bool                       `json:"success"`
	Data    []types.SearchHistoryEntry `json:"data"`
	Count   int                        `json:"count"`
}

// List returns the caller's search history as JSON.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := core.RequireActor(w, r)
	if actor == nil {
		return
	}

	limit := historyDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
				"limit must be a positive integer", err))
			return
		}
		limit = min(parsed, historyMaxLimit)
	}

	entries, err := h.history.ListByUser(r.Context(), actor.UserID, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if entries == nil {
		entries = []types.SearchHistoryEntry{}
	}

	core.JSON(w, r, http.StatusOK, historyListResponse{
		Success: true,
		Data:    entries,
		Count:   len(entries),
	})
}

// ExportCSV streams the caller's full history as a CSV download.
func (h *HistoryHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	actor := core.RequireActor(w, r)
	if actor == nil {
		return
	}

	entries, err := h.history.ListByUser(r.Context(), actor.UserID, historyMaxLimit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	filename := fmt.Sprintf("zoning-search-history-%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	// Header row first; the write error check at Flush covers all rows.
	_ = cw.Write([]string{"searched_at", "address", "latitude", "longitude", "district_code"})
	for _, e := range entries {
		_ = cw.Write([]string{
			e.SearchedAt.UTC().Format(time.RFC3339),
			e.Address,
			strconv.FormatFloat(e.Latitude, 'f', -1, 64),
			strconv.FormatFloat(e.Longitude, 'f', -1, 64),
			e.DistrictCode,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		// Headers are already on the wire; all we can do is log.
		h.logger.WarnContext(r.Context(), "history csv export truncated",
			"user_id", actor.UserID.String(),
			"error", err.Error(),
		)
	}
}

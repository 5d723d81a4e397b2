// Package search implements the tier-gated zoning lookup gateway. It
// resolves the caller's plan tier, enforces the monthly search quota,
// runs the spatial district lookup, and assembles the result with only
// the fields the tier is entitled to see.
package search

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"zoneatlas/internal/billing"
	"zoneatlas/internal/types"
)

// ZoningStore abstracts the spatial lookup queries.
type ZoningStore interface {
	FindDistrictAtPoint(ctx context.Context, lat, lon float64) (*types.ZoningDistrict, error)
	FindFloodZoneAtPoint(ctx context.Context, lat, lon float64) (*types.FloodZone, error)
	ListPermittedUses(ctx context.Context, districtID uuid.UUID) ([]types.PermittedUse, error)
	GetDimensionalStandard(ctx context.Context, districtID uuid.UUID) (*types.DimensionalStandard, error)
	ListRequiredPermits(ctx context.Context, districtID uuid.UUID) ([]types.RequiredPermit, error)
}

// UsageMeter abstracts atomic quota consumption.
type UsageMeter interface {
	TryConsume(ctx context.Context, userID uuid.UUID) (types.UsageDecision, error)
}

// HistoryAppender records completed searches for authenticated users.
type HistoryAppender interface {
	Append(ctx context.Context, entry *types.SearchHistoryEntry) error
}

// Service orchestrates one zoning lookup end to end.
type Service struct {
	zoning  ZoningStore
	usage   UsageMeter
	history HistoryAppender
	logger  types.Logger
}

// NewService creates a search Service. history may be nil when search
// history recording is disabled.
func NewService(zoning ZoningStore, usage UsageMeter, history HistoryAppender, logger types.Logger) *Service {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Service{
		zoning:  zoning,
		usage:   usage,
		history: history,
		logger:  logger,
	}
}

// LookupInput carries one lookup request.
type LookupInput struct {
	Lat     float64
	Lon     float64
	Address string // optional, recorded in search history when present
}

// LookupOutput is the assembled lookup result plus the billing context
// the handler needs to shape its response envelope.
type LookupOutput struct {
	Result        types.ZoningResult
	Tier          types.PlanTier
	Authenticated bool
	Usage         *types.UsageDecision // nil for anonymous requests
}

// Lookup resolves the zoning profile at a coordinate.
//
// Anonymous callers get free-tier results with no quota accounting.
// Authenticated callers consume one unit of their monthly search quota
// before the spatial query runs; an exhausted quota returns a
// quota_search_exceeded error carrying the tier and limit, and no
// lookup is performed.
//
// The district lookup itself is critical. The satellite fetches
// (permitted uses, dimensional standards, flood zone, required
// permits) are not: a failure there is logged and the field degrades
// to empty or null so the caller still gets the district.
func (s *Service) Lookup(ctx context.Context, in LookupInput) (*LookupOutput, error) {
	if err := validateCoordinates(in.Lat, in.Lon); err != nil {
		return nil, err
	}

	actor, authenticated := types.GetActor(ctx)
	tier := types.TierFromContext(ctx)

	var usage *types.UsageDecision
	if authenticated {
		decision, err := s.usage.TryConsume(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		// The subscription table is authoritative for the effective
		// tier; the token snapshot may be stale.
		tier = decision.Tier
		usage = &decision

		if !decision.Allowed {
			details := map[string]any{
				"tier": string(decision.Tier),
				"used": decision.Used,
			}
			if decision.Limit != nil {
				details["limit"] = *decision.Limit
			}
			return nil, types.NewAppErrorWithDetails(
				types.ErrCodeQuotaSearchExceeded,
				fmt.Sprintf("Monthly search limit reached for the %s plan.", decision.Tier),
				nil,
				details,
			)
		}
	}

	district, err := s.zoning.FindDistrictAtPoint(ctx, in.Lat, in.Lon)
	if err != nil {
		return nil, err
	}

	result := types.ZoningResult{
		Address:         in.Address,
		Coordinates:     types.Coordinates{Latitude: in.Lat, Longitude: in.Lon},
		Zoning:          *district,
		PermittedUses:   []types.PermittedUse{},
		RequiredPermits: []types.RequiredPermit{},
	}

	vis := billing.VisibleFields(tier)
	s.fetchSatellites(ctx, district, in, vis, &result)

	if authenticated && in.Address != "" {
		s.recordHistory(ctx, actor.UserID, in, district)
	}

	return &LookupOutput{
		Result:        result,
		Tier:          tier,
		Authenticated: authenticated,
		Usage:         usage,
	}, nil
}

// fetchSatellites runs the non-critical lookups in parallel and fills
// result in place. Each fetch degrades independently on failure.
func (s *Service) fetchSatellites(ctx context.Context, district *types.ZoningDistrict, in LookupInput, vis types.FieldVisibility, result *types.ZoningResult) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		uses, err := s.zoning.ListPermittedUses(gctx, district.ID)
		if err != nil {
			s.logDegraded("permitted uses", district.DistrictCode, err)
			return nil
		}
		result.PermittedUses = uses
		return nil
	})

	if vis.DimensionalStandards {
		g.Go(func() error {
			dims, err := s.zoning.GetDimensionalStandard(gctx, district.ID)
			if err != nil {
				s.logDegraded("dimensional standards", district.DistrictCode, err)
				return nil
			}
			result.DimensionalStandards = dims
			return nil
		})
	}

	if vis.FloodZone {
		g.Go(func() error {
			zone, err := s.zoning.FindFloodZoneAtPoint(gctx, in.Lat, in.Lon)
			if err != nil {
				s.logDegraded("flood zone", district.DistrictCode, err)
				return nil
			}
			result.FloodZone = zone
			return nil
		})
	}

	if vis.RequiredPermits {
		g.Go(func() error {
			permits, err := s.zoning.ListRequiredPermits(gctx, district.ID)
			if err != nil {
				s.logDegraded("required permits", district.DistrictCode, err)
				return nil
			}
			result.RequiredPermits = permits
			return nil
		})
	}

	_ = g.Wait()
}

func (s *Service) logDegraded(field, districtCode string, err error) {
	s.logger.Warn("satellite fetch failed, degrading field",
		"field", field,
		"district_code", districtCode,
		"error", err.Error(),
	)
}

// recordHistory appends a search history entry without blocking the
// response. The write runs on a detached context so a client
// disconnect does not lose the row, and failure only logs.
func (s *Service) recordHistory(ctx context.Context, userID uuid.UUID, in LookupInput, district *types.ZoningDistrict) {
	if s.history == nil {
		return
	}

	districtID := district.ID
	entry := &types.SearchHistoryEntry{
		ID:           uuid.New(),
		UserID:       userID,
		Address:      in.Address,
		Latitude:     in.Lat,
		Longitude:    in.Lon,
		DistrictID:   &districtID,
		DistrictCode: district.DistrictCode,
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.history.Append(writeCtx, entry); err != nil {
			s.logger.Warn("search history append failed",
				"user_id", userID.String(),
				"error", err.Error(),
			)
		}
	}()
}

// validateCoordinates rejects non-finite and out-of-range values.
func validateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return types.NewAppError(types.ErrCodeValidationInvalidLat,
			"latitude must be a finite number between -90 and 90", nil)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return types.NewAppError(types.ErrCodeValidationInvalidLon,
			"longitude must be a finite number between -180 and 180", nil)
	}
	return nil
}

package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneatlas/internal/types"
)

// fakeZoningStore returns canned rows and records which lookups ran.
type fakeZoningStore struct {
	district    *types.ZoningDistrict
	districtErr error
	uses        []types.PermittedUse
	usesErr     error
	dims        *types.DimensionalStandard
	dimsErr     error
	flood       *types.FloodZone
	floodErr    error
	permits     []types.RequiredPermit
	permitsErr  error

	districtCalls int
	usesCalls     int
	dimsCalls     int
	floodCalls    int
	permitsCalls  int
}

func (f *fakeZoningStore) FindDistrictAtPoint(ctx context.Context, lat, lon float64) (*types.ZoningDistrict, error) {
	f.districtCalls++
	return f.district, f.districtErr
}

func (f *fakeZoningStore) FindFloodZoneAtPoint(ctx context.Context, lat, lon float64) (*types.FloodZone, error) {
	f.floodCalls++
	return f.flood, f.floodErr
}

func (f *fakeZoningStore) ListPermittedUses(ctx context.Context, districtID uuid.UUID) ([]types.PermittedUse, error) {
	f.usesCalls++
	return f.uses, f.usesErr
}

func (f *fakeZoningStore) GetDimensionalStandard(ctx context.Context, districtID uuid.UUID) (*types.DimensionalStandard, error) {
	f.dimsCalls++
	return f.dims, f.dimsErr
}

func (f *fakeZoningStore) ListRequiredPermits(ctx context.Context, districtID uuid.UUID) ([]types.RequiredPermit, error) {
	f.permitsCalls++
	return f.permits, f.permitsErr
}

type fakeUsageMeter struct {
	decision types.UsageDecision
	err      error
	calls    int
}

func (f *fakeUsageMeter) TryConsume(ctx context.Context, userID uuid.UUID) (types.UsageDecision, error) {
	f.calls++
	return f.decision, f.err
}

// fakeHistory signals on a channel so tests can wait for the detached
// append goroutine.
type fakeHistory struct {
	entries chan *types.SearchHistoryEntry
	err     error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{entries: make(chan *types.SearchHistoryEntry, 1)}
}

func (f *fakeHistory) Append(ctx context.Context, entry *types.SearchHistoryEntry) error {
	f.entries <- entry
	return f.err
}

func wilmingtonDistrict() *types.ZoningDistrict {
	return &types.ZoningDistrict{
		ID:           uuid.New(),
		DistrictCode: "C-3",
		Name:         "Central Business District",
		County:       types.CountyNewCastle,
		Municipality: "Wilmington",
		State:        "DE",
	}
}

func actorCtx(tier types.PlanTier) (context.Context, uuid.UUID) {
	userID := uuid.New()
	ctx := types.WithActor(context.Background(), &types.Actor{
		UserID: userID,
		Tier:   tier,
	})
	return ctx, userID
}

func intPtr(v int) *int { return &v }

func TestLookup_Anonymous_FreeTierResult(t *testing.T) {
	store := &fakeZoningStore{
		district: wilmingtonDistrict(),
		uses:     []types.PermittedUse{{UseType: "Retail", Status: types.UseStatusAllowed}},
		dims:     &types.DimensionalStandard{},
		flood:    &types.FloodZone{ZoneCode: "AE"},
	}
	usage := &fakeUsageMeter{}
	svc := NewService(store, usage, nil, types.NopLogger{})

	out, err := svc.Lookup(context.Background(), LookupInput{Lat: 39.7447, Lon: -75.5484})
	require.NoError(t, err)

	assert.False(t, out.Authenticated)
	assert.Equal(t, types.PlanTierFree, out.Tier)
	assert.Nil(t, out.Usage)
	assert.Equal(t, 0, usage.calls, "anonymous lookups must not consume quota")

	assert.Equal(t, "C-3", out.Result.Zoning.DistrictCode)
	assert.Equal(t, types.CountyNewCastle, out.Result.Zoning.County)
	assert.Len(t, out.Result.PermittedUses, 1)

	// Free tier sees no premium fields and the queries never run.
	assert.Nil(t, out.Result.DimensionalStandards)
	assert.Nil(t, out.Result.FloodZone)
	assert.Empty(t, out.Result.RequiredPermits)
	assert.Equal(t, 0, store.dimsCalls)
	assert.Equal(t, 0, store.floodCalls)
	assert.Equal(t, 0, store.permitsCalls)
}

func TestLookup_ProTier_PremiumFieldsWithoutPermits(t *testing.T) {
	store := &fakeZoningStore{
		district: wilmingtonDistrict(),
		uses:     []types.PermittedUse{{UseType: "Retail", Status: types.UseStatusAllowed}},
		dims:     &types.DimensionalStandard{},
		flood:    &types.FloodZone{ZoneCode: "X"},
		permits:  []types.RequiredPermit{{PermitType: "Building Permit"}},
	}
	usage := &fakeUsageMeter{decision: types.UsageDecision{
		Allowed: true, Used: 12, Limit: intPtr(100), Tier: types.PlanTierPro,
	}}
	svc := NewService(store, usage, nil, types.NopLogger{})

	ctx, _ := actorCtx(types.PlanTierPro)
	out, err := svc.Lookup(ctx, LookupInput{Lat: 39.7447, Lon: -75.5484})
	require.NoError(t, err)

	assert.True(t, out.Authenticated)
	assert.Equal(t, types.PlanTierPro, out.Tier)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 12, out.Usage.Used)

	assert.NotNil(t, out.Result.DimensionalStandards)
	assert.NotNil(t, out.Result.FloodZone)
	assert.Empty(t, out.Result.RequiredPermits, "required permits are business tier only")
	assert.Equal(t, 0, store.permitsCalls)
}

func TestLookup_BusinessTier_AllFields(t *testing.T) {
	store := &fakeZoningStore{
		district: wilmingtonDistrict(),
		uses:     []types.PermittedUse{{UseType: "Retail", Status: types.UseStatusAllowed}},
		dims:     &types.DimensionalStandard{},
		flood:    &types.FloodZone{ZoneCode: "AE"},
		permits:  []types.RequiredPermit{{PermitType: "Building Permit"}},
	}
	usage := &fakeUsageMeter{decision: types.UsageDecision{
		Allowed: true, Used: 5000, Tier: types.PlanTierBusiness, Unlimited: true,
	}}
	svc := NewService(store, usage, nil, types.NopLogger{})

	ctx, _ := actorCtx(types.PlanTierBusiness)
	out, err := svc.Lookup(ctx, LookupInput{Lat: 39.7447, Lon: -75.5484})
	require.NoError(t, err)

	assert.True(t, out.Usage.Unlimited)
	assert.NotNil(t, out.Result.DimensionalStandards)
	assert.NotNil(t, out.Result.FloodZone)
	assert.Len(t, out.Result.RequiredPermits, 1)
}

func TestLookup_QuotaExhausted_NoSpatialQuery(t *testing.T) {
	store := &fakeZoningStore{district: wilmingtonDistrict()}
	usage := &fakeUsageMeter{decision: types.UsageDecision{
		Allowed: false, Used: 3, Limit: intPtr(3), Tier: types.PlanTierFree,
	}}
	svc := NewService(store, usage, nil, types.NopLogger{})

	ctx, _ := actorCtx(types.PlanTierFree)
	out, err := svc.Lookup(ctx, LookupInput{Lat: 39.7447, Lon: -75.5484})
	require.Error(t, err)
	assert.Nil(t, out)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeQuotaSearchExceeded, appErr.Code)
	assert.Equal(t, "free", appErr.Details["tier"])
	assert.Equal(t, 3, appErr.Details["limit"])

	assert.Equal(t, 0, store.districtCalls, "exhausted quota must short-circuit the lookup")
}

func TestLookup_StaleTokenTier_DeferredToSubscription(t *testing.T) {
	store := &fakeZoningStore{district: wilmingtonDistrict()}
	// Token still says business but the subscription was downgraded.
	usage := &fakeUsageMeter{decision: types.UsageDecision{
		Allowed: true, Used: 1, Limit: intPtr(3), Tier: types.PlanTierFree,
	}}
	svc := NewService(store, usage, nil, types.NopLogger{})

	ctx, _ := actorCtx(types.PlanTierBusiness)
	out, err := svc.Lookup(ctx, LookupInput{Lat: 39.7447, Lon: -75.5484})
	require.NoError(t, err)

	assert.Equal(t, types.PlanTierFree, out.Tier)
	assert.Equal(t, 0, store.permitsCalls)
}

func TestLookup_NoDistrictAtPoint_ReturnsNotFound(t *testing.T) {
	store := &fakeZoningStore{
		districtErr: types.NewAppError(types.ErrCodeNotFoundZoning, "no zoning district found at this location", nil),
	}
	svc := NewService(store, &fakeUsageMeter{}, nil, types.NopLogger{})

	// Mid-Atlantic, nowhere near Delaware parcels.
	out, err := svc.Lookup(context.Background(), LookupInput{Lat: 30.0, Lon: -50.0})
	require.Error(t, err)
	assert.Nil(t, out)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundZoning, appErr.Code)
	assert.Equal(t, 0, store.usesCalls, "satellite fetches must not run without a district")
}

func TestLookup_SatelliteFailure_DegradesNotFails(t *testing.T) {
	store := &fakeZoningStore{
		district:   wilmingtonDistrict(),
		usesErr:    errors.New("query timeout"),
		dimsErr:    errors.New("query timeout"),
		floodErr:   errors.New("query timeout"),
		permitsErr: errors.New("query timeout"),
	}
	usage := &fakeUsageMeter{decision: types.UsageDecision{
		Allowed: true, Tier: types.PlanTierBusiness, Unlimited: true,
	}}
	svc := NewService(store, usage, nil, types.NopLogger{})

	ctx, _ := actorCtx(types.PlanTierBusiness)
	out, err := svc.Lookup(ctx, LookupInput{Lat: 39.7447, Lon: -75.5484})
	require.NoError(t, err, "satellite failures must not fail the lookup")

	assert.Equal(t, "C-3", out.Result.Zoning.DistrictCode)
	assert.Empty(t, out.Result.PermittedUses)
	assert.Nil(t, out.Result.DimensionalStandards)
	assert.Nil(t, out.Result.FloodZone)
	assert.Empty(t, out.Result.RequiredPermits)
}

func TestLookup_UsageStoreError_Propagates(t *testing.T) {
	store := &fakeZoningStore{district: wilmingtonDistrict()}
	usage := &fakeUsageMeter{err: types.NewAppError(types.ErrCodeInternalDB, "usage query failed", nil)}
	svc := NewService(store, usage, nil, types.NopLogger{})

	ctx, _ := actorCtx(types.PlanTierPro)
	_, err := svc.Lookup(ctx, LookupInput{Lat: 39.7447, Lon: -75.5484})
	require.Error(t, err)
	assert.Equal(t, 0, store.districtCalls)
}

func TestLookup_InvalidCoordinates(t *testing.T) {
	svc := NewService(&fakeZoningStore{}, &fakeUsageMeter{}, nil, types.NopLogger{})

	tests := []struct {
		name     string
		lat, lon float64
		wantCode types.ErrorCode
	}{
		{"latitude too large", 91, -75.5, types.ErrCodeValidationInvalidLat},
		{"latitude too small", -91, -75.5, types.ErrCodeValidationInvalidLat},
		{"longitude too large", 39.7, 181, types.ErrCodeValidationInvalidLon},
		{"longitude too small", 39.7, -181, types.ErrCodeValidationInvalidLon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Lookup(context.Background(), LookupInput{Lat: tt.lat, Lon: tt.lon})
			require.Error(t, err)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestLookup_Authenticated_RecordsHistory(t *testing.T) {
	district := wilmingtonDistrict()
	store := &fakeZoningStore{district: district}
	usage := &fakeUsageMeter{decision: types.UsageDecision{Allowed: true, Tier: types.PlanTierPro, Limit: intPtr(100)}}
	history := newFakeHistory()
	svc := NewService(store, usage, history, types.NopLogger{})

	ctx, userID := actorCtx(types.PlanTierPro)
	_, err := svc.Lookup(ctx, LookupInput{Lat: 39.7447, Lon: -75.5484, Address: "800 N French St, Wilmington, DE"})
	require.NoError(t, err)

	select {
	case entry := <-history.entries:
		assert.Equal(t, userID, entry.UserID)
		assert.Equal(t, "800 N French St, Wilmington, DE", entry.Address)
		assert.Equal(t, "C-3", entry.DistrictCode)
		require.NotNil(t, entry.DistrictID)
		assert.Equal(t, district.ID, *entry.DistrictID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected history entry to be appended")
	}
}

func TestLookup_NoAddress_SkipsHistory(t *testing.T) {
	store := &fakeZoningStore{district: wilmingtonDistrict()}
	usage := &fakeUsageMeter{decision: types.UsageDecision{Allowed: true, Tier: types.PlanTierPro, Limit: intPtr(100)}}
	history := newFakeHistory()
	svc := NewService(store, usage, history, types.NopLogger{})

	ctx, _ := actorCtx(types.PlanTierPro)
	_, err := svc.Lookup(ctx, LookupInput{Lat: 39.7447, Lon: -75.5484})
	require.NoError(t, err)

	select {
	case <-history.entries:
		t.Fatal("history must not be recorded without an address")
	case <-time.After(50 * time.Millisecond):
	}
}

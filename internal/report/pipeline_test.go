package report

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneatlas/internal/external"
	"zoneatlas/internal/types"
)

// fakePurchaseStore mimics the repository's transition semantics in
// memory, including the state machine guard.
type fakePurchaseStore struct {
	purchase    *types.ReportPurchase
	transitions []string
}

func (f *fakePurchaseStore) GetByID(ctx context.Context, id uuid.UUID) (*types.ReportPurchase, error) {
	if f.purchase == nil || f.purchase.ID != id {
		return nil, types.NewAppError(types.ErrCodeNotFoundPurchase, "purchase not found", nil)
	}
	cp := *f.purchase
	return &cp, nil
}

func (f *fakePurchaseStore) Transition(ctx context.Context, id uuid.UUID, from, to types.PurchaseState) error {
	if f.purchase.State != from || !from.CanTransitionTo(to) {
		return types.NewAppError(types.ErrCodeConflictPurchaseState,
			fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
	}
	f.purchase.State = to
	f.purchase.ErrorMessage = ""
	f.purchase.ErroredState = ""
	f.transitions = append(f.transitions, fmt.Sprintf("%s->%s", from, to))
	return nil
}

func (f *fakePurchaseStore) MarkErrored(ctx context.Context, id uuid.UUID, atState types.PurchaseState, message string) error {
	f.purchase.State = types.PurchaseStateErrored
	f.purchase.ErroredState = atState
	f.purchase.ErrorMessage = message
	return nil
}

type fakeZoningSource struct {
	district      *types.ZoningDistrict
	districtCalls int
}

func (f *fakeZoningSource) FindDistrictAtPoint(ctx context.Context, lat, lon float64) (*types.ZoningDistrict, error) {
	f.districtCalls++
	return f.district, nil
}

func (f *fakeZoningSource) FindFloodZoneAtPoint(ctx context.Context, lat, lon float64) (*types.FloodZone, error) {
	return &types.FloodZone{ZoneCode: "X", RiskLevel: "minimal"}, nil
}

func (f *fakeZoningSource) ListPermittedUses(ctx context.Context, districtID uuid.UUID) ([]types.PermittedUse, error) {
	return []types.PermittedUse{{UseType: "Retail", Status: types.UseStatusAllowed}}, nil
}

func (f *fakeZoningSource) GetDimensionalStandard(ctx context.Context, districtID uuid.UUID) (*types.DimensionalStandard, error) {
	return &types.DimensionalStandard{}, nil
}

func (f *fakeZoningSource) ListRequiredPermits(ctx context.Context, districtID uuid.UUID) ([]types.RequiredPermit, error) {
	return []types.RequiredPermit{{PermitType: "Building Permit", Required: true}}, nil
}

// fakeRenderer fails a configurable number of times before succeeding.
type fakeRenderer struct {
	failures int
	calls    int
}

func (f *fakeRenderer) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, types.NewAppError(types.ErrCodeUpstreamRenderer, "browser launch failed", nil)
	}
	return []byte("%PDF-1.7 fake"), nil
}

// fakeEmailSender fails a configurable number of times before
// succeeding, like fakeRenderer.
type fakeEmailSender struct {
	sends    []external.EmailInput
	calls    int
	failures int
	err      error
}

func (f *fakeEmailSender) Send(ctx context.Context, input external.EmailInput) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.calls <= f.failures {
		return "", types.NewAppError(types.ErrCodeUpstreamEmailProvider, "sendgrid 502", nil)
	}
	f.sends = append(f.sends, input)
	return "msg-id-1", nil
}

func testPurchase(state types.PurchaseState) *types.ReportPurchase {
	return &types.ReportPurchase{
		ID:              uuid.New(),
		Email:           "buyer@example.com",
		Address:         "800 N French St, Wilmington, DE",
		Latitude:        39.7447,
		Longitude:       -75.5484,
		StripeSessionID: "cs_test_123",
		State:           state,
	}
}

func testPipeline(store *fakePurchaseStore, zoning *fakeZoningSource, renderer *fakeRenderer, email *fakeEmailSender) *Pipeline {
	var sleeps []time.Duration
	policy := NewPolicy(3, 2*time.Second).WithSleepFunc(instantSleep(&sleeps))
	return NewPipeline(store, zoning, renderer, email, NopMetrics{}, policy, types.NopLogger{})
}

func TestProcess_FreshPurchase_RunsToComplete(t *testing.T) {
	store := &fakePurchaseStore{purchase: testPurchase(types.PurchaseStateCreated)}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "C-3", Name: "Central Business District",
		County: types.CountyNewCastle, State: "DE",
	}}
	renderer := &fakeRenderer{}
	email := &fakeEmailSender{}

	err := testPipeline(store, zoning, renderer, email).Process(context.Background(), store.purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, types.PurchaseStateComplete, store.purchase.State)
	assert.Equal(t, []string{
		"created->zoning_fetched",
		"zoning_fetched->pdf_generated",
		"pdf_generated->email_sent",
		"email_sent->complete",
	}, store.transitions)

	require.Len(t, email.sends, 1)
	sent := email.sends[0]
	assert.Equal(t, "buyer@example.com", sent.To)
	require.Len(t, sent.Attachments, 1)
	assert.Equal(t, "zoning-report-C-3.pdf", sent.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", sent.Attachments[0].ContentType)
	assert.NotEmpty(t, sent.Attachments[0].Data)
}

func TestProcess_RenderFailsTwice_SucceedsThirdAttempt(t *testing.T) {
	store := &fakePurchaseStore{purchase: testPurchase(types.PurchaseStateCreated)}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "R-1", County: types.CountySussex, State: "DE",
	}}
	renderer := &fakeRenderer{failures: 2}
	email := &fakeEmailSender{}

	err := testPipeline(store, zoning, renderer, email).Process(context.Background(), store.purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, renderer.calls)
	assert.Equal(t, types.PurchaseStateComplete, store.purchase.State)
	assert.Len(t, email.sends, 1)
}

func TestProcess_PersistentRenderFailure_MarksErroredNoEmail(t *testing.T) {
	store := &fakePurchaseStore{purchase: testPurchase(types.PurchaseStateCreated)}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "R-1", County: types.CountyKent, State: "DE",
	}}
	renderer := &fakeRenderer{failures: 10}
	email := &fakeEmailSender{}

	err := testPipeline(store, zoning, renderer, email).Process(context.Background(), store.purchase.ID)
	require.Error(t, err, "exhausted retries must surface so the queue redelivers")

	assert.Equal(t, 3, renderer.calls)
	assert.Equal(t, types.PurchaseStateErrored, store.purchase.State)
	assert.Equal(t, types.PurchaseStateZoningFetched, store.purchase.ErroredState)
	assert.Contains(t, store.purchase.ErrorMessage, "browser launch failed")
	assert.Empty(t, email.sends, "no email may be sent when rendering never succeeds")
}

func TestProcess_EmailFailure_ErroredAtPDFGenerated(t *testing.T) {
	store := &fakePurchaseStore{purchase: testPurchase(types.PurchaseStateCreated)}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "C-3", County: types.CountyNewCastle, State: "DE",
	}}
	renderer := &fakeRenderer{}
	email := &fakeEmailSender{err: types.NewAppError(types.ErrCodeUpstreamEmailProvider, "sendgrid 500", nil)}

	err := testPipeline(store, zoning, renderer, email).Process(context.Background(), store.purchase.ID)
	require.Error(t, err)

	assert.Equal(t, types.PurchaseStateErrored, store.purchase.State)
	assert.Equal(t, types.PurchaseStatePDFGenerated, store.purchase.ErroredState)
}

func TestProcess_EmailFailsTwice_SucceedsThirdAttempt(t *testing.T) {
	store := &fakePurchaseStore{purchase: testPurchase(types.PurchaseStateCreated)}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "C-3", County: types.CountyNewCastle, State: "DE",
	}}
	renderer := &fakeRenderer{}
	email := &fakeEmailSender{failures: 2}

	err := testPipeline(store, zoning, renderer, email).Process(context.Background(), store.purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, 3, email.calls, "two failed sends then one successful send")
	assert.Len(t, email.sends, 1)
	assert.Equal(t, types.PurchaseStateComplete, store.purchase.State)
	assert.Equal(t, []string{
		"created->zoning_fetched",
		"zoning_fetched->pdf_generated",
		"pdf_generated->email_sent",
		"email_sent->complete",
	}, store.transitions)
}

func TestProcess_RedeliveredCompletePurchase_NoSideEffects(t *testing.T) {
	store := &fakePurchaseStore{purchase: testPurchase(types.PurchaseStateComplete)}
	zoning := &fakeZoningSource{}
	renderer := &fakeRenderer{}
	email := &fakeEmailSender{}

	err := testPipeline(store, zoning, renderer, email).Process(context.Background(), store.purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, zoning.districtCalls)
	assert.Equal(t, 0, renderer.calls)
	assert.Empty(t, email.sends)
	assert.Empty(t, store.transitions)
}

func TestProcess_ResumeFromErroredAtPDFGenerated_SendsEmailOnce(t *testing.T) {
	p := testPurchase(types.PurchaseStateErrored)
	p.ErroredState = types.PurchaseStatePDFGenerated
	p.ErrorMessage = "sendgrid 500"
	store := &fakePurchaseStore{purchase: p}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "C-3", County: types.CountyNewCastle, State: "DE",
	}}
	renderer := &fakeRenderer{}
	email := &fakeEmailSender{}

	err := testPipeline(store, zoning, renderer, email).Process(context.Background(), p.ID)
	require.NoError(t, err)

	// Fetch and render rerun (the PDF is not persisted) but only the
	// outstanding transitions are recorded.
	assert.Equal(t, types.PurchaseStateComplete, store.purchase.State)
	assert.Equal(t, []string{"errored->email_sent", "email_sent->complete"}, store.transitions)
	assert.Len(t, email.sends, 1)
}

func TestProcess_ResumeFromErroredAtEmailSent_NoSecondEmail(t *testing.T) {
	p := testPurchase(types.PurchaseStateErrored)
	p.ErroredState = types.PurchaseStateEmailSent
	store := &fakePurchaseStore{purchase: p}
	zoning := &fakeZoningSource{}
	renderer := &fakeRenderer{}
	email := &fakeEmailSender{}

	err := testPipeline(store, zoning, renderer, email).Process(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, types.PurchaseStateComplete, store.purchase.State)
	assert.Empty(t, email.sends, "a purchase that already emailed must not email again")
	assert.Equal(t, 0, renderer.calls)
	assert.Equal(t, 0, zoning.districtCalls)
}

func TestProcess_UnknownPurchase_ReturnsNotFound(t *testing.T) {
	store := &fakePurchaseStore{purchase: testPurchase(types.PurchaseStateCreated)}
	pl := testPipeline(store, &fakeZoningSource{}, &fakeRenderer{}, &fakeEmailSender{})

	err := pl.Process(context.Background(), uuid.New())
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundPurchase, appErr.Code)
}

type fakeAddressResolver struct {
	address string
	err     error
	calls   int
}

func (f *fakeAddressResolver) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	f.calls++
	return f.address, f.err
}

func TestProcess_MissingAddress_ReverseGeocoded(t *testing.T) {
	p := testPurchase(types.PurchaseStateCreated)
	p.Address = ""
	store := &fakePurchaseStore{purchase: p}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "R-5", Name: "Residential",
		County: types.CountyNewCastle, State: "DE",
	}}
	email := &fakeEmailSender{}
	resolver := &fakeAddressResolver{address: "800 N French St, Wilmington, DE"}

	pl := testPipeline(store, zoning, &fakeRenderer{}, email).WithAddressResolver(resolver)
	err := pl.Process(context.Background(), p.ID)
	require.NoError(t, err)

	require.Len(t, email.sends, 1)
	assert.Contains(t, email.sends[0].Subject, "800 N French St")
	assert.Equal(t, 1, resolver.calls)
}

func TestProcess_MissingAddress_GeocodeFailureFallsBackToCoordinates(t *testing.T) {
	p := testPurchase(types.PurchaseStateCreated)
	p.Address = ""
	store := &fakePurchaseStore{purchase: p}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "R-5", Name: "Residential",
		County: types.CountyNewCastle, State: "DE",
	}}
	email := &fakeEmailSender{}
	resolver := &fakeAddressResolver{err: errors.New("quota exhausted")}

	pl := testPipeline(store, zoning, &fakeRenderer{}, email).WithAddressResolver(resolver)
	err := pl.Process(context.Background(), p.ID)
	require.NoError(t, err, "geocode failure must not fail the report")

	require.Len(t, email.sends, 1)
	assert.Contains(t, email.sends[0].Subject, "39.74470, -75.54840")
}

type fakeSessionResolver struct {
	session *external.CheckoutSession
	err     error
	calls   int
}

func (f *fakeSessionResolver) GetCheckoutSession(ctx context.Context, sessionID string) (*external.CheckoutSession, error) {
	f.calls++
	return f.session, f.err
}

func TestProcess_MissingEmail_RecoveredFromCheckoutSession(t *testing.T) {
	p := testPurchase(types.PurchaseStateCreated)
	p.Email = ""
	store := &fakePurchaseStore{purchase: p}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "C-3", Name: "Central Business District",
		County: types.CountyNewCastle, State: "DE",
	}}
	email := &fakeEmailSender{}
	session := &external.CheckoutSession{ID: "cs_test_123"}
	session.CustomerDetail.Email = "recovered@example.com"
	resolver := &fakeSessionResolver{session: session}

	pl := testPipeline(store, zoning, &fakeRenderer{}, email).WithSessionResolver(resolver)
	err := pl.Process(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, resolver.calls)
	require.Len(t, email.sends, 1)
	assert.Equal(t, "recovered@example.com", email.sends[0].To)
	assert.Equal(t, types.PurchaseStateComplete, store.purchase.State)
}

func TestProcess_PresentEmail_SkipsSessionResolver(t *testing.T) {
	store := &fakePurchaseStore{purchase: testPurchase(types.PurchaseStateCreated)}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "C-3", County: types.CountyNewCastle, State: "DE",
	}}
	email := &fakeEmailSender{}
	resolver := &fakeSessionResolver{session: &external.CheckoutSession{}}

	pl := testPipeline(store, zoning, &fakeRenderer{}, email).WithSessionResolver(resolver)
	err := pl.Process(context.Background(), store.purchase.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, resolver.calls)
	require.Len(t, email.sends, 1)
	assert.Equal(t, "buyer@example.com", email.sends[0].To)
}

func TestProcess_MissingEmail_SessionLookupFails_MarksErrored(t *testing.T) {
	p := testPurchase(types.PurchaseStateCreated)
	p.Email = ""
	store := &fakePurchaseStore{purchase: p}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "C-3", County: types.CountyNewCastle, State: "DE",
	}}
	email := &fakeEmailSender{}
	resolver := &fakeSessionResolver{err: types.NewAppError(types.ErrCodeUpstreamStripe, "stripe 500", nil)}

	pl := testPipeline(store, zoning, &fakeRenderer{}, email).WithSessionResolver(resolver)
	err := pl.Process(context.Background(), p.ID)
	require.Error(t, err)

	assert.Empty(t, email.sends, "no email may be sent without a recipient")
	assert.Equal(t, types.PurchaseStateErrored, store.purchase.State)
	assert.Equal(t, types.PurchaseStatePDFGenerated, store.purchase.ErroredState)
	assert.Contains(t, store.purchase.ErrorMessage, "cs_test_123")
}

func TestProcess_PresentAddress_SkipsGeocoder(t *testing.T) {
	p := testPurchase(types.PurchaseStateCreated)
	store := &fakePurchaseStore{purchase: p}
	zoning := &fakeZoningSource{district: &types.ZoningDistrict{
		ID: uuid.New(), DistrictCode: "C-3", Name: "Central Business District",
		County: types.CountyNewCastle, State: "DE",
	}}
	resolver := &fakeAddressResolver{address: "should not be used"}

	pl := testPipeline(store, zoning, &fakeRenderer{}, &fakeEmailSender{}).WithAddressResolver(resolver)
	err := pl.Process(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, resolver.calls)
}

package report

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"zoneatlas/internal/external"
	"zoneatlas/internal/types"
)

// ZoningSource provides the spatial lookups the report needs. The
// purchaser paid for the full report, so every field is fetched
// regardless of their subscription tier.
type ZoningSource interface {
	FindDistrictAtPoint(ctx context.Context, lat, lon float64) (*types.ZoningDistrict, error)
	FindFloodZoneAtPoint(ctx context.Context, lat, lon float64) (*types.FloodZone, error)
	ListPermittedUses(ctx context.Context, districtID uuid.UUID) ([]types.PermittedUse, error)
	GetDimensionalStandard(ctx context.Context, districtID uuid.UUID) (*types.DimensionalStandard, error)
	ListRequiredPermits(ctx context.Context, districtID uuid.UUID) ([]types.RequiredPermit, error)
}

// PurchaseStore persists purchase pipeline state.
type PurchaseStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*types.ReportPurchase, error)
	Transition(ctx context.Context, id uuid.UUID, from, to types.PurchaseState) error
	MarkErrored(ctx context.Context, id uuid.UUID, atState types.PurchaseState, message string) error
}

// EmailSender delivers the finished report.
type EmailSender interface {
	Send(ctx context.Context, input external.EmailInput) (string, error)
}

// AddressResolver reverse-geocodes a coordinate into a street address
// for purchases made without one. Optional; failures fall back to the
// raw coordinates.
type AddressResolver interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, error)
}

// SessionResolver re-reads the checkout session a purchase originated
// from. Optional; used to recover the purchaser's email when the
// webhook payload carried none.
type SessionResolver interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*external.CheckoutSession, error)
}

// Pipeline drives one report purchase from its current state to
// complete. It is safe to invoke repeatedly for the same purchase:
// completed purchases are acknowledged without side effects, and
// errored purchases resume from the step that failed rather than
// repeating finished work. In particular a purchase that already
// reached email_sent never sends a second email.
type Pipeline struct {
	purchases PurchaseStore
	zoning    ZoningSource
	renderer  Renderer
	email     EmailSender
	geocoder  AddressResolver
	sessions  SessionResolver
	metrics   Metrics
	policy    Policy
	logger    types.Logger
	clock     types.Clock
}

// NewPipeline assembles a report pipeline. metrics may be nil.
func NewPipeline(purchases PurchaseStore, zoning ZoningSource, renderer Renderer, email EmailSender, metrics Metrics, policy Policy, logger types.Logger) *Pipeline {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Pipeline{
		purchases: purchases,
		zoning:    zoning,
		renderer:  renderer,
		email:     email,
		metrics:   metrics,
		policy:    policy,
		logger:    logger,
		clock:     types.RealClock{},
	}
}

// WithAddressResolver attaches an optional reverse geocoder used when a
// purchase carries coordinates but no street address.
func (pl *Pipeline) WithAddressResolver(resolver AddressResolver) *Pipeline {
	pl.geocoder = resolver
	return pl
}

// WithSessionResolver attaches an optional Stripe session lookup used
// to recover a recipient email for purchases stored without one.
func (pl *Pipeline) WithSessionResolver(resolver SessionResolver) *Pipeline {
	pl.sessions = resolver
	return pl
}

// Pipeline step names used in logs and metrics.
const (
	stepFetchZoning = "fetch_zoning"
	stepRenderPDF   = "render_pdf"
	stepSendEmail   = "send_email"
)

// progress indexes how far a purchase has advanced, derived from its
// stored state (or, for errored purchases, the state the failure
// interrupted).
func progressOf(p *types.ReportPurchase) types.PurchaseState {
	if p.State == types.PurchaseStateErrored && p.ErroredState != "" {
		return p.ErroredState
	}
	return p.State
}

func stateRank(s types.PurchaseState) int {
	switch s {
	case types.PurchaseStateCreated:
		return 0
	case types.PurchaseStateZoningFetched:
		return 1
	case types.PurchaseStatePDFGenerated:
		return 2
	case types.PurchaseStateEmailSent:
		return 3
	case types.PurchaseStateComplete:
		return 4
	default:
		return 0
	}
}

// Process runs the pipeline for one purchase. It returns an error when
// a step exhausts its retries, after marking the purchase errored, so
// the queue redelivers the job on its own schedule.
func (pl *Pipeline) Process(ctx context.Context, purchaseID uuid.UUID) error {
	start := pl.clock.Now()

	p, err := pl.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}

	logger := pl.logger.With(
		"purchase_id", p.ID.String(),
		"state", string(p.State),
		"address", p.Address,
	)

	if p.State == types.PurchaseStateComplete {
		logger.Info("purchase already complete, acknowledging redelivery")
		return nil
	}

	// position tracks the logical step reached, independent of the
	// stored state, so a failure during a resume is attributed to the
	// real step and not to "errored".
	position := progressOf(p)
	rank := stateRank(position)
	stored := p.State

	advance := func(to types.PurchaseState) error {
		if err := pl.purchases.Transition(ctx, p.ID, stored, to); err != nil {
			return err
		}
		stored = to
		position = to
		return nil
	}

	if rank < stateRank(types.PurchaseStateEmailSent) {
		// The PDF is not persisted between deliveries, so any resume
		// short of email_sent refetches and rerenders. Those steps are
		// side-effect free; only the email send is not.
		var result *types.ZoningResult
		err := pl.policy.Run(ctx, stepFetchZoning, func(ctx context.Context) error {
			r, ferr := pl.fetchFullResult(ctx, p)
			if ferr != nil {
				return ferr
			}
			result = r
			return nil
		})
		if err != nil {
			return pl.fail(ctx, p.ID, position, stepFetchZoning, err, logger)
		}
		pl.metrics.RecordStep(ctx, stepFetchZoning, StepSuccess)

		if rank < stateRank(types.PurchaseStateZoningFetched) {
			if err := advance(types.PurchaseStateZoningFetched); err != nil {
				return err
			}
		}

		html, err := BuildReportHTML(result, pl.clock.Now())
		if err != nil {
			// Deterministic template failure: retrying cannot help.
			return pl.fail(ctx, p.ID, position, stepRenderPDF, err, logger)
		}

		var pdf []byte
		err = pl.policy.Run(ctx, stepRenderPDF, func(ctx context.Context) error {
			b, rerr := pl.renderer.RenderPDF(ctx, html)
			if rerr != nil {
				return rerr
			}
			pdf = b
			return nil
		})
		if err != nil {
			return pl.fail(ctx, p.ID, position, stepRenderPDF, err, logger)
		}
		pl.metrics.RecordStep(ctx, stepRenderPDF, StepSuccess)

		if rank < stateRank(types.PurchaseStatePDFGenerated) {
			if err := advance(types.PurchaseStatePDFGenerated); err != nil {
				return err
			}
		}

		recipient, err := pl.resolveRecipient(ctx, p)
		if err != nil {
			return pl.fail(ctx, p.ID, position, stepSendEmail, err, logger)
		}

		input := pl.buildEmail(p, recipient, result, pdf)
		err = pl.policy.Run(ctx, stepSendEmail, func(ctx context.Context) error {
			_, serr := pl.email.Send(ctx, input)
			return serr
		})
		if err != nil {
			return pl.fail(ctx, p.ID, position, stepSendEmail, err, logger)
		}
		pl.metrics.RecordStep(ctx, stepSendEmail, StepSuccess)

		if err := advance(types.PurchaseStateEmailSent); err != nil {
			return err
		}
	} else {
		logger.Info("email already delivered, finalizing only")
	}

	if err := advance(types.PurchaseStateComplete); err != nil {
		return err
	}

	pl.metrics.RecordDuration(ctx, pl.clock.Now().Sub(start))
	logger.Info("report purchase complete")
	return nil
}

// fail marks the purchase errored at the given position and returns
// the step error so the caller NACKs the queue message.
func (pl *Pipeline) fail(ctx context.Context, id uuid.UUID, position types.PurchaseState, step string, stepErr error, logger types.Logger) error {
	pl.metrics.RecordStep(ctx, step, StepFailure)
	logger.Error("report pipeline step failed",
		"step", step,
		"position", string(position),
		"error", stepErr.Error(),
	)

	if err := pl.purchases.MarkErrored(ctx, id, position, stepErr.Error()); err != nil {
		logger.Error("failed to mark purchase errored", "error", err.Error())
	}
	return stepErr
}

// fetchFullResult loads the complete zoning profile for the purchased
// coordinate. Unlike the interactive lookup, satellite failures here
// are hard errors: a paid report must not silently omit sections.
func (pl *Pipeline) fetchFullResult(ctx context.Context, p *types.ReportPurchase) (*types.ZoningResult, error) {
	district, err := pl.zoning.FindDistrictAtPoint(ctx, p.Latitude, p.Longitude)
	if err != nil {
		return nil, err
	}

	result := &types.ZoningResult{
		Address:         pl.resolveAddress(ctx, p),
		Coordinates:     types.Coordinates{Latitude: p.Latitude, Longitude: p.Longitude},
		Zoning:          *district,
		PermittedUses:   []types.PermittedUse{},
		RequiredPermits: []types.RequiredPermit{},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		uses, err := pl.zoning.ListPermittedUses(gctx, district.ID)
		if err != nil {
			return err
		}
		result.PermittedUses = uses
		return nil
	})
	g.Go(func() error {
		dims, err := pl.zoning.GetDimensionalStandard(gctx, district.ID)
		if err != nil {
			return err
		}
		result.DimensionalStandards = dims
		return nil
	})
	g.Go(func() error {
		zone, err := pl.zoning.FindFloodZoneAtPoint(gctx, p.Latitude, p.Longitude)
		if err != nil {
			return err
		}
		result.FloodZone = zone
		return nil
	})
	g.Go(func() error {
		permits, err := pl.zoning.ListRequiredPermits(gctx, district.ID)
		if err != nil {
			return err
		}
		result.RequiredPermits = permits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

// resolveAddress returns the purchase's address, reverse-geocoding the
// coordinate when none was captured at checkout. Resolution failures
// degrade to the raw coordinates; the report is still deliverable.
func (pl *Pipeline) resolveAddress(ctx context.Context, p *types.ReportPurchase) string {
	if p.Address != "" {
		return p.Address
	}
	if pl.geocoder != nil {
		addr, err := pl.geocoder.ReverseGeocode(ctx, p.Latitude, p.Longitude)
		if err == nil && addr != "" {
			return addr
		}
		if err != nil {
			pl.logger.Warn("reverse geocode failed, falling back to coordinates",
				"purchase_id", p.ID.String(),
				"error", err.Error(),
			)
		}
	}
	return fmt.Sprintf("%.5f, %.5f", p.Latitude, p.Longitude)
}

// resolveRecipient returns the purchase's stored email, re-reading the
// Stripe checkout session when the webhook payload carried none. A
// purchase with no recoverable address cannot be delivered, so that is
// a hard error.
func (pl *Pipeline) resolveRecipient(ctx context.Context, p *types.ReportPurchase) (string, error) {
	if p.Email != "" {
		return p.Email, nil
	}
	if pl.sessions != nil && p.StripeSessionID != "" {
		session, err := pl.sessions.GetCheckoutSession(ctx, p.StripeSessionID)
		if err != nil {
			return "", fmt.Errorf("resolve checkout session %s: %w", p.StripeSessionID, err)
		}
		if email := session.Email(); email != "" {
			pl.logger.Info("recovered recipient from checkout session",
				"purchase_id", p.ID.String(),
				"session_id", p.StripeSessionID,
			)
			return email, nil
		}
	}
	return "", types.NewAppError(types.ErrCodeInternalUnexpected, "purchase has no deliverable email address", nil)
}

// buildEmail assembles the delivery email with the PDF attached.
func (pl *Pipeline) buildEmail(p *types.ReportPurchase, recipient string, result *types.ZoningResult, pdf []byte) external.EmailInput {
	subject := fmt.Sprintf("Your zoning report for %s", result.Address)
	body := fmt.Sprintf(
		`<p>Thank you for your purchase.</p>
<p>Your zoning report for <strong>%s</strong> is attached. The property sits in
district <strong>%s</strong> (%s, %s County).</p>
<p>Questions about the report? Just reply to this email.</p>`,
		result.Address,
		result.Zoning.DistrictCode,
		result.Zoning.Name,
		result.Zoning.County,
	)

	return external.EmailInput{
		To:          recipient,
		Subject:     subject,
		HTMLBody:    body,
		ReferenceID: p.ID.String(),
		Attachments: []external.EmailAttachment{
			{
				Filename:    fmt.Sprintf("zoning-report-%s.pdf", result.Zoning.DistrictCode),
				ContentType: "application/pdf",
				Data:        pdf,
			},
		},
	}
}

package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"zoneatlas/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    types.Logger
}

// StripeClient makes direct HTTP calls to the Stripe REST API through
// BaseClient. This routes all requests through the platform's resilience
// infrastructure (circuit breaker, retries, error mapping) and makes
// testing with httptest straightforward.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    types.Logger
}

// NewStripeClient creates a new StripeClient.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"ZoneAtlas/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CheckoutSession is the subset of a Stripe checkout session the
// platform needs: the purchaser's email and the metadata carrying the
// report coordinates.
type CheckoutSession struct {
	ID             string            `json:"id"`
	Mode           string            `json:"mode"`
	PaymentStatus  string            `json:"payment_status"`
	CustomerEmail  string            `json:"customer_email"`
	CustomerDetail struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Metadata map[string]string `json:"metadata"`
}

// Email returns the best available purchaser email for the session.
func (s *CheckoutSession) Email() string {
	if s.CustomerDetail.Email != "" {
		return s.CustomerDetail.Email
	}
	return s.CustomerEmail
}

// GetCheckoutSession retrieves a checkout session from the Stripe API.
// The report pipeline uses it to recover the purchaser's email when the
// webhook payload stored a purchase without one.
func (s *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	reqURL := fmt.Sprintf("%s/v1/checkout/sessions/%s", s.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create Stripe session request",
			err,
		)
	}
	s.setAuthHeaders(req)

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetCheckoutSession")
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe session response",
			err,
		)
	}
	return &session, nil
}

// CreateCheckoutSessionInput carries everything needed to open a
// Stripe-hosted checkout page.
type CreateCheckoutSessionInput struct {
	Mode              string // "payment" or "subscription"
	PriceID           string
	SuccessURL        string
	CancelURL         string
	CustomerEmail     string            // optional pre-fill
	ClientReferenceID string            // our user id, echoed back in webhooks
	Metadata          map[string]string // echoed back in webhooks
}

// CreatedCheckoutSession is the slice of the create response callers
// need: the session id and the hosted page to redirect the buyer to.
type CreatedCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession opens a checkout session via the Stripe API.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, in CreateCheckoutSessionInput) (*CreatedCheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", in.Mode)
	form.Set("success_url", in.SuccessURL)
	form.Set("cancel_url", in.CancelURL)
	form.Set("line_items[0][price]", in.PriceID)
	form.Set("line_items[0][quantity]", "1")
	if in.CustomerEmail != "" {
		form.Set("customer_email", in.CustomerEmail)
	}
	if in.ClientReferenceID != "" {
		form.Set("client_reference_id", in.ClientReferenceID)
	}
	for key, value := range in.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	reqURL := s.baseURL + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create Stripe checkout request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var created CreatedCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			"failed to decode Stripe checkout response",
			err,
		)
	}

	s.logger.Info("stripe checkout session created",
		"session_id", created.ID,
		"mode", in.Mode,
	)
	return &created, nil
}

// setAuthHeaders sets bearer auth and pins the Stripe API version.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// stripeErrorResponse represents the JSON error body returned by Stripe.
type stripeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	errMsg := string(body)
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr == nil && stripeErr.Error.Message != "" {
		errMsg = stripeErr.Error.Message
	}

	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe returned status %d: %s", operation, resp.StatusCode, errMsg),
		nil,
	)
}

// ParsePriceTiers decodes the STRIPE_PRICE_TIERS_JSON config value, a
// JSON object mapping Stripe price id to tier name. Tier names pass
// through NormalizeTier so legacy marketing names keep working.
func ParsePriceTiers(raw string) (map[string]types.PlanTier, error) {
	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid price tier mapping: %w", err)
	}
	tiers := make(map[string]types.PlanTier, len(decoded))
	for priceID, name := range decoded {
		tiers[priceID] = types.NormalizeTier(name)
	}
	return tiers, nil
}

// Stripe webhook event types consumed by the platform.
const (
	EventStripeCheckoutCompleted = "checkout.session.completed"
	EventStripeSubUpdated        = "customer.subscription.updated"
	EventStripeSubDeleted        = "customer.subscription.deleted"
	EventStripeInvoicePaid       = "invoice.payment_succeeded"
	EventStripePaymentFailed     = "invoice.payment_failed"
)

// WebhookVerifier authenticates an incoming webhook payload.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}

// StripeVerifier validates webhook signatures using stripe-go's webhook
// signature verification. This provides HMAC-SHA256 signature checking
// with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}

package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zoneatlas/internal/types"
)

// sendGridAPIBase is the default SendGrid API base URL.
// Overridable in tests via SendGridClientConfig.BaseURL.
const sendGridAPIBase = "https://api.sendgrid.com"

// EmailInput describes one outbound email. Attachments carry the PDF
// report bytes for purchase deliveries.
type EmailInput struct {
	To          string
	Subject     string
	HTMLBody    string
	ReferenceID string
	Attachments []EmailAttachment
}

// EmailAttachment is a binary attachment for an outbound email.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SendGridClientConfig holds the configuration for creating a SendGridClient.
type SendGridClientConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	BaseURL     string // Override for testing; defaults to sendGridAPIBase
	Logger      types.Logger
}

// SendGridClient sends mail by making direct HTTP calls to the SendGrid
// v3 Mail Send API through BaseClient. This routes all requests through
// the platform's resilience infrastructure (circuit breaker, retries,
// error mapping) and makes testing with httptest straightforward.
type SendGridClient struct {
	base        *BaseClient
	apiKey      string
	fromAddress string
	fromName    string
	baseURL     string
	logger      types.Logger
}

// NewSendGridClient creates a new SendGridClient.
func NewSendGridClient(httpClient *http.Client, cfg SendGridClientConfig) *SendGridClient {
	base := NewBaseClient(
		httpClient,
		"sendgrid",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"ZoneAtlas/1.0",
	)
	return NewSendGridClientWithBase(base, cfg)
}

// NewSendGridClientWithBase creates a SendGridClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &SendGridClient{
		base:        base,
		apiKey:      cfg.APIKey,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      logger,
	}
}

// Send transmits an email using SendGrid's v3 Mail Send API and returns
// the provider message ID (from the X-Message-Id response header) on
// success.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked (recipient on suppression list)
//   - 429 Too Many Requests -> handled by BaseClient (retry + ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (retry + ErrCodeUpstreamUnavailable)
//   - Other 4xx -> types.ErrCodeUpstreamEmailProvider
func (s *SendGridClient) Send(ctx context.Context, input EmailInput) (string, error) {
	body, err := json.Marshal(s.buildMailPayload(input))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal SendGrid mail payload",
			err,
		)
	}

	reqURL := s.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create SendGrid mail send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// SendGrid returns 202 Accepted on success.
	if resp.StatusCode == http.StatusAccepted {
		return resp.Header.Get("X-Message-Id"), nil
	}

	return "", s.handleErrorResponse(resp)
}

// sendGridMailPayload represents the SendGrid v3 mail/send JSON request
// body using inline content.
type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	Attachments      []sendGridAttachment      `json:"attachments,omitempty"`
	// custom_args allows correlation with internal purchase IDs
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridAttachment struct {
	Content     string `json:"content"` // base64
	Type        string `json:"type,omitempty"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
}

func (s *SendGridClient) buildMailPayload(input EmailInput) sendGridMailPayload {
	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{
			{To: []sendGridAddress{{Email: input.To}}},
		},
		From:    sendGridAddress{Email: s.fromAddress, Name: s.fromName},
		Subject: input.Subject,
		Content: []sendGridContent{
			{Type: "text/html", Value: input.HTMLBody},
		},
	}

	for _, att := range input.Attachments {
		payload.Attachments = append(payload.Attachments, sendGridAttachment{
			Content:     base64.StdEncoding.EncodeToString(att.Data),
			Type:        att.ContentType,
			Filename:    att.Filename,
			Disposition: "attachment",
		})
	}

	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}

	return payload
}

// sendGridErrorResponse represents the JSON error body returned by SendGrid.
type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

// handleErrorResponse reads a SendGrid error response and maps it to a
// types.AppError.
func (s *SendGridClient) handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid returned status %d and response body was unreadable", resp.StatusCode),
			readErr,
		)
	}

	var sgErr sendGridErrorResponse
	errMsg := string(body)
	if jsonErr := json.Unmarshal(body, &sgErr); jsonErr == nil && len(sgErr.Errors) > 0 {
		errMsg = sgErr.Errors[0].Message
	}

	if resp.StatusCode == http.StatusForbidden {
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("SendGrid blocked delivery: %s", errMsg),
			nil,
		)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SendGrid returned status %d: %s", resp.StatusCode, errMsg),
		nil,
	)
}

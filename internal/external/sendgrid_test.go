package external

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoneatlas/internal/types"
)

func newTestSendGrid(t *testing.T, handler http.HandlerFunc) *SendGridClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	base := NewBaseClient(srv.Client(), "sendgrid-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"ZoneAtlas/1.0", WithSleepFunc(noSleep))

	return NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:      "SG.test",
		FromAddress: "reports@zoneatlas.io",
		FromName:    "ZoneAtlas Reports",
		BaseURL:     srv.URL,
	})
}

func TestSendGridClient_SendWithAttachment(t *testing.T) {
	pdf := []byte("%PDF-1.7 fake")
	var captured sendGridMailPayload

	client := newTestSendGrid(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("X-Message-Id", "msg_123")
		w.WriteHeader(http.StatusAccepted)
	})

	msgID, err := client.Send(context.Background(), EmailInput{
		To:          "buyer@example.com",
		Subject:     "Your zoning report",
		HTMLBody:    "<p>Attached.</p>",
		ReferenceID: "purchase-42",
		Attachments: []EmailAttachment{{
			Filename:    "zoning-report.pdf",
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_123", msgID)

	require.Len(t, captured.Personalizations, 1)
	assert.Equal(t, "buyer@example.com", captured.Personalizations[0].To[0].Email)
	require.Len(t, captured.Attachments, 1)
	assert.Equal(t, "zoning-report.pdf", captured.Attachments[0].Filename)
	assert.Equal(t, base64.StdEncoding.EncodeToString(pdf), captured.Attachments[0].Content)
	assert.Equal(t, "purchase-42", captured.CustomArgs["reference_id"])
}

func TestSendGridClient_ForbiddenMapsToEmailBlocked(t *testing.T) {
	client := newTestSendGrid(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"recipient suppressed"}]}`))
	})

	_, err := client.Send(context.Background(), EmailInput{To: "blocked@example.com"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeEmailBlocked, appErr.Code)
	assert.Contains(t, appErr.Message, "recipient suppressed")
}

func TestSendGridClient_BadRequestMapsToUpstreamError(t *testing.T) {
	client := newTestSendGrid(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"invalid from address"}]}`))
	})

	_, err := client.Send(context.Background(), EmailInput{To: "x@example.com"})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamEmailProvider, appErr.Code)
}

package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zoneatlas/internal/types"
)

// --- JSON helper tests ---

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(w, r, http.StatusOK, map[string]string{"district": "C-3"})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["district"] != "C-3" {
		t.Errorf("expected district=C-3, got %v", body["district"])
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-marshal-fail"))

	// Channels cannot be marshalled to JSON.
	JSON(w, r, http.StatusOK, make(chan int))

	resp := w.Result()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", resp.StatusCode)
	}

	var errResp APIErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode fallback error: %v", err)
	}
	if errResp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected code %s, got %s", types.ErrCodeInternalUnexpected, errResp.Error.Code)
	}
	if errResp.Error.RequestID != "req-marshal-fail" {
		t.Errorf("expected request_id req-marshal-fail, got %s", errResp.Error.RequestID)
	}
}

// --- Error helper tests ---

func TestError_AppError_StatusFromCode(t *testing.T) {
	tests := []struct {
		name       string
		code       types.ErrorCode
		wantStatus int
	}{
		{"validation maps to 400", types.ErrCodeValidationInvalidLat, http.StatusBadRequest},
		{"auth maps to 401", types.ErrCodeAuthTokenExpired, http.StatusUnauthorized},
		{"quota maps to 429", types.ErrCodeQuotaSearchExceeded, http.StatusTooManyRequests},
		{"not found maps to 404", types.ErrCodeNotFoundZoning, http.StatusNotFound},
		{"conflict maps to 409", types.ErrCodeConflictPurchaseState, http.StatusConflict},
		{"upstream maps to 502", types.ErrCodeUpstreamStripe, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			Error(w, r, types.NewAppError(tt.code, "boom", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var errResp APIErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if errResp.Error.Code != string(tt.code) {
				t.Errorf("expected code %s, got %s", tt.code, errResp.Error.Code)
			}
		})
	}
}

func TestError_WrappedAppError_Unwraps(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	inner := types.NewAppError(types.ErrCodeNotFoundZoning, "no district at point", nil)
	Error(w, r, errors.Join(errors.New("lookup failed"), inner))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestError_GenericError_Returns500WithoutLeaking(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, errors.New("pgx: connection refused at 10.0.0.5"))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Error("internal error detail leaked to client")
	}
	var errResp APIErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&errResp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if errResp.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("expected code %s, got %s", types.ErrCodeInternalUnexpected, errResp.Error.Code)
	}
}

// --- DecodeJSON tests ---

type decodeTarget struct {
	Email string `json:"email"`
}

func TestDecodeJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com"}`))

	var dst decodeTarget
	if err := DecodeJSON(w, r, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Email != "a@b.com" {
		t.Errorf("expected email a@b.com, got %q", dst.Email)
	}
}

func TestDecodeJSON_UnknownField(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com","bogus":1}`))

	var dst decodeTarget
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != errCodeValidationInvalidJSON {
		t.Errorf("expected code %s, got %s", errCodeValidationInvalidJSON, appErr.Code)
	}
	if !strings.Contains(appErr.Message, "unknown field") {
		t.Errorf("expected message to mention unknown field, got %q", appErr.Message)
	}
}

func TestDecodeJSON_EmptyBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))

	var dst decodeTarget
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for empty body")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if !strings.Contains(appErr.Message, "empty") {
		t.Errorf("expected message to mention empty body, got %q", appErr.Message)
	}
}

func TestDecodeJSON_MultipleValues(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.com"}{"email":"c@d.com"}`))

	var dst decodeTarget
	if err := DecodeJSON(w, r, &dst); err == nil {
		t.Fatal("expected error for multiple JSON values")
	}
}

func TestDecodeJSON_MalformedJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":`))

	var dst decodeTarget
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", appErr.HTTPStatus())
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	w := httptest.NewRecorder()
	big := `{"email":"` + strings.Repeat("x", maxRequestBodySize+1) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))

	var dst decodeTarget
	err := DecodeJSON(w, r, &dst)
	if err == nil {
		t.Fatal("expected error for oversized body")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if !strings.Contains(appErr.Message, "1MB") {
		t.Errorf("expected message to mention size limit, got %q", appErr.Message)
	}
}

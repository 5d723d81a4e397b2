package types

import (
	"net/http"
	"testing"
)

func TestNormalizeTier(t *testing.T) {
	cases := map[string]PlanTier{
		"looker":    PlanTierFree,
		"free":      PlanTierFree,
		"":          PlanTierFree,
		"pro":       PlanTierPro,
		"whale":     PlanTierBusiness,
		"business":  PlanTierBusiness,
		"platinum":  PlanTierFree,
		"PRO":       PlanTierFree,
	}
	for raw, want := range cases {
		if got := NormalizeTier(raw); got != want {
			t.Errorf("NormalizeTier(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestPlanTierAtLeast(t *testing.T) {
	if !PlanTierBusiness.AtLeast(PlanTierPro) {
		t.Error("business should rank at least pro")
	}
	if !PlanTierPro.AtLeast(PlanTierFree) {
		t.Error("pro should rank at least free")
	}
	if PlanTierFree.AtLeast(PlanTierPro) {
		t.Error("free should not rank at least pro")
	}
	if PlanTier("bogus").AtLeast(PlanTierFree) {
		t.Error("unknown tier must rank below free")
	}
}

func TestPurchaseStateTransitions(t *testing.T) {
	valid := []struct{ from, to PurchaseState }{
		{PurchaseStateCreated, PurchaseStateZoningFetched},
		{PurchaseStateZoningFetched, PurchaseStatePDFGenerated},
		{PurchaseStatePDFGenerated, PurchaseStateEmailSent},
		{PurchaseStateEmailSent, PurchaseStateComplete},
		{PurchaseStateCreated, PurchaseStateErrored},
		{PurchaseStateErrored, PurchaseStateZoningFetched},
	}
	for _, tc := range valid {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	invalid := []struct{ from, to PurchaseState }{
		{PurchaseStateCreated, PurchaseStatePDFGenerated},
		{PurchaseStateCreated, PurchaseStateEmailSent},
		{PurchaseStateComplete, PurchaseStateErrored},
		{PurchaseStateComplete, PurchaseStateCreated},
		{PurchaseStateEmailSent, PurchaseStateZoningFetched},
	}
	for _, tc := range invalid {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestPurchaseStateIsTerminal(t *testing.T) {
	if !PurchaseStateComplete.IsTerminal() {
		t.Error("complete should be terminal")
	}
	if !PurchaseStateErrored.IsTerminal() {
		t.Error("errored should be terminal")
	}
	if PurchaseStateCreated.IsTerminal() {
		t.Error("created should not be terminal")
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodeValidationInvalidLat:  http.StatusBadRequest,
		ErrCodeAuthTokenInvalid:      http.StatusUnauthorized,
		ErrCodeQuotaSearchExceeded:   http.StatusTooManyRequests,
		ErrCodeRateLimit:             http.StatusTooManyRequests,
		ErrCodeNotFoundZoning:        http.StatusNotFound,
		ErrCodeConflictPurchaseState: http.StatusConflict,
		ErrCodeEmailBlocked:          http.StatusForbidden,
		ErrCodeUpstreamStripe:        http.StatusBadGateway,
		ErrCodeInternalDB:            http.StatusInternalServerError,
		ErrorCode("something_weird"): http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestSubscriptionStatusIsEntitled(t *testing.T) {
	entitled := []SubscriptionStatus{SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue}
	for _, s := range entitled {
		if !s.IsEntitled() {
			t.Errorf("%s should be entitled", s)
		}
	}
	for _, s := range []SubscriptionStatus{SubscriptionStatusCanceled, SubscriptionStatusUnpaid} {
		if s.IsEntitled() {
			t.Errorf("%s should not be entitled", s)
		}
	}
}

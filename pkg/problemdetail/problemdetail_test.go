package problemdetail_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/peacprotocol/peac-core/pkg/problemdetail"
)

func TestWriteError_SecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/verify", nil)

	problemdetail.WriteError(w, r, problemdetail.New(problemdetail.ESignatureInvalid, "bad signature"))

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type application/problem+json, got %q", ct)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("expected X-Content-Type-Options: nosniff")
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Errorf("expected Cache-Control: no-store")
	}
	if w.Header().Get("Referrer-Policy") != "no-referrer" {
		t.Errorf("expected Referrer-Policy: no-referrer")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}

	var problem problemdetail.Problem
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Code != problemdetail.ESignatureInvalid {
		t.Errorf("expected code %q, got %q", problemdetail.ESignatureInvalid, problem.Code)
	}
	if problem.Type != "https://www.peacprotocol.org/problems/signature-invalid" {
		t.Errorf("unexpected problem type URI: %q", problem.Type)
	}
	if problem.Instance != "/verify" {
		t.Errorf("expected instance /verify, got %q", problem.Instance)
	}
}

func TestStatusFor_MatchesSpecTable(t *testing.T) {
	cases := map[problemdetail.Code]int{
		problemdetail.EInvalidTransport:         http.StatusBadRequest,
		problemdetail.ESignatureInvalid:         http.StatusUnauthorized,
		problemdetail.EReceiptMissing:           http.StatusPaymentRequired,
		problemdetail.EIssuerNotAllowed:         http.StatusForbidden,
		problemdetail.ENonceReplay:              http.StatusConflict,
		problemdetail.ERequestTooLarge:          http.StatusRequestEntityTooLarge,
		problemdetail.EExpiredReceipt:           http.StatusUnprocessableEntity,
		problemdetail.ERateLimited:              http.StatusTooManyRequests,
		problemdetail.EUpstreamError:            http.StatusBadGateway,
		problemdetail.ETimeout:                  http.StatusGatewayTimeout,
	}
	for code, want := range cases {
		if got := problemdetail.StatusFor(code); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestCodedError_ErrorIncludesWrapped(t *testing.T) {
	inner := http.ErrBodyNotAllowed
	err := problemdetail.Wrap(problemdetail.EUpstreamError, "upstream failed", inner)

	if err.Unwrap() != inner {
		t.Errorf("expected Unwrap to return the wrapped error")
	}
	if err.Error() == "" {
		t.Errorf("expected non-empty error message")
	}
}

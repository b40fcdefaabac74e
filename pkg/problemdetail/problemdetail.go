// Package problemdetail implements RFC 9457 Problem Details for HTTP APIs
// and the stable error-code taxonomy every other package in this module
// reports through. A CodedError carries a machine-stable code alongside a
// human message; ToProblem maps it to its HTTP status, and WriteError
// writes it with the headers the gateway and verification API are
// required to emit.
package problemdetail

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Code is a stable, machine-readable error identifier. Codes never change
// meaning across releases; new failure modes get new codes.
type Code string

const (
	// transport
	EInvalidTransport      Code = "E_INVALID_TRANSPORT"
	EInvalidJWSFormat      Code = "E_INVALID_JWS_FORMAT"
	EPointerDigestMismatch Code = "E_POINTER_DIGEST_MISMATCH"
	ERequestTooLarge       Code = "E_REQUEST_TOO_LARGE"

	// crypto
	ESignatureInvalid Code = "E_SIGNATURE_INVALID"
	EKeyNotFound      Code = "E_KEY_NOT_FOUND"
	ETimeInvalid      Code = "E_TIME_INVALID"

	// claims
	EExpiredReceipt         Code = "E_EXPIRED_RECEIPT"
	EFutureIat              Code = "E_FUTURE_IAT"
	ESchemaValidationFailed Code = "E_SCHEMA_VALIDATION_FAILED"
	EMissingClaim           Code = "E_MISSING_CLAIM"
	EUnknownClaim           Code = "E_UNKNOWN_CLAIM"
	EPurposeInvalid         Code = "E_PURPOSE_INVALID"

	// discovery
	ESSRFBlocked Code = "E_SSRF_BLOCKED"

	// replay
	ENonceReplay             Code = "E_NONCE_REPLAY"
	EReplayProtectionRequired Code = "E_REPLAY_PROTECTION_REQUIRED"

	// policy
	EPolicyHashMismatch Code = "E_POLICY_HASH_MISMATCH"

	// config
	EMisconfiguredVerifier Code = "E_MISCONFIGURED_VERIFIER"

	// access / rail
	EIssuerNotAllowed Code = "E_ISSUER_NOT_ALLOWED"
	EReceiptMissing   Code = "E_RECEIPT_MISSING"
	EPaymentRequired  Code = "E_PAYMENT_REQUIRED"

	// rate / upstream / timeout
	ERateLimited   Code = "E_RATE_LIMITED"
	ETimeout       Code = "E_TIMEOUT"
	EUpstreamError Code = "E_UPSTREAM_ERROR"
)

// statusByCode is the stable code → HTTP status mapping the gateway uses
// to answer requests; verification itself never returns an HTTP error —
// only the gateway translates a CodedError into a response.
var statusByCode = map[Code]int{
	EInvalidTransport:      http.StatusBadRequest,
	EInvalidJWSFormat:      http.StatusBadRequest,
	EPointerDigestMismatch: http.StatusBadRequest,

	ESignatureInvalid:         http.StatusUnauthorized,
	EKeyNotFound:              http.StatusUnauthorized,
	ETimeInvalid:              http.StatusUnauthorized,
	EReplayProtectionRequired: http.StatusUnauthorized,

	EReceiptMissing:  http.StatusPaymentRequired,
	EPaymentRequired: http.StatusPaymentRequired,

	EIssuerNotAllowed: http.StatusForbidden,
	ESSRFBlocked:      http.StatusForbidden,

	ENonceReplay: http.StatusConflict,

	ERequestTooLarge: http.StatusRequestEntityTooLarge,

	EExpiredReceipt:         http.StatusUnprocessableEntity,
	EFutureIat:              http.StatusUnprocessableEntity,
	ESchemaValidationFailed: http.StatusUnprocessableEntity,
	EMissingClaim:           http.StatusUnprocessableEntity,
	EUnknownClaim:           http.StatusUnprocessableEntity,
	EPurposeInvalid:         http.StatusUnprocessableEntity,
	EPolicyHashMismatch:     http.StatusUnprocessableEntity,
	EMisconfiguredVerifier:  http.StatusUnprocessableEntity,

	ERateLimited: http.StatusTooManyRequests,

	ETimeout:       http.StatusGatewayTimeout,
	EUpstreamError: http.StatusBadGateway,
}

// StatusFor returns the HTTP status a code maps to, defaulting to 500 for
// codes the gateway has no mapping for (a programmer error, not a client
// outcome).
func StatusFor(code Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodedError is the error type every package in this module returns at
// its boundary: a stable code plus a human-readable message. Wrapped
// errors are kept for %w-based unwrapping but never surfaced to clients.
type CodedError struct {
	Code    Code
	Message string
	Wrapped error
}

func (e *CodedError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error { return e.Wrapped }

// New constructs a CodedError with no wrapped cause.
func New(code Code, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

// Wrap constructs a CodedError that wraps a lower-level error.
func Wrap(code Code, message string, err error) *CodedError {
	return &CodedError{Code: code, Message: message, Wrapped: err}
}

// Problem is the RFC 9457 problem+json document shape.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     Code   `json:"code"`
	TraceID  string `json:"trace_id,omitempty"`
}

// ToProblem converts a CodedError into its RFC 9457 representation.
func ToProblem(err *CodedError, instance, traceID string) *Problem {
	status := StatusFor(err.Code)
	return &Problem{
		Type:     fmt.Sprintf("https://www.peacprotocol.org/problems/%s", problemSlug(err.Code)),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   err.Message,
		Instance: instance,
		Code:     err.Code,
		TraceID:  traceID,
	}
}

// WriteError writes a CodedError as an RFC 9457 problem+json response with
// the security headers every error response must carry: no content
// sniffing, no caching, no referrer leakage.
func WriteError(w http.ResponseWriter, r *http.Request, err *CodedError) {
	problem := ToProblem(err, r.URL.Path, w.Header().Get("X-Request-ID"))

	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// problemSlug turns a stable code like E_INVALID_TRANSPORT into the
// lowercase, hyphenated slug the problem type URI uses:
// invalid-transport.
func problemSlug(code Code) string {
	s := strings.TrimPrefix(string(code), "E_")
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", "-")
}

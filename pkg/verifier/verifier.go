// Package verifier checks a received PEAC receipt end to end: parse,
// authorize issuer, resolve key, verify signature, validate claims,
// check replay, bind policy, and check purpose. The stages run inline in
// Verify as one linear pipeline, unlike the teacher's offline bundle
// checker, which composed a fixed list of check functions into a
// report — here the checks run in sequence and stop at the first failure, since later stages depend on
// earlier ones having already succeeded (there's no signature to check
// without a resolved key, no claims to validate without a verified
// signature).
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/peacprotocol/peac-core/pkg/canonicalize"
	"github.com/peacprotocol/peac-core/pkg/crypto"
	"github.com/peacprotocol/peac-core/pkg/jwks"
	"github.com/peacprotocol/peac-core/pkg/problemdetail"
	"github.com/peacprotocol/peac-core/pkg/receipt"
	"github.com/peacprotocol/peac-core/pkg/replay"
	"github.com/peacprotocol/peac-core/pkg/transport"
)

// DefaultMaxClockSkewSeconds is the ceiling spec'd for max_clock_skew;
// Policy.MaxClockSkew is clamped to it.
const DefaultMaxClockSkewSeconds = 3600

// PolicyFingerprint recomputes a resource's current policy hash for
// comparison against a receipt's policy_hash claim. Implemented by
// pkg/policy; kept as an interface here so verifier has no import-time
// dependency on policy discovery.
type PolicyFingerprint interface {
	Fingerprint(ctx context.Context, resource string) (string, error)
}

// Policy configures one verification call.
type Policy struct {
	// AllowedIssuers is the issuer allowlist. Empty is rejected unless
	// AllowAnyIssuer is explicitly set.
	AllowedIssuers []string
	AllowAnyIssuer bool

	RequireExp    bool
	MaxClockSkew  time.Duration
	ExpectedPurpose string

	// RequireReplayProtection, when true, rejects a receipt carrying no
	// nonce even though the receipt is otherwise unverified-replayable.
	RequireReplayProtection bool

	Resource string
	Policy   PolicyFingerprint
}

// Timing breaks down where verification time went, per spec.
type Timing struct {
	TotalMS  int64 `json:"total_ms"`
	FetchMS  int64 `json:"fetch_ms"`
	VerifyMS int64 `json:"verify_ms"`
}

// Result is always returned, never an HTTP error: verification failure
// is a structured outcome, and it is the gateway's job to translate
// Code into an HTTP response.
type Result struct {
	Valid   bool            `json:"valid"`
	Claims  *receipt.Claims `json:"claims,omitempty"`
	KeyID   string          `json:"kid,omitempty"`
	Code    problemdetail.Code `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Timing  Timing          `json:"timing"`
}

// Verifier runs the receipt-verification pipeline.
type Verifier struct {
	resolver *jwks.Resolver
	replay   replay.Store
}

// New constructs a Verifier. resolver and store are required but New
// does not check them: a nil store is accepted, and Verify then panics
// on the first receipt that carries a nonce. A store that deliberately
// gives no replay protection comes from replay.NewNoOpStore, which
// itself refuses construction without UNSAFE_ALLOW_NO_REPLAY.
func New(resolver *jwks.Resolver, store replay.Store) *Verifier {
	return &Verifier{resolver: resolver, replay: store}
}

// Verify runs the full pipeline against one parsed transport carrier.
func (v *Verifier) Verify(ctx context.Context, h http.Header, body []byte, p Policy) *Result {
	start := time.Now()
	result := &Result{}

	parsed, err := transport.ParseReceipt(h, body)
	if err != nil {
		return fail(result, start, problemdetail.EInvalidTransport, err.Error())
	}
	if parsed == nil {
		return fail(result, start, problemdetail.EReceiptMissing, "no receipt present in request")
	}

	jws, fetchMS, err := v.resolveJWS(ctx, parsed)
	result.Timing.FetchMS = fetchMS
	if err != nil {
		// ResolvePointer returns a coded E_POINTER_DIGEST_MISMATCH or
		// E_UPSTREAM_ERROR for a pointer carrier; preserve that code
		// instead of collapsing every resolveJWS failure into
		// E_INVALID_JWS_FORMAT, which only fits the header/body
		// structural failures that have no CodedError of their own.
		var coded *problemdetail.CodedError
		if errors.As(err, &coded) {
			return fail(result, start, coded.Code, coded.Message)
		}
		return fail(result, start, problemdetail.EInvalidJWSFormat, err.Error())
	}

	kid, err := crypto.KeyID(jws)
	if err != nil {
		return fail(result, start, problemdetail.EInvalidJWSFormat, err.Error())
	}

	unverifiedIss, err := peekIssuer(jws)
	if err != nil {
		return fail(result, start, problemdetail.EInvalidJWSFormat, err.Error())
	}
	if !issuerAllowed(unverifiedIss, p) {
		return fail(result, start, problemdetail.EIssuerNotAllowed,
			"issuer "+unverifiedIss+" is not in the allowlist")
	}

	verifyStart := time.Now()
	keyResult, err := v.resolver.Resolve(ctx, unverifiedIss, kid)
	result.Timing.FetchMS += time.Since(verifyStart).Milliseconds()
	if err != nil {
		// jwks.Resolver reports its own code — E_SSRF_BLOCKED for a
		// blocked discovery URL, E_UPSTREAM_ERROR/E_TIMEOUT when every
		// discovery path failed transiently, E_KEY_NOT_FOUND only when
		// the kid is genuinely absent. Propagate it instead of
		// collapsing every resolve failure into E_KEY_NOT_FOUND.
		var coded *problemdetail.CodedError
		if errors.As(err, &coded) {
			return fail(result, start, coded.Code, coded.Message)
		}
		return fail(result, start, problemdetail.EKeyNotFound, err.Error())
	}

	verifyStart = time.Now()
	payload, err := crypto.Verify(jws, keyResult.PublicKey)
	result.Timing.VerifyMS = time.Since(verifyStart).Milliseconds()
	if err != nil {
		return fail(result, start, problemdetail.ESignatureInvalid, err.Error())
	}
	result.KeyID = kid

	claims, err := receipt.Validate(payload)
	if err != nil {
		return failFromErr(result, start, problemdetail.ESchemaValidationFailed, err)
	}

	maxSkew := p.MaxClockSkew
	if maxSkew <= 0 || maxSkew > DefaultMaxClockSkewSeconds*time.Second {
		maxSkew = DefaultMaxClockSkewSeconds * time.Second
	}
	now := time.Now().Unix()
	if err := receipt.CheckTimeBounds(now, claims.Iat, claims.Exp, int64(maxSkew/time.Second)); err != nil {
		var coded *problemdetail.CodedError
		if errors.As(err, &coded) {
			return fail(result, start, coded.Code, coded.Message)
		}
		return failFromErr(result, start, problemdetail.ETimeInvalid, err)
	}
	if claims.Exp-claims.Iat > receipt.MaxTTLSeconds {
		return fail(result, start, problemdetail.ETimeInvalid, "exp-iat exceeds the maximum receipt lifetime")
	}

	if claims.Nonce == "" {
		if p.RequireReplayProtection {
			return fail(result, start, problemdetail.EReplayProtectionRequired,
				"receipt carries no nonce and replay protection is required")
		}
	} else {
		ttl := time.Unix(claims.Exp, 0).Sub(time.Unix(claims.Iat, 0))
		seen, err := v.replay.Seen(ctx, claims.Iss, kid, claims.Nonce, ttl)
		if err != nil {
			return failFromErr(result, start, problemdetail.EUpstreamError, err)
		}
		if seen {
			return fail(result, start, problemdetail.ENonceReplay, "nonce has already been used")
		}
	}

	if p.Policy != nil && claims.PolicyHash != "" {
		fp, err := p.Policy.Fingerprint(ctx, p.Resource)
		if err != nil {
			return failFromErr(result, start, problemdetail.EUpstreamError, err)
		}
		if fp != claims.PolicyHash {
			return fail(result, start, problemdetail.EPolicyHashMismatch, "policy_hash does not match current policy fingerprint")
		}
	}

	if err := receipt.CheckPurpose(claims, p.ExpectedPurpose); err != nil {
		return failFromErr(result, start, problemdetail.EPurposeInvalid, err)
	}

	result.Valid = true
	result.Claims = claims
	result.Timing.TotalMS = time.Since(start).Milliseconds()
	return result
}

// resolveJWS returns the compact JWS to verify, fetching the pointer
// URL if the parsed carrier is a pointer profile.
func (v *Verifier) resolveJWS(ctx context.Context, parsed *transport.ParsedReceipt) (string, int64, error) {
	if parsed.Profile != transport.ProfilePointer {
		if len(parsed.Receipts) == 0 {
			return "", 0, errEmptyReceipts
		}
		return parsed.Receipts[0], 0, nil
	}

	start := time.Now()
	jws, err := transport.ResolvePointer(ctx, parsed.Pointer, httpFetch)
	return jws, time.Since(start).Milliseconds(), err
}

func httpFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return buf, nil
}

func issuerAllowed(iss string, p Policy) bool {
	if p.AllowAnyIssuer {
		return os.Getenv("UNSAFE_ALLOW_ANY_ISSUER") == "true"
	}
	for _, allowed := range p.AllowedIssuers {
		if allowed == iss {
			return true
		}
	}
	return false
}

// peekIssuer decodes the unverified payload segment just far enough to
// recover iss, which is needed to pick a JWKS to resolve the key
// against before the signature itself can be checked — standard JWT
// bootstrapping, not a trust decision; iss is re-validated against the
// allowlist and, implicitly, against the resolved key's own issuer once
// the signature verifies.
func peekIssuer(compactJWS string) (string, error) {
	parts := strings.Split(compactJWS, ".")
	if len(parts) != 3 {
		return "", errMalformedJWS
	}
	payload, err := canonicalize.Base64URLDecode(parts[1])
	if err != nil {
		return "", err
	}
	var doc struct {
		Iss string `json:"iss"`
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return "", err
	}
	if doc.Iss == "" {
		return "", errMissingIss
	}
	return doc.Iss, nil
}

func fail(r *Result, start time.Time, code problemdetail.Code, message string) *Result {
	r.Valid = false
	r.Code = code
	r.Message = message
	r.Timing.TotalMS = time.Since(start).Milliseconds()
	return r
}

func failFromErr(r *Result, start time.Time, code problemdetail.Code, err error) *Result {
	return fail(r, start, code, err.Error())
}

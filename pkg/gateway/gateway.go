// Package gateway composes transport parsing, verification, and rate
// limiting into the edge request state machine: bypass, verify, challenge,
// forward. It never mutates shared flags across steps — every step returns
// a Decision and the next step is chosen from it, the same fail-closed
// numbered-check shape as an effect gate deciding whether a single action
// is in bounds.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/peacprotocol/peac-core/pkg/problemdetail"
	"github.com/peacprotocol/peac-core/pkg/ratelimit"
	"github.com/peacprotocol/peac-core/pkg/transport"
	"github.com/peacprotocol/peac-core/pkg/verifier"
)

// Kind tags which branch of the FSM a Decision landed on.
type Kind int

const (
	// Pass means the request matched a bypass path; the gateway does not
	// touch it at all.
	Pass Kind = iota
	// Forward means verification succeeded; the request may proceed with
	// PEAC-Verified/PEAC-Engine headers attached.
	Forward
	// Challenge means no receipt was presented; the caller gets a 402
	// naming what payment/authorization is required.
	Challenge
	// Error means a receipt was presented but rejected, or the gateway
	// itself hit a rate limit, size limit, or upstream failure.
	Error
)

// Decision is the FSM's sole output: a tagged transition, never a shared
// mutable flag the caller has to interpret alongside gateway state.
type Decision struct {
	Kind       Kind
	Result     *verifier.Result // set on Forward/Error once verification ran
	Problem    *problemdetail.CodedError
	RetryAfter time.Duration
	RateLimit  *ratelimit.Decision
}

// Request is the subset of an inbound HTTP request the gateway acts on.
type Request struct {
	Path     string
	Header   http.Header
	Body     []byte
	Resource string // canonical resource URL, used for policy-hash binding
}

// Config wires the gateway's dependencies and policy.
type Config struct {
	BypassPaths     []string
	Verifier        *verifier.Verifier
	VerifyPolicy    func(resource string) verifier.Policy
	Limiter         ratelimit.Limiter
	AnonymousKeyFor func(*http.Request) string
}

// Gateway is the edge verification state machine described by spec §4.10.
type Gateway struct {
	bypass       map[string]bool
	verifier     *verifier.Verifier
	policyFor    func(resource string) verifier.Policy
	limiter      ratelimit.Limiter
	keyFor       func(*http.Request) string
}

// New builds a Gateway from cfg.
func New(cfg Config) *Gateway {
	bypass := make(map[string]bool, len(cfg.BypassPaths))
	for _, p := range cfg.BypassPaths {
		bypass[p] = true
	}
	return &Gateway{
		bypass:    bypass,
		verifier:  cfg.Verifier,
		policyFor: cfg.VerifyPolicy,
		limiter:   cfg.Limiter,
		keyFor:    cfg.AnonymousKeyFor,
	}
}

// Handle runs the FSM for req and returns the resulting Decision. It does
// not write an HTTP response; callers that serve plain net/http requests
// should use WriteResponse.
func (g *Gateway) Handle(ctx context.Context, req *Request) *Decision {
	if g.bypass[req.Path] {
		return &Decision{Kind: Pass}
	}

	parsed, err := transport.ParseReceipt(req.Header, req.Body)
	if err != nil {
		return &Decision{Kind: Error, Problem: asCodedError(err)}
	}
	if parsed == nil {
		return &Decision{Kind: Challenge, Problem: problemdetail.New(problemdetail.EReceiptMissing, "no receipt presented")}
	}

	policy := verifier.Policy{AllowAnyIssuer: true, RequireExp: true}
	if g.policyFor != nil {
		policy = g.policyFor(req.Resource)
	}

	result := g.verifier.Verify(ctx, req.Header, req.Body, policy)
	if !result.Valid {
		return &Decision{
			Kind:    Error,
			Result:  result,
			Problem: problemdetail.New(result.Code, result.Message),
		}
	}

	return &Decision{Kind: Forward, Result: result}
}

// CheckRateLimit applies the configured limiter, using AnonymousKeyFor (or
// the bare remote address) to identify the caller, per spec §5's per-
// identity rule. Both Limiter implementations in pkg/ratelimit are
// token buckets; neither is a sliding-window counter.
func (g *Gateway) CheckRateLimit(ctx context.Context, r *http.Request) (*ratelimit.Decision, error) {
	if g.limiter == nil {
		return &ratelimit.Decision{Allowed: true}, nil
	}
	key := r.RemoteAddr
	if g.keyFor != nil {
		if k := g.keyFor(r); k != "" {
			key = k
		}
	}
	d, err := g.limiter.Allow(ctx, key)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func asCodedError(err error) *problemdetail.CodedError {
	if ce, ok := err.(*problemdetail.CodedError); ok {
		return ce
	}
	return problemdetail.Wrap(problemdetail.EInvalidTransport, "malformed receipt transport", err)
}

// ClientIP resolves the caller's identity per spec §5: trust the first
// X-Forwarded-For/CF-Connecting-IP hop only when PEAC_TRUST_PROXY is set,
// otherwise use the socket peer address.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if v := r.Header.Get("CF-Connecting-IP"); v != "" {
			return v
		}
		if v := r.Header.Get("X-Forwarded-For"); v != "" {
			parts := strings.Split(v, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	return r.RemoteAddr
}

package gateway

import (
	"net/http"
	"strconv"

	"github.com/peacprotocol/peac-core/pkg/problemdetail"
	"github.com/peacprotocol/peac-core/pkg/ratelimit"
)

const engineHeaderValue = "receipt"

// WriteResponse renders d as the HTTP response spec §4.10 requires: no
// body for Pass/Forward beyond the verified headers, RFC 9457 problem+json
// otherwise, with a Retry-After when the decision carries one.
func WriteResponse(w http.ResponseWriter, r *http.Request, d *Decision) {
	switch d.Kind {
	case Pass:
		return
	case Forward:
		w.Header().Set("PEAC-Verified", "true")
		w.Header().Set("PEAC-Engine", engineHeaderValue)
		return
	case Challenge, Error:
		writeProblem(w, r, d)
	}
}

// WriteRateLimited answers a throttled request per spec §4.10/§5: 429 with
// Retry-After and RFC 9333 RateLimit-* headers.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
	w.Header().Set("RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if d.RetryAfter > 0 {
		seconds := strconv.Itoa(int(d.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", seconds)
		w.Header().Set("RateLimit-Reset", seconds)
	}
	problemdetail.WriteError(w, r, problemdetail.New(problemdetail.ERateLimited, "rate limit exceeded"))
}

func writeProblem(w http.ResponseWriter, r *http.Request, d *Decision) {
	if d.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())))
	}
	problem := d.Problem
	if problem == nil {
		problem = problemdetail.New(problemdetail.EUpstreamError, "unknown gateway error")
	}
	problemdetail.WriteError(w, r, problem)
}

package gateway

import (
	"io"
	"net/http"
)

const maxRequestBody = 256 * 1024

// Middleware wraps next with the full edge pipeline: rate limit, then the
// bypass/verify/challenge/forward FSM. A forwarded request reaches next
// with PEAC-Verified/PEAC-Engine already set; anything else short-circuits
// with a problem+json response and next is never called.
func (g *Gateway) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl, err := g.CheckRateLimit(r.Context(), r); err == nil && rl != nil && !rl.Allowed {
			WriteRateLimited(w, r, *rl)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
		if err != nil {
			WriteResponse(w, r, &Decision{Kind: Error, Problem: asCodedError(err)})
			return
		}

		req := &Request{Path: r.URL.Path, Header: r.Header, Body: body, Resource: resourceURL(r)}
		decision := g.Handle(r.Context(), req)
		WriteResponse(w, r, decision)

		if decision.Kind == Pass || decision.Kind == Forward {
			next.ServeHTTP(w, r)
		}
	})
}

func resourceURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.Path
}

// Package jwks implements discovery, caching, and SSRF-guarded fetching
// of issuer verification keys.
package jwks

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/peacprotocol/peac-core/pkg/canonicalize"
	"github.com/peacprotocol/peac-core/pkg/problemdetail"
)

const (
	maxResponseBytes = 1 << 20 // 1 MiB
	maxKeysInSet     = 100
	fetchTimeout     = 5 * time.Second
	maxStaleAge      = 48 * time.Hour
)

// jwk is a single JSON Web Key, Ed25519/OKP only.
type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	X   string `json:"x"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// HTTPDoer is the subset of *http.Client this package needs, so callers
// can inject instrumented or test clients. Redirects must be disabled by
// the caller's client (redirect: error per the discovery contract).
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Resolver resolves (issuer, kid) to a verification key, backed by an
// LRU+TTL cache, singleflight-coalesced fetches, and stale-if-error.
type Resolver struct {
	client      HTTPDoer
	cache       *Cache
	sf          *singleflightGroup
	guard       GuardConfig
	allowStale  bool
	maxStaleAge time.Duration
}

// ResolverOption configures a Resolver at construction.
type ResolverOption func(*Resolver)

// WithGuardConfig overrides the SSRF guard configuration.
func WithGuardConfig(cfg GuardConfig) ResolverOption {
	return func(r *Resolver) { r.guard = cfg }
}

// WithAllowStale enables the stale-if-error fallback.
func WithAllowStale(allow bool) ResolverOption {
	return func(r *Resolver) { r.allowStale = allow }
}

// WithMaxEntries bounds the LRU cache; 0 uses the default.
func WithMaxEntries(n int) ResolverOption {
	return func(r *Resolver) { r.cache = NewCache(n) }
}

// NewResolver creates a Resolver using client for fetches. Pass an
// *http.Client configured with CheckRedirect returning an error, per the
// "no following redirects" discovery rule.
func NewResolver(client HTTPDoer, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:      client,
		cache:       NewCache(0),
		sf:          newSingleflightGroup(),
		allowStale:  false,
		maxStaleAge: maxStaleAge,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is what Resolve returns on success: the key plus whether it was
// served from a stale cache entry.
type Result struct {
	PublicKey ed25519.PublicKey
	Stale     bool
}

// Resolve returns the Ed25519 public key published under kid in issuer's
// JWKS, using the cache first and falling back to discovery on a miss.
// Concurrent calls for the same (issuer, kid) coalesce into one fetch.
func (r *Resolver) Resolve(ctx context.Context, issuer, kid string) (*Result, error) {
	if entry, ok := r.cache.Get(issuer, kid); ok {
		return &Result{PublicKey: ed25519.PublicKey(entry.PublicKeyX25519[:])}, nil
	}

	v, err := r.sf.Do(issuer+"|"+kid, func() (any, error) {
		return r.fetchAndCache(ctx, issuer, kid)
	})
	if err != nil {
		if r.allowStale && isTransient(err) {
			if entry, ok := r.cache.GetStale(issuer, kid); ok {
				if time.Since(entry.ExpiresAt) <= r.maxStaleAge {
					return &Result{PublicKey: ed25519.PublicKey(entry.PublicKeyX25519[:]), Stale: true}, nil
				}
			}
		}
		return nil, err
	}
	return v.(*Result), nil
}

// transientError tags an error as a connectivity/availability failure
// (network error, 5xx, timeout) rather than a definitive answer, so
// Resolve knows when it's safe to fall back to a stale cache entry.
// Unwrap exposes the wrapped *problemdetail.CodedError (or whatever
// underlying error) to errors.As/errors.Is across the call's return path.
type transientError struct{ error }

func (t transientError) Unwrap() error { return t.error }

func isTransient(err error) bool {
	_, ok := err.(transientError)
	return ok
}

var discoveryPaths = []struct {
	path   string
	source string
	single bool
}{
	{"/.well-known/jwks", "/.well-known/jwks", false},
	{"/keys", "/keys?keyID=", true},
	{"/.well-known/jwks.json", "/.well-known/jwks.json", false},
}

// fetchAndCache walks the discovery paths in order; a non-transient
// fetch error ends the walk at once. If no path yields kid and at least
// one path failed transiently (network failure, 5xx, timeout), the kid
// isn't confirmed absent, it's merely unreachable, so the returned error
// is tagged transient and carries EUpstreamError/ETimeout rather than
// EKeyNotFound, even when other paths answered without it. Resolve uses that tag
// to decide whether a stale cache entry may stand in.
func (r *Resolver) fetchAndCache(ctx context.Context, issuer, kid string) (*Result, error) {
	var (
		transientErrCount int
		lastTransientErr  error
	)

	for _, d := range discoveryPaths {
		reqURL := issuer + d.path
		if d.single {
			reqURL = issuer + d.path + "?keyID=" + kid
		}

		if err := CheckURL(reqURL, r.guard); err != nil {
			return nil, problemdetail.Wrap(problemdetail.ESSRFBlocked, "jwks discovery URL blocked", err)
		}

		body, etag, maxAge, hadMaxAge, err := r.doFetch(ctx, reqURL)
		if err != nil {
			if isTransient(err) {
				transientErrCount++
				lastTransientErr = err
				continue // try the next discovery path
			}
			return nil, problemdetail.Wrap(problemdetail.EUpstreamError, fmt.Sprintf("jwks fetch %s failed", reqURL), err)
		}
		if body == nil {
			continue // 404 — not found at this path
		}

		key, ttlEntry, found, err := parseAndFind(body, kid, d.source, etag, hadMaxAge, maxAge)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		r.cache.Put(issuer, kid, ttlEntry)
		return &Result{PublicKey: key}, nil
	}

	if transientErrCount > 0 {
		code := problemdetail.EUpstreamError
		if errors.Is(lastTransientErr, context.DeadlineExceeded) {
			code = problemdetail.ETimeout
		}
		msg := fmt.Sprintf("kid %q not resolvable for issuer %q: %d of %d discovery path(s) failed transiently", kid, issuer, transientErrCount, len(discoveryPaths))
		return nil, transientError{problemdetail.Wrap(code, msg, lastTransientErr)}
	}

	return nil, problemdetail.New(problemdetail.EKeyNotFound, fmt.Sprintf("kid %q not found for issuer %q via any discovery path", kid, issuer))
}

// doFetch returns (nil, "", 0, false, nil) for a 404 so the caller moves
// to the next discovery path without treating it as an error.
func (r *Resolver) doFetch(ctx context.Context, url string) ([]byte, string, time.Duration, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", 0, false, fmt.Errorf("jwks: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", 0, false, transientError{fmt.Errorf("jwks: fetch %s: %w", url, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", 0, false, nil
	}
	if resp.StatusCode >= 500 {
		return nil, "", 0, false, transientError{fmt.Errorf("jwks: %s returned %d", url, resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", 0, false, fmt.Errorf("jwks: %s returned %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, "", 0, false, transientError{fmt.Errorf("jwks: read %s: %w", url, err)}
	}
	if len(body) > maxResponseBytes {
		return nil, "", 0, false, fmt.Errorf("jwks: response from %s exceeds %d bytes", url, maxResponseBytes)
	}

	maxAge, hadMaxAge := parseMaxAge(resp.Header.Get("Cache-Control"))
	return body, resp.Header.Get("ETag"), maxAge, hadMaxAge, nil
}

func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if after, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(after); err == nil {
				return time.Duration(secs) * time.Second, true
			}
		}
	}
	return 0, false
}

func parseAndFind(body []byte, kid, source, etag string, hadMaxAge bool, maxAge time.Duration) (ed25519.PublicKey, CacheEntry, bool, error) {
	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil || set.Keys == nil {
		var single jwk
		if err2 := json.Unmarshal(body, &single); err2 != nil {
			return nil, CacheEntry{}, false, fmt.Errorf("jwks: response is neither a key set nor a single JWK: %w", err)
		}
		set.Keys = []jwk{single}
	}

	if len(set.Keys) > maxKeysInSet {
		return nil, CacheEntry{}, false, fmt.Errorf("jwks: key set has %d keys, exceeds limit %d", len(set.Keys), maxKeysInSet)
	}

	for _, k := range set.Keys {
		if k.Kid != kid {
			continue
		}
		if k.Kty != "OKP" || k.Crv != "Ed25519" {
			return nil, CacheEntry{}, false, fmt.Errorf("jwks: kid %q has unsupported kty/crv %s/%s", kid, k.Kty, k.Crv)
		}
		xBytes, err := canonicalize.Base64URLDecode(k.X)
		if err != nil || len(xBytes) != ed25519.PublicKeySize {
			return nil, CacheEntry{}, false, fmt.Errorf("jwks: kid %q has invalid x value", kid)
		}

		var entry CacheEntry
		copy(entry.PublicKeyX25519[:], xBytes)
		entry.Source = source
		entry.ETag = etag
		entry.FetchedAt = time.Now()
		entry.ExpiresAt = entry.FetchedAt.Add(ClampTTL(maxAge, hadMaxAge))
		return ed25519.PublicKey(xBytes), entry, true, nil
	}

	return nil, CacheEntry{}, false, nil
}

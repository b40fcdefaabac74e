package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/peacprotocol/peac-core/pkg/jwks"
)

const (
	totalBudget   = 250 * time.Millisecond
	perFetchBudget = 150 * time.Millisecond
)

// HTTPDoer is the subset of *http.Client this package needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Hints carries signals the caller already has in hand from serving
// resource itself, so discovery does not need to re-fetch the resource
// body just to look for an aipref header or an agent-permissions link
// tag: the gateway already has both on the request/response it is
// deciding about.
type Hints struct {
	AIPref       string // raw aipref header value, if present
	AgentPermHref string // resolved href from <link rel="agent-permissions">, if already extracted
	Body         []byte // resource HTML body, scanned for the link tag if AgentPermHref is empty
}

// Discoverer finds and fingerprints policy descriptors for a resource.
type Discoverer struct {
	client HTTPDoer
	guard  jwks.GuardConfig
	cache  *cache
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithGuardConfig overrides the SSRF guard applied to every fetch.
func WithGuardConfig(cfg jwks.GuardConfig) Option {
	return func(d *Discoverer) { d.guard = cfg }
}

// New constructs a Discoverer using client for HTTP fetches.
func New(client HTTPDoer, opts ...Option) *Discoverer {
	d := &Discoverer{client: client, cache: newCache(0)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var linkTagRe = regexp.MustCompile(`(?i)<link[^>]+rel=["']agent-permissions["'][^>]*href=["']([^"']+)["']`)

// Discover returns the descriptor set for resource. It always fetches
// and does not read the descriptor cache (Fingerprint does). The total wall-clock budget for any fetches
// performed is totalBudget; an individual fetch is bounded to
// perFetchBudget and a timeout on one descriptor does not abort the
// others — a slow agent-permissions link fetch still leaves peac.txt
// and aipref available.
func (d *Discoverer) Discover(ctx context.Context, resource string, hints Hints) ([]Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, totalBudget)
	defer cancel()

	var descriptors []Descriptor

	if desc, ok := d.fetchPeacTxt(ctx, resource); ok {
		descriptors = append(descriptors, desc)
	}

	if hints.AIPref != "" {
		descriptors = append(descriptors, Descriptor{
			Type: "aipref",
			URL:  resource,
			Body: hints.AIPref,
		})
	}

	if href := agentPermissionsHref(hints); href != "" {
		if resolved, err := resolveHref(resource, href); err == nil {
			if desc, ok := d.fetchDescriptor(ctx, "agent-permissions", resolved, ""); ok {
				descriptors = append(descriptors, desc)
			}
		}
	}

	return descriptors, nil
}

func agentPermissionsHref(hints Hints) string {
	if hints.AgentPermHref != "" {
		return hints.AgentPermHref
	}
	if len(hints.Body) == 0 {
		return ""
	}
	m := linkTagRe.FindSubmatch(hints.Body)
	if m == nil {
		return ""
	}
	return string(m[1])
}

func resolveHref(resource, href string) (string, error) {
	base, err := url.Parse(resource)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(rel).String(), nil
}

func (d *Discoverer) fetchPeacTxt(ctx context.Context, resource string) (Descriptor, bool) {
	base, err := url.Parse(resource)
	if err != nil {
		return Descriptor{}, false
	}
	peacURL := base.Scheme + "://" + base.Host + "/.well-known/peac.txt"
	return d.fetchDescriptor(ctx, "peac.txt", peacURL, "")
}

func (d *Discoverer) fetchDescriptor(ctx context.Context, typ, fetchURL, etag string) (Descriptor, bool) {
	if err := jwks.CheckURL(fetchURL, d.guard); err != nil {
		return Descriptor{}, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, perFetchBudget)
	defer cancel()

	body, respETag, err := d.doFetch(fetchCtx, fetchURL, etag)
	if err != nil || body == nil {
		return Descriptor{}, false
	}

	return Descriptor{Type: typ, URL: fetchURL, ETag: respETag, Body: string(body)}, true
}

func (d *Discoverer) doFetch(ctx context.Context, fetchURL, etag string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, "", err
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, etag, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", nil
	}
	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("policy: fetch %s: status %d", fetchURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("ETag"), nil
}

// Fingerprint is the convenience call most verifiers want: discover, then
// fingerprint. It implements verifier.PolicyFingerprint.
func (d *Discoverer) Fingerprint(ctx context.Context, resource string) (string, error) {
	if cached, ok := d.cache.get(resource); ok {
		return cached.Fingerprint, nil
	}

	descriptors, err := d.Discover(ctx, resource, Hints{})
	if err != nil {
		return "", err
	}
	if len(descriptors) == 0 {
		return "", errNoDescriptors
	}

	fp, err := Fingerprint(descriptors)
	if err != nil {
		return "", err
	}

	etagKey := etagConcat(descriptors)
	d.cache.put(resource, cacheEntry{
		ETagKey:     etagKey,
		Fingerprint: fp,
		Descriptors: descriptors,
		ExpiresAt:   time.Now().Add(cacheTTL),
	})
	return fp, nil
}

func etagConcat(descriptors []Descriptor) string {
	var sb strings.Builder
	for _, d := range descriptors {
		sb.WriteString(d.ETag)
		sb.WriteByte('|')
	}
	return sb.String()
}

var errNoDescriptors = errors.New("policy: no descriptors discovered for resource")

// Package transport parses the three carrier profiles a receipt can
// arrive in — header, pointer, and body — and surfaces them behind a
// uniform ParsedReceipt regardless of which profile was actually used.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/peacprotocol/peac-core/pkg/problemdetail"
)

// Profile identifies which carrier a receipt arrived through.
type Profile string

const (
	ProfileHeader  Profile = "header"
	ProfilePointer Profile = "pointer"
	ProfileBody    Profile = "body"
)

// Pointer describes a PEAC-Receipt-Pointer header: the JWS is not inline
// but must be fetched from url and verified against the declared digest.
type Pointer struct {
	Alg    string            // always "sha256"
	Digest string            // 64 lowercase hex chars
	URL    string            // https:// only
	Ext    map[string]string // forward-compatible ext_* parameters
}

// ParsedReceipt is the uniform result of parsing any of the three
// transport profiles.
type ParsedReceipt struct {
	Profile  Profile
	Receipts []string // compact JWS strings; len==1 except body's peac_receipts array
	Pointer  *Pointer
}

const (
	maxHeaderBytes = 4 * 1024
	maxBodyBytes   = 256 * 1024
)

var jwsSegmentRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseReceipt auto-detects the transport profile present in h/body with
// fixed precedence header > pointer > body, and returns a ParsedReceipt.
// It performs only structural validation (well-formed carrier shape); it
// does not verify the JWS signature, fetch pointer URLs, or check the
// declared digest against fetched bytes — callers that need the pointer
// resolved supply their own fetcher and call ResolvePointer explicitly,
// since this package does no network I/O itself.
func ParseReceipt(h http.Header, body []byte) (*ParsedReceipt, error) {
	if len(body) > maxBodyBytes {
		return nil, problemdetail.New(problemdetail.ERequestTooLarge,
			fmt.Sprintf("body of %d bytes exceeds the %d byte limit", len(body), maxBodyBytes))
	}

	if vals := h.Values("PEAC-Receipt"); len(vals) > 0 {
		return parseHeaderProfile(vals)
	}

	if pointerVals := h.Values("PEAC-Receipt-Pointer"); len(pointerVals) > 0 {
		return parsePointerProfile(pointerVals)
	}

	if len(body) > 0 {
		return parseBodyProfile(body)
	}

	return nil, nil
}

func parseHeaderProfile(vals []string) (*ParsedReceipt, error) {
	if len(vals) != 1 {
		return nil, problemdetail.New(problemdetail.EInvalidTransport,
			fmt.Sprintf("PEAC-Receipt header must be single-valued, got %d values", len(vals)))
	}
	if len(vals[0]) > maxHeaderBytes {
		return nil, problemdetail.New(problemdetail.ERequestTooLarge,
			fmt.Sprintf("PEAC-Receipt header of %d bytes exceeds the %d byte limit", len(vals[0]), maxHeaderBytes))
	}
	if err := validateCompactJWSShape(vals[0]); err != nil {
		return nil, err
	}
	return &ParsedReceipt{Profile: ProfileHeader, Receipts: []string{vals[0]}}, nil
}

func validateCompactJWSShape(jws string) error {
	segments := strings.Split(jws, ".")
	if len(segments) != 3 {
		return problemdetail.New(problemdetail.EInvalidJWSFormat,
			fmt.Sprintf("expected 3 base64url segments, got %d", len(segments)))
	}
	for i, seg := range segments {
		if seg == "" || !jwsSegmentRe.MatchString(seg) {
			return problemdetail.New(problemdetail.EInvalidJWSFormat,
				fmt.Sprintf("segment %d is empty or not valid base64url", i))
		}
	}
	return nil
}

func parsePointerProfile(vals []string) (*ParsedReceipt, error) {
	if len(vals) != 1 {
		return nil, problemdetail.New(problemdetail.EInvalidTransport,
			fmt.Sprintf("PEAC-Receipt-Pointer header must be single-valued, got %d values", len(vals)))
	}

	params, err := parseStructuredParams(vals[0])
	if err != nil {
		return nil, err
	}

	p := &Pointer{Alg: "sha256", Ext: map[string]string{}}
	seen := map[string]bool{}
	for _, kv := range params {
		key, val := kv[0], kv[1]
		if seen[key] {
			return nil, problemdetail.New(problemdetail.EInvalidTransport,
				fmt.Sprintf("pointer parameter %q appears more than once", key))
		}
		seen[key] = true

		switch {
		case key == "sha256":
			p.Digest = strings.ToLower(val)
		case key == "url":
			p.URL = val
		case strings.HasPrefix(key, "ext_"):
			p.Ext[key] = val
		default:
			return nil, problemdetail.New(problemdetail.EInvalidTransport,
				fmt.Sprintf("unknown pointer parameter %q", key))
		}
	}

	if p.Digest == "" || p.URL == "" {
		return nil, problemdetail.New(problemdetail.EInvalidTransport, "pointer requires both sha256 and url")
	}
	if len(p.Digest) != 64 || !isLowerHex(p.Digest) {
		return nil, problemdetail.New(problemdetail.EInvalidTransport, "sha256 parameter must be 64 lowercase hex characters")
	}
	u, err := url.Parse(p.URL)
	if err != nil || u.Scheme != "https" {
		return nil, problemdetail.New(problemdetail.EInvalidTransport, "pointer url must be an https:// URL")
	}

	return &ParsedReceipt{Profile: ProfilePointer, Pointer: p}, nil
}

func isLowerHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')) {
			return false
		}
	}
	return true
}

// parseStructuredParams parses `key="value", key2="value2"` pairs, the
// shape PEAC-Receipt-Pointer uses instead of full RFC 8941 structured
// fields — just enough quoting to carry a URL safely.
func parseStructuredParams(s string) ([][2]string, error) {
	var out [][2]string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return nil, problemdetail.New(problemdetail.EInvalidTransport, fmt.Sprintf("malformed pointer parameter %q", part))
		}
		key := strings.TrimSpace(part[:eq])
		val := strings.TrimSpace(part[eq+1:])
		val = strings.TrimPrefix(val, `"`)
		val = strings.TrimSuffix(val, `"`)
		out = append(out, [2]string{key, val})
	}
	return out, nil
}

type bodyReceiptDoc struct {
	Receipt  *string  `json:"peac_receipt,omitempty"`
	Receipts []string `json:"peac_receipts,omitempty"`
}

func parseBodyProfile(body []byte) (*ParsedReceipt, error) {
	var doc bodyReceiptDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, problemdetail.Wrap(problemdetail.EInvalidTransport, "body is not valid JSON", err)
	}

	if doc.Receipts != nil {
		if len(doc.Receipts) == 0 {
			return nil, problemdetail.New(problemdetail.EInvalidTransport, "peac_receipts must not be an empty array")
		}
		for _, jws := range doc.Receipts {
			if err := validateCompactJWSShape(jws); err != nil {
				return nil, err
			}
		}
		return &ParsedReceipt{Profile: ProfileBody, Receipts: doc.Receipts}, nil
	}

	if doc.Receipt != nil {
		if err := validateCompactJWSShape(*doc.Receipt); err != nil {
			return nil, err
		}
		return &ParsedReceipt{Profile: ProfileBody, Receipts: []string{*doc.Receipt}}, nil
	}

	return nil, problemdetail.New(problemdetail.EInvalidTransport, "body carries neither peac_receipt nor peac_receipts")
}

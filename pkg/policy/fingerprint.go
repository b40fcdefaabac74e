package policy

import (
	"sort"

	"github.com/peacprotocol/peac-core/pkg/canonicalize"
)

// fingerprintEntry is the shape actually hashed: Descriptor minus ETag,
// which is cache bookkeeping rather than policy content.
type fingerprintEntry struct {
	Type string `json:"type"`
	URL  string `json:"url"`
	Body string `json:"body,omitempty"`
}

// Fingerprint sorts descriptors by type then url, canonicalizes them
// with JCS, and returns base64url(SHA-256(canonical)) — the value a
// receipt's policy_hash claim must match.
func Fingerprint(descriptors []Descriptor) (string, error) {
	sorted := make([]Descriptor, len(descriptors))
	copy(sorted, descriptors)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return sorted[i].URL < sorted[j].URL
	})

	entries := make([]fingerprintEntry, len(sorted))
	for i, d := range sorted {
		entries[i] = fingerprintEntry{Type: d.Type, URL: d.URL, Body: d.Body}
	}

	return canonicalize.CanonicalHash(entries)
}

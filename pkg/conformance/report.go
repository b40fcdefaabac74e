package conformance

import (
	"sort"

	"github.com/peacprotocol/peac-core/pkg/canonicalize"
)

// Result is the outcome of running a single fixture.
type Result struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail,omitempty"`
}

// Summary totals a Report's results.
type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// Suite identifies the fixture set a report was run against.
type Suite struct {
	Name          string `json:"name"`
	VectorsDigest string `json:"vectors_digest"`
}

// Report is the full, reproducible conformance run output.
type Report struct {
	Suite          Suite    `json:"suite"`
	Implementation string   `json:"implementation"`
	Summary        Summary  `json:"summary"`
	Results        []Result `json:"results"`
}

// digestManifest computes vectors_digest = CanonicalHash(JCS(manifest +
// fixtures)): base64url(sha256(JCS(...))), stable under key reordering
// and matching the policy-fingerprint digest convention used elsewhere
// in this module.
func digestManifest(manifest *Manifest, fixtures []*Fixture) (string, error) {
	type digestFixture struct {
		Category string         `json:"category"`
		Name     string         `json:"name"`
		Claims   map[string]any `json:"claims,omitempty"`
		Payload  map[string]any `json:"payload,omitempty"`
	}

	sorted := make([]digestFixture, len(fixtures))
	for i, f := range fixtures {
		sorted[i] = digestFixture{Category: f.Category, Name: f.Name, Claims: f.Claims, Payload: f.Payload}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Category != sorted[j].Category {
			return sorted[i].Category < sorted[j].Category
		}
		return sorted[i].Name < sorted[j].Name
	})

	return canonicalize.CanonicalHash(struct {
		Manifest *Manifest       `json:"manifest"`
		Fixtures []digestFixture `json:"fixtures"`
	}{Manifest: manifest, Fixtures: sorted})
}

func buildSummary(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

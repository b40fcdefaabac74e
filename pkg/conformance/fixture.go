// Package conformance runs the category-organized fixture suites that
// exercise every other component against known-good and known-bad
// inputs, and produces a reproducible signed-by-content report.
package conformance

import (
	"encoding/json"
	"errors"
)

// Fixture is one conformance test vector. At most one of Claims or
// Payload is set: Claims is a receipt claim set to run schema/time
// checks against directly, Payload is a full transport envelope (header
// values, body bytes) for end-to-end verifier fixtures. A fixture
// carrying both is rejected as ambiguous before it ever runs.
type Fixture struct {
	Category string         `json:"-"`
	Name     string         `json:"-"`
	Claims   map[string]any `json:"claims,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`

	ExpectedValid     bool   `json:"expected_valid"`
	ExpectedErrorCode string `json:"expected_error_code,omitempty"`
	ExpectedPath      string `json:"expected_path,omitempty"`
	ExpectedKeyword   string `json:"expected_keyword,omitempty"`
}

var errAmbiguousFixture = errors.New("conformance: ambiguous fixture: sets both claims and payload")

// Validate rejects an ambiguous fixture before it is run.
func (f *Fixture) Validate() error {
	if len(f.Claims) > 0 && len(f.Payload) > 0 {
		return errAmbiguousFixture
	}
	return nil
}

// Manifest declares the expected outcome for every fixture in the suite,
// independent of the fixture files themselves, so the runner can detect a
// fixture file that drifted from its declared expectation.
type Manifest struct {
	Fixtures []ManifestEntry `json:"fixtures"`
}

// ManifestEntry names one fixture and its expected outcome.
type ManifestEntry struct {
	Category          string `json:"category"`
	Name              string `json:"name"`
	ExpectedValid     bool   `json:"expected_valid"`
	ExpectedErrorCode string `json:"expected_error_code,omitempty"`
	ExpectedPath      string `json:"expected_path,omitempty"`
	ExpectedKeyword   string `json:"expected_keyword,omitempty"`
}

func parseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func parseFixture(raw []byte) (*Fixture, error) {
	var f Fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

package conformance

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// CategoryHandler runs one fixture and reports the observed outcome: is
// the input valid, and if not, which stable code rejected it.
type CategoryHandler func(f *Fixture) (valid bool, code string, err error)

// Runner loads a testdata/<category>/*.json + manifest.json tree from
// fsys and runs each fixture through the handler registered for its
// category.
type Runner struct {
	fsys           fs.FS
	handlers       map[string]CategoryHandler
	implementation string
}

// NewRunner builds a Runner reading fixtures from fsys. implementation
// identifies the implementation under test in the resulting Report.
func NewRunner(fsys fs.FS, implementation string) *Runner {
	return &Runner{fsys: fsys, handlers: make(map[string]CategoryHandler), implementation: implementation}
}

// Handle registers the handler that runs fixtures in category.
func (r *Runner) Handle(category string, h CategoryHandler) {
	r.handlers[category] = h
}

// Run loads manifest.json and every testdata/<category>/*.json fixture,
// in deterministic sorted-category/sorted-filename order, and returns the
// resulting Report. A fixture lacking a registered category handler, or
// one that fails Fixture.Validate, counts as a failed result rather than
// aborting the run.
func (r *Runner) Run(suiteName string) (*Report, error) {
	manifestRaw, err := fs.ReadFile(r.fsys, "manifest.json")
	if err != nil {
		return nil, fmt.Errorf("conformance: read manifest.json: %w", err)
	}
	manifest, err := parseManifest(manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("conformance: parse manifest.json: %w", err)
	}

	expectations := make(map[string]ManifestEntry, len(manifest.Fixtures))
	for _, e := range manifest.Fixtures {
		expectations[e.Category+"/"+e.Name] = e
	}

	categories, err := sortedDirs(r.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("conformance: list categories: %w", err)
	}

	var fixtures []*Fixture
	var results []Result

	for _, category := range categories {
		names, err := sortedJSONFiles(r.fsys, category)
		if err != nil {
			return nil, fmt.Errorf("conformance: list fixtures for %s: %w", category, err)
		}

		for _, name := range names {
			fixture, err := r.loadFixture(category, name, expectations)
			if err != nil {
				results = append(results, Result{Category: category, Name: name, Passed: false, Detail: err.Error()})
				continue
			}
			fixtures = append(fixtures, fixture)
			results = append(results, r.runFixture(category, fixture))
		}
	}

	digest, err := digestManifest(manifest, fixtures)
	if err != nil {
		return nil, fmt.Errorf("conformance: digest manifest: %w", err)
	}

	return &Report{
		Suite:          Suite{Name: suiteName, VectorsDigest: digest},
		Implementation: r.implementation,
		Summary:        buildSummary(results),
		Results:        results,
	}, nil
}

func (r *Runner) loadFixture(category, filename string, expectations map[string]ManifestEntry) (*Fixture, error) {
	raw, err := fs.ReadFile(r.fsys, path.Join(category, filename))
	if err != nil {
		return nil, err
	}
	fixture, err := parseFixture(raw)
	if err != nil {
		return nil, err
	}
	fixture.Category = category
	fixture.Name = strings.TrimSuffix(filename, ".json")

	if exp, ok := expectations[category+"/"+fixture.Name]; ok {
		fixture.ExpectedValid = exp.ExpectedValid
		if fixture.ExpectedErrorCode == "" {
			fixture.ExpectedErrorCode = exp.ExpectedErrorCode
		}
		if fixture.ExpectedPath == "" {
			fixture.ExpectedPath = exp.ExpectedPath
		}
		if fixture.ExpectedKeyword == "" {
			fixture.ExpectedKeyword = exp.ExpectedKeyword
		}
	}

	if err := fixture.Validate(); err != nil {
		return nil, err
	}
	return fixture, nil
}

func (r *Runner) runFixture(category string, fixture *Fixture) Result {
	handler, ok := r.handlers[category]
	if !ok {
		return Result{Category: category, Name: fixture.Name, Passed: false, Detail: "no handler registered for category " + category}
	}

	valid, code, err := handler(fixture)
	if err != nil {
		return Result{Category: category, Name: fixture.Name, Passed: false, Detail: err.Error()}
	}

	if valid != fixture.ExpectedValid {
		return Result{
			Category: category, Name: fixture.Name, Passed: false,
			Detail: fmt.Sprintf("expected_valid=%v, got valid=%v", fixture.ExpectedValid, valid),
		}
	}
	if !valid && fixture.ExpectedErrorCode != "" && code != fixture.ExpectedErrorCode {
		return Result{
			Category: category, Name: fixture.Name, Passed: false,
			Detail: fmt.Sprintf("expected_error_code=%s, got code=%s", fixture.ExpectedErrorCode, code),
		}
	}
	return Result{Category: category, Name: fixture.Name, Passed: true}
}

func sortedDirs(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func sortedJSONFiles(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

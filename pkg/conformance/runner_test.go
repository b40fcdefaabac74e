package conformance

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestFS() fstest.MapFS {
	return fstest.MapFS{
		"manifest.json": &fstest.MapFile{Data: []byte(`{
			"fixtures": [
				{"category": "schema", "name": "valid-claims", "expected_valid": true},
				{"category": "schema", "name": "missing-iss", "expected_valid": false, "expected_error_code": "E_MISSING_CLAIM"}
			]
		}`)},
		"schema/valid-claims.json": &fstest.MapFile{Data: []byte(`{"claims": {"iss": "https://issuer.example"}}`)},
		"schema/missing-iss.json":  &fstest.MapFile{Data: []byte(`{"claims": {}}`)},
	}
}

func TestRunner_RunsFixturesAndSummarizes(t *testing.T) {
	runner := NewRunner(buildTestFS(), "test-impl")
	runner.Handle("schema", func(f *Fixture) (bool, string, error) {
		if _, ok := f.Claims["iss"]; !ok {
			return false, "E_MISSING_CLAIM", nil
		}
		return true, "", nil
	})

	report, err := runner.Run("schema-suite")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.Total)
	assert.Equal(t, 2, report.Summary.Passed)
	assert.Equal(t, 0, report.Summary.Failed)
	assert.NotEmpty(t, report.Suite.VectorsDigest)
	assert.Equal(t, "test-impl", report.Implementation)
}

func TestRunner_FlagsMismatchedExpectation(t *testing.T) {
	runner := NewRunner(buildTestFS(), "test-impl")
	runner.Handle("schema", func(f *Fixture) (bool, string, error) {
		return true, "", nil // wrong: missing-iss should be invalid
	})

	report, err := runner.Run("schema-suite")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Failed)
}

func TestRunner_MissingHandlerFailsFixture(t *testing.T) {
	runner := NewRunner(buildTestFS(), "test-impl")

	report, err := runner.Run("schema-suite")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.Failed)
}

func TestRunner_RejectsAmbiguousFixture(t *testing.T) {
	fsys := fstest.MapFS{
		"manifest.json": &fstest.MapFile{Data: []byte(`{"fixtures": [{"category": "schema", "name": "ambiguous", "expected_valid": true}]}`)},
		"schema/ambiguous.json": &fstest.MapFile{Data: []byte(`{"claims": {"iss": "x"}, "payload": {"body": "y"}}`)},
	}
	runner := NewRunner(fsys, "test-impl")
	runner.Handle("schema", func(f *Fixture) (bool, string, error) { return true, "", nil })

	report, err := runner.Run("ambiguous-suite")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Contains(t, report.Results[0].Detail, "ambiguous")
}

func TestRunner_DigestStableAcrossRuns(t *testing.T) {
	fsys := buildTestFS()
	handler := func(f *Fixture) (bool, string, error) {
		if _, ok := f.Claims["iss"]; !ok {
			return false, "E_MISSING_CLAIM", nil
		}
		return true, "", nil
	}

	r1 := NewRunner(fsys, "test-impl")
	r1.Handle("schema", handler)
	report1, err := r1.Run("schema-suite")
	require.NoError(t, err)

	r2 := NewRunner(fsys, "test-impl")
	r2.Handle("schema", handler)
	report2, err := r2.Run("schema-suite")
	require.NoError(t, err)

	assert.Equal(t, report1.Suite.VectorsDigest, report2.Suite.VectorsDigest)
}

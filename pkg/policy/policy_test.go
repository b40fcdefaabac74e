package policy

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDoer struct {
	responses map[string]func() (*http.Response, error)
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	fn, ok := f.responses[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(strings.NewReader(""))}, nil
	}
	return fn()
}

func okResponse(body, etag string) func() (*http.Response, error) {
	return func() (*http.Response, error) {
		h := http.Header{}
		if etag != "" {
			h.Set("ETag", etag)
		}
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(body)), Header: h}, nil
	}
}

func TestDiscover_FindsPeacTxt(t *testing.T) {
	doer := &fakeDoer{responses: map[string]func() (*http.Response, error){
		"https://resource.example/.well-known/peac.txt": okResponse("allow: search", "etag-1"),
	}}
	d := New(doer)

	descriptors, err := d.Discover(context.Background(), "https://resource.example/page", Hints{})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "peac.txt", descriptors[0].Type)
	assert.Equal(t, "etag-1", descriptors[0].ETag)
}

func TestDiscover_IncludesAIPrefHint(t *testing.T) {
	doer := &fakeDoer{responses: map[string]func() (*http.Response, error){}}
	d := New(doer)

	descriptors, err := d.Discover(context.Background(), "https://resource.example/page", Hints{AIPref: "train=n"})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "aipref", descriptors[0].Type)
	assert.Equal(t, "train=n", descriptors[0].Body)
}

func TestDiscover_FindsAgentPermissionsLinkInBody(t *testing.T) {
	doer := &fakeDoer{responses: map[string]func() (*http.Response, error){
		"https://resource.example/agent-permissions.json": okResponse(`{"allow":true}`, ""),
	}}
	d := New(doer)

	body := []byte(`<html><head><link rel="agent-permissions" href="/agent-permissions.json"></head></html>`)
	descriptors, err := d.Discover(context.Background(), "https://resource.example/page", Hints{Body: body})
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "agent-permissions", descriptors[0].Type)
	assert.Equal(t, "https://resource.example/agent-permissions.json", descriptors[0].URL)
}

func TestFingerprint_StableUnderReordering(t *testing.T) {
	a := []Descriptor{
		{Type: "peac.txt", URL: "https://r.example/.well-known/peac.txt", Body: "x"},
		{Type: "aipref", URL: "https://r.example/page", Body: "y"},
	}
	b := []Descriptor{a[1], a[0]}

	fpA, err := Fingerprint(a)
	require.NoError(t, err)
	fpB, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestFingerprint_ChangesWithBody(t *testing.T) {
	a := []Descriptor{{Type: "peac.txt", URL: "https://r.example/.well-known/peac.txt", Body: "x"}}
	b := []Descriptor{{Type: "peac.txt", URL: "https://r.example/.well-known/peac.txt", Body: "y"}}

	fpA, err := Fingerprint(a)
	require.NoError(t, err)
	fpB, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fpA, fpB)
}

func TestDiscoverer_FingerprintCachesResult(t *testing.T) {
	calls := 0
	doer := &fakeDoer{responses: map[string]func() (*http.Response, error){
		"https://resource.example/.well-known/peac.txt": func() (*http.Response, error) {
			calls++
			return okResponse("allow: search", "etag-1")()
		},
	}}
	d := New(doer)

	fp1, err := d.Fingerprint(context.Background(), "https://resource.example/page")
	require.NoError(t, err)
	fp2, err := d.Fingerprint(context.Background(), "https://resource.example/page")
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
	assert.Equal(t, 1, calls, "second Fingerprint call should be served from cache")
}

func TestDiscover_RejectsSSRFBlockedResource(t *testing.T) {
	doer := &fakeDoer{responses: map[string]func() (*http.Response, error){}}
	d := New(doer)

	descriptors, err := d.Discover(context.Background(), "http://resource.example/page", Hints{})
	require.NoError(t, err)
	assert.Empty(t, descriptors, "http resource should be SSRF-blocked, yielding no peac.txt descriptor")
}

package verifier

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/peacprotocol/peac-core/pkg/canonicalize"
	"github.com/peacprotocol/peac-core/pkg/crypto"
	"github.com/peacprotocol/peac-core/pkg/issuer"
	"github.com/peacprotocol/peac-core/pkg/jwks"
	"github.com/peacprotocol/peac-core/pkg/problemdetail"
	"github.com/peacprotocol/peac-core/pkg/replay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIssuer = "https://issuer.example"

type staticDoer struct {
	body string
}

func (d *staticDoer) Do(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, "jwks") {
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(d.body)), Header: http.Header{}}, nil
	}
	return &http.Response{StatusCode: 404, Body: io.NopCloser(strings.NewReader(""))}, nil
}

func newTestVerifier(t *testing.T) (*Verifier, *crypto.KeyRing) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ring := crypto.NewKeyRing()
	require.NoError(t, ring.AddKey("k1", priv))

	body := `{"keys":[{"kty":"OKP","crv":"Ed25519","kid":"k1","x":"` + canonicalize.Base64URLEncode(pub) + `"}]}`
	resolver := jwks.NewResolver(&staticDoer{body: body})
	store := replay.NewMemoryStore()
	return New(resolver, store), ring
}

func issueTestReceipt(t *testing.T, ring *crypto.KeyRing, mutate func(*issuer.Request)) (string, *issuer.Result) {
	t.Helper()
	iss := issuer.New(ring)
	req := issuer.Request{Iss: testIssuer, Aud: "https://payer.example", Nonce: "nonce-1"}
	if mutate != nil {
		mutate(&req)
	}
	result, err := iss.Issue(context.Background(), req)
	require.NoError(t, err)
	return result.JWS, result
}

func headerWith(jws string) http.Header {
	h := http.Header{}
	h.Set("PEAC-Receipt", jws)
	return h
}

func TestVerify_ValidReceipt(t *testing.T) {
	v, ring := newTestVerifier(t)
	jws, _ := issueTestReceipt(t, ring, nil)

	result := v.Verify(context.Background(), headerWith(jws), nil, Policy{AllowedIssuers: []string{testIssuer}})
	assert.True(t, result.Valid)
	require.NotNil(t, result.Claims)
	assert.Equal(t, testIssuer, result.Claims.Iss)
	assert.Equal(t, "k1", result.KeyID)
}

func TestVerify_MissingReceipt(t *testing.T) {
	v, _ := newTestVerifier(t)
	result := v.Verify(context.Background(), http.Header{}, nil, Policy{AllowedIssuers: []string{testIssuer}})
	assert.False(t, result.Valid)
	assert.Equal(t, problemdetail.EReceiptMissing, result.Code)
}

func TestVerify_IssuerNotAllowed(t *testing.T) {
	v, ring := newTestVerifier(t)
	jws, _ := issueTestReceipt(t, ring, nil)

	result := v.Verify(context.Background(), headerWith(jws), nil, Policy{AllowedIssuers: []string{"https://other.example"}})
	assert.False(t, result.Valid)
	assert.Equal(t, problemdetail.EIssuerNotAllowed, result.Code)
}

func TestVerify_TamperedSignatureFails(t *testing.T) {
	v, ring := newTestVerifier(t)
	jws, _ := issueTestReceipt(t, ring, nil)

	parts := strings.Split(jws, ".")
	tampered := parts[0] + "." + parts[1] + "." + "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	result := v.Verify(context.Background(), headerWith(tampered), nil, Policy{AllowedIssuers: []string{testIssuer}})
	assert.False(t, result.Valid)
	assert.Equal(t, problemdetail.ESignatureInvalid, result.Code)
}

func TestVerify_ReplayedNonceRejectedSecondTime(t *testing.T) {
	v, ring := newTestVerifier(t)
	jws, _ := issueTestReceipt(t, ring, nil)
	policy := Policy{AllowedIssuers: []string{testIssuer}}

	first := v.Verify(context.Background(), headerWith(jws), nil, policy)
	require.True(t, first.Valid)

	second := v.Verify(context.Background(), headerWith(jws), nil, policy)
	assert.False(t, second.Valid)
	assert.Equal(t, problemdetail.ENonceReplay, second.Code)
}

func TestVerify_MissingNonceRejectedWhenReplayRequired(t *testing.T) {
	v, ring := newTestVerifier(t)
	jws, _ := issueTestReceipt(t, ring, func(r *issuer.Request) { r.Nonce = "" })

	result := v.Verify(context.Background(), headerWith(jws), nil,
		Policy{AllowedIssuers: []string{testIssuer}, RequireReplayProtection: true})
	assert.False(t, result.Valid)
	assert.Equal(t, problemdetail.EReplayProtectionRequired, result.Code)
}

func TestVerify_ExpiredReceiptRejected(t *testing.T) {
	v, ring := newTestVerifier(t)
	jws, _ := issueTestReceipt(t, ring, func(r *issuer.Request) {
		r.ExpiresIn = time.Second
	})

	time.Sleep(2100 * time.Millisecond)

	result := v.Verify(context.Background(), headerWith(jws), nil, Policy{AllowedIssuers: []string{testIssuer}})
	assert.False(t, result.Valid)
	assert.Equal(t, problemdetail.EExpiredReceipt, result.Code)
}

func TestVerify_PurposeMismatchRejected(t *testing.T) {
	v, ring := newTestVerifier(t)
	jws, _ := issueTestReceipt(t, ring, func(r *issuer.Request) {
		r.PurposeDeclared = []string{"search"}
	})

	result := v.Verify(context.Background(), headerWith(jws), nil,
		Policy{AllowedIssuers: []string{testIssuer}, ExpectedPurpose: "train"})
	assert.False(t, result.Valid)
	assert.Equal(t, problemdetail.EPurposeInvalid, result.Code)
}


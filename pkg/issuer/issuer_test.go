package issuer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/peacprotocol/peac-core/pkg/crypto"
	"github.com/peacprotocol/peac-core/pkg/receipt"
	"github.com/peacprotocol/peac-core/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeyRing(t *testing.T) (*crypto.KeyRing, ed25519.PublicKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ring := crypto.NewKeyRing()
	require.NoError(t, ring.AddKey("k1", priv))
	return ring, pub
}

func TestIssue_ProducesVerifiableReceipt(t *testing.T) {
	ring, pub := newTestKeyRing(t)
	iss := New(ring)

	result, err := iss.Issue(context.Background(), Request{
		Iss: "https://issuer.example",
		Aud: "https://payer.example",
	})
	require.NoError(t, err)
	assert.Equal(t, "k1", result.KeyID)
	assert.Equal(t, transport.ProfileHeader, result.Profile)
	assert.NotEmpty(t, result.Claims.Rid)

	payload, err := crypto.Verify(result.JWS, pub)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"https://issuer.example"`)
}

func TestIssue_NormalizesIssAndAud(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	iss := New(ring)

	result, err := iss.Issue(context.Background(), Request{
		Iss: "https://Issuer.Example/",
		Aud: "https://payer.example/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://issuer.example", result.Claims.Iss)
	assert.Equal(t, "https://payer.example", result.Claims.Aud)
}

func TestIssue_DefaultTTLIsApplied(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	iss := New(ring)

	result, err := iss.Issue(context.Background(), Request{
		Iss: "https://issuer.example",
		Aud: "https://payer.example",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.Claims.Exp-result.Claims.Iat)
}

func TestIssue_RejectsTTLAboveMax(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	iss := New(ring)

	_, err := iss.Issue(context.Background(), Request{
		Iss:       "https://issuer.example",
		Aud:       "https://payer.example",
		ExpiresIn: 25 * time.Hour,
	})
	assert.Error(t, err)
}

func TestIssue_RejectsNonHTTPSIss(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	iss := New(ring)

	_, err := iss.Issue(context.Background(), Request{
		Iss: "http://issuer.example",
		Aud: "https://payer.example",
	})
	assert.Error(t, err)
}

func TestIssue_PointerTransportRequiresUploader(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	iss := New(ring)

	_, err := iss.Issue(context.Background(), Request{
		Iss:       "https://issuer.example",
		Aud:       "https://payer.example",
		Transport: transport.ProfilePointer,
	})
	assert.Error(t, err)
}

func TestIssue_PointerTransportUploadsAndSetsDigest(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	var uploaded string
	iss := New(ring, WithUploader(func(ctx context.Context, jws string) (string, error) {
		uploaded = jws
		return "https://cdn.example/r/abc", nil
	}))

	result, err := iss.Issue(context.Background(), Request{
		Iss:       "https://issuer.example",
		Aud:       "https://payer.example",
		Transport: transport.ProfilePointer,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Pointer)
	assert.Equal(t, uploaded, result.JWS)
	assert.Equal(t, "https://cdn.example/r/abc", result.Pointer.URL)
	assert.Len(t, result.Pointer.Digest, 64)
}

func TestIssue_BodyTransportWrapsReceipt(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	iss := New(ring)

	result, err := iss.Issue(context.Background(), Request{
		Iss:       "https://issuer.example",
		Aud:       "https://payer.example",
		Transport: transport.ProfileBody,
	})
	require.NoError(t, err)
	assert.Equal(t, result.JWS, result.BodyDoc["peac_receipt"])
}

func TestIssue_AutoSelectsPointerWhenLargeAndUploaderConfigured(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	iss := New(ring, WithUploader(func(ctx context.Context, jws string) (string, error) {
		return "https://cdn.example/r/large", nil
	}))

	bigExt := map[string]any{}
	longVal := strings.Repeat("x", 8192)
	bigExt["org.peacprotocol/interaction@1"] = longVal

	result, err := iss.Issue(context.Background(), Request{
		Iss: "https://issuer.example",
		Aud: "https://payer.example",
		Ext: bigExt,
	})
	require.NoError(t, err)
	assert.Equal(t, transport.ProfilePointer, result.Profile)
}

func TestIssue_PaymentRequiresAmtAndCur(t *testing.T) {
	ring, _ := newTestKeyRing(t)
	iss := New(ring)

	_, err := iss.Issue(context.Background(), Request{
		Iss:     "https://issuer.example",
		Aud:     "https://payer.example",
		Payment: &receipt.Payment{Rail: "x402", Reference: "ref-1", Status: "settled"},
	})
	assert.Error(t, err)
}

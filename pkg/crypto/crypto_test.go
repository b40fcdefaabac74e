package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"strings"
	"testing"
)

func TestVerify_RejectsNonEdDSAAlg(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	jws, err := Sign(json.RawMessage(`{"a":1}`), priv, "key-1")
	if err != nil {
		t.Fatal(err)
	}

	// Tamper the header to claim a different alg.
	parts := strings.Split(jws, ".")
	forged := b64Encode([]byte(`{"alg":"none","typ":"application/peac-receipt+jws","kid":"key-1"}`))
	tampered := strings.Join([]string{forged, parts[1], parts[2]}, ".")

	pub := priv.Public().(ed25519.PublicKey)
	if _, err := Verify(tampered, pub); err == nil {
		t.Fatal("expected rejection of non-EdDSA alg")
	}
}

func TestVerify_RejectsWrongPublicKeySize(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	jws, err := Sign(json.RawMessage(`{"a":1}`), priv, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(jws, make(ed25519.PublicKey, 16)); err == nil {
		t.Fatal("expected rejection of undersized public key")
	}
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	jws, err := Sign(json.RawMessage(`{"a":1}`), priv, "key-1")
	if err != nil {
		t.Fatal(err)
	}

	parts := strings.Split(jws, ".")
	forged := b64Encode([]byte(`{"a":2}`))
	tampered := strings.Join([]string{parts[0], forged, parts[2]}, ".")

	pub := priv.Public().(ed25519.PublicKey)
	if _, err := Verify(tampered, pub); err == nil {
		t.Fatal("expected rejection of tampered payload")
	}
}

func TestVerify_RejectsMalformedCompactForm(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(rand.Reader)
	if _, err := Verify("not-a-jws", pub); err == nil {
		t.Fatal("expected rejection of malformed compact JWS")
	}
}

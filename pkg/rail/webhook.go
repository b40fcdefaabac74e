package rail

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveWebhookSecret derives a per-rail webhook-signing secret from a
// single master secret, so the core never stores one secret per rail the
// way a credential vault would — the rail name is the HKDF info
// parameter, so rotating the master secret rotates every rail's derived
// secret at once.
func DeriveWebhookSecret(masterSecret []byte, railName string) ([]byte, error) {
	reader := hkdf.New(sha256.New, masterSecret, nil, []byte("peac-rail-webhook:"+railName))
	secret := make([]byte, 32)
	if _, err := io.ReadFull(reader, secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// VerifyHMACSignature checks signatureHex (lowercase hex-encoded
// HMAC-SHA256) against payload using secret, in constant time. Rail
// adapters use this to implement their VerifyWebhook method rather than
// reimplementing the comparison themselves.
func VerifyHMACSignature(payload []byte, signatureHex string, secret []byte) error {
	if signatureHex == "" {
		return errEmptySignature
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(sig, expected) {
		return ErrInvalidSignature
	}
	return nil
}

var errEmptySignature = errors.New("rail: empty signature header")

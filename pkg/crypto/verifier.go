package crypto

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verify checks a compact JWS against pk and, on success, returns the
// payload segment decoded back into claims — never re-marshaled, so
// callers get back exactly the bytes that were signed.
//
// alg and key length are checked explicitly rather than trusting the
// header: a header claiming EdDSA with a key of the wrong size, or any
// alg other than EdDSA, is rejected before jwt/v5 ever sees it.
func Verify(compactJWS string, pk ed25519.PublicKey) (json.RawMessage, error) {
	if len(pk) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("crypto: invalid public key size %d", len(pk))
	}

	parts := strings.Split(compactJWS, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("crypto: malformed compact JWS: expected 3 segments, got %d", len(parts))
	}
	headerB64, payloadB64, sigB64 := parts[0], parts[1], parts[2]

	headerJSON, err := b64Decode(headerB64)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("crypto: parse header: %w", err)
	}
	if header.Alg != jwsAlg {
		return nil, fmt.Errorf("crypto: unsupported alg %q, only EdDSA is accepted", header.Alg)
	}

	sig, err := b64Decode(sigB64)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode signature: %w", err)
	}

	signingInput := headerB64 + "." + payloadB64
	if err := jwt.SigningMethodEdDSA.Verify(signingInput, sig, pk); err != nil {
		return nil, fmt.Errorf("crypto: signature verification failed: %w", err)
	}

	payload, err := b64Decode(payloadB64)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode payload: %w", err)
	}
	return json.RawMessage(payload), nil
}

// KeyID returns the kid from a compact JWS's protected header without
// verifying the signature, for resolving which key to fetch before
// calling Verify.
func KeyID(compactJWS string) (string, error) {
	parts := strings.Split(compactJWS, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("crypto: malformed compact JWS: expected 3 segments, got %d", len(parts))
	}
	headerJSON, err := b64Decode(parts[0])
	if err != nil {
		return "", fmt.Errorf("crypto: decode header: %w", err)
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return "", fmt.Errorf("crypto: parse header: %w", err)
	}
	if header.Kid == "" {
		return "", fmt.Errorf("crypto: missing kid in header")
	}
	return header.Kid, nil
}

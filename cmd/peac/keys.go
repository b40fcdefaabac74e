package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// decodeB64URLPrivateKey decodes a base64url-encoded raw Ed25519 private
// key, as written by `peac keygen`.
func decodeB64URLPrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("expected %d-byte Ed25519 private key, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// decodeB64URLPublicKey decodes a base64url-encoded raw Ed25519 public key.
func decodeB64URLPublicKey(s string) (ed25519.PublicKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d-byte Ed25519 public key, got %d", ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

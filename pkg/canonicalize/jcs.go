// Package canonicalize implements RFC 8785 (JSON Canonicalization Scheme)
// serialization and the base64url/SHA-256 primitives the rest of the
// protocol builds on: signed receipt payloads, JWKS cache keys, and policy
// fingerprints are all hashed or signed over JCS bytes, never over Go's
// default (unordered, HTML-escaping) json.Marshal output.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is first passed through the standard encoder (so Go struct tags and
// custom MarshalJSON methods are respected) and the resulting bytes are
// then transformed into canonical form by gowebpki/jcs, which applies the
// RFC 8785 key-ordering and number-formatting rules directly against the
// JSON text.
func JCS(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	return JCSBytes(raw)
}

// JCSBytes canonicalizes an already-serialized JSON document.
func JCSBytes(raw []byte) ([]byte, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// JCSString returns the JCS canonical form as a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CanonicalHash returns base64url(SHA-256(JCS(v))), the digest form used
// for policy_hash and conformance vectors_digest.
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes base64url(SHA-256(data)) of raw, already-canonical bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return Base64URLEncode(sum[:])
}

// Base64URLEncode encodes data as unpadded RFC 4648 §5 base64url, the only
// form the protocol ever emits.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode accepts both padded and unpadded base64url input —
// callers outside our control may pad — normalizing before decoding.
func Base64URLDecode(s string) ([]byte, error) {
	s = string(bytes.TrimRight([]byte(s), "="))
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: invalid base64url: %w", err)
	}
	return b, nil
}

package crypto

import "github.com/peacprotocol/peac-core/pkg/canonicalize"

// b64Encode/b64Decode delegate to canonicalize's RFC 4648 §5 unpadded
// base64url helpers so the JWS segment encoding and the rest of the
// protocol's base64url usage (policy hashes, nonces) share one
// implementation.
func b64Encode(data []byte) string {
	return canonicalize.Base64URLEncode(data)
}

func b64Decode(s string) ([]byte, error) {
	return canonicalize.Base64URLDecode(s)
}

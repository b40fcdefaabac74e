// Package crypto implements the protocol's Ed25519 JWS envelope: signing
// and verifying compact JWS tokens whose payload is exactly the JCS bytes
// produced by pkg/canonicalize, with no re-serialization in between.
package crypto

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Header is the fixed JOSE header every receipt carries. alg is always
// EdDSA; kid identifies the signing key within the issuer's JWKS.
type Header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid"`
}

const (
	jwsTyp = "application/peac-receipt+jws"
	jwsAlg = "EdDSA"
)

// Sign produces a compact JWS (header.payload.signature, all base64url)
// over claims using sk, with kid recorded in the protected header.
//
// claims is passed through verbatim as the payload segment — it must
// already be the JCS canonical bytes from pkg/canonicalize, since the
// signature covers exactly these bytes and verifiers re-derive the same
// canonical form to check integrity. We do not route this through
// jwt.Claims/jwt.MapClaims, which would re-marshal the payload and break
// the bit-exact round trip the protocol relies on.
func Sign(claims json.RawMessage, sk ed25519.PrivateKey, kid string) (string, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("crypto: invalid private key size %d", len(sk))
	}
	if kid == "" {
		return "", fmt.Errorf("crypto: kid must not be empty")
	}

	header := Header{Alg: jwsAlg, Typ: jwsTyp, Kid: kid}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("crypto: encode header: %w", err)
	}

	signingInput := b64Encode(headerJSON) + "." + b64Encode(claims)

	method := jwt.SigningMethodEdDSA
	sig, err := method.Sign(signingInput, sk)
	if err != nil {
		return "", fmt.Errorf("crypto: sign: %w", err)
	}

	return signingInput + "." + b64Encode(sig), nil
}

package crypto

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// KeyRing holds an issuer's active signing keys, keyed by kid, and
// supports rotation: a new key can be added before the old one is
// revoked so receipts signed under either kid still resolve correctly
// against the issuer's published JWKS.
type KeyRing struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

// NewKeyRing creates an empty keyring.
func NewKeyRing() *KeyRing {
	return &KeyRing{keys: make(map[string]ed25519.PrivateKey)}
}

// AddKey registers sk under kid. Adding a kid that already exists
// replaces its key, which is how in-place rotation is performed.
func (k *KeyRing) AddKey(kid string, sk ed25519.PrivateKey) error {
	if len(sk) != ed25519.PrivateKeySize {
		return fmt.Errorf("crypto: invalid private key size %d for kid %q", len(sk), kid)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[kid] = sk
	return nil
}

// RevokeKey removes kid from the ring. Receipts already issued under it
// remain verifiable as long as it stays in the issuer's JWKS; revoking it
// here only stops new receipts from using it.
func (k *KeyRing) RevokeKey(kid string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.keys, kid)
}

// ActiveKeyID deterministically selects the signing key a fresh receipt
// should use when the issuer carries more than one. We pick the
// lexicographically last kid rather than tracking insertion order
// explicitly, so selection is reproducible across process restarts as
// long as kids are assigned in a sortable sequence (timestamps, ULIDs).
func (k *KeyRing) ActiveKeyID() (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.activeKeyIDLocked()
}

func (k *KeyRing) activeKeyIDLocked() (string, error) {
	if len(k.keys) == 0 {
		return "", fmt.Errorf("crypto: keyring has no keys")
	}
	kids := make([]string, 0, len(k.keys))
	for kid := range k.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids[len(kids)-1], nil
}

// Sign signs claims with the active key, returning the compact JWS and
// the kid that was used.
func (k *KeyRing) Sign(claims json.RawMessage) (jws string, kid string, err error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	kid, err = k.activeKeyIDLocked()
	if err != nil {
		return "", "", err
	}
	jws, err = Sign(claims, k.keys[kid], kid)
	return jws, kid, err
}

// SignWithKey signs claims with a specific kid instead of the active
// selection, for issuers that need to pin a key (e.g. conformance
// fixtures exercising a known-stale kid).
func (k *KeyRing) SignWithKey(claims json.RawMessage, kid string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	sk, ok := k.keys[kid]
	if !ok {
		return "", fmt.Errorf("crypto: unknown kid %q", kid)
	}
	return Sign(claims, sk, kid)
}

// PublicKey returns the public key published under kid, for building the
// issuer's JWKS document.
func (k *KeyRing) PublicKey(kid string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	sk, ok := k.keys[kid]
	if !ok {
		return nil, fmt.Errorf("crypto: unknown kid %q", kid)
	}
	return sk.Public().(ed25519.PublicKey), nil
}

// KeyIDs returns all kids currently registered, sorted, for publishing a
// full JWKS (active and recently-rotated keys alike).
func (k *KeyRing) KeyIDs() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	kids := make([]string, 0, len(k.keys))
	for kid := range k.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	return kids
}

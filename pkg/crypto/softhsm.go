package crypto

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SoftHSM persists an issuer's Ed25519 signing keys as individual
// 0600 files under a directory, one file per kid, rather than holding
// them only in a KeyRing's process memory. It gets or creates a key for
// a label on demand and can rehydrate a whole KeyRing from disk on
// process restart, so an issuer's kid doesn't change across deploys.
type SoftHSM struct {
	keyDir string
	mu     sync.Mutex
}

// NewSoftHSM creates (if missing) keyDir and returns a SoftHSM rooted
// there.
func NewSoftHSM(keyDir string) (*SoftHSM, error) {
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, fmt.Errorf("crypto: create key dir: %w", err)
	}
	return &SoftHSM{keyDir: keyDir}, nil
}

func (h *SoftHSM) path(kid string) string {
	return filepath.Join(h.keyDir, kid+".key")
}

// Persist writes sk to disk under kid, failing if a key is already
// stored there — callers that generated a key themselves (e.g. `peac
// keygen`) use this instead of GetOrCreate to avoid silently discarding
// the key they just generated in favor of whatever was already on disk.
func (h *SoftHSM) Persist(kid string, sk ed25519.PrivateKey) error {
	if len(sk) != ed25519.PrivateKeySize {
		return fmt.Errorf("crypto: invalid private key size %d for kid %q", len(sk), kid)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	path := h.path(kid)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("crypto: kid %q already persisted in %s", kid, h.keyDir)
	}
	if err := os.WriteFile(path, sk, 0o600); err != nil {
		return fmt.Errorf("crypto: persist key for kid %q: %w", kid, err)
	}
	return nil
}

// GetOrCreate returns the private key stored under kid, generating and
// persisting a new one if none exists yet.
func (h *SoftHSM) GetOrCreate(kid string) (ed25519.PrivateKey, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	path := h.path(kid)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_, sk, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, fmt.Errorf("crypto: generate key for kid %q: %w", kid, err)
		}
		if err := os.WriteFile(path, sk, 0o600); err != nil {
			return nil, fmt.Errorf("crypto: persist key for kid %q: %w", kid, err)
		}
		return sk, nil
	}

	return h.readKeyFile(path, kid)
}

func (h *SoftHSM) readKeyFile(path, kid string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read key for kid %q: %w", kid, err)
	}
	// Accept a bare 32-byte seed alongside the standard 64-byte
	// seed+public-key encoding, so keys written by an older version of
	// this store still load.
	if len(raw) == ed25519.SeedSize {
		raw = ed25519.NewKeyFromSeed(raw)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("crypto: key file for kid %q has invalid size %d", kid, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// LoadKeyRing rehydrates every *.key file in the SoftHSM's directory
// into a KeyRing, keyed by filename stem, so an issuer process can
// restart without losing its active kid or any not-yet-revoked rotated
// key still needed to verify older receipts.
func (h *SoftHSM) LoadKeyRing() (*KeyRing, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := os.ReadDir(h.keyDir)
	if err != nil {
		return nil, fmt.Errorf("crypto: read key dir: %w", err)
	}

	ring := NewKeyRing()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".key") {
			continue
		}
		kid := strings.TrimSuffix(e.Name(), ".key")
		sk, err := h.readKeyFile(filepath.Join(h.keyDir, e.Name()), kid)
		if err != nil {
			return nil, err
		}
		if err := ring.AddKey(kid, sk); err != nil {
			return nil, err
		}
	}
	if len(ring.KeyIDs()) == 0 {
		return nil, fmt.Errorf("crypto: %s contains no key files", h.keyDir)
	}
	return ring, nil
}

// KeyIDs lists the kids currently persisted, sorted.
func (h *SoftHSM) KeyIDs() ([]string, error) {
	entries, err := os.ReadDir(h.keyDir)
	if err != nil {
		return nil, fmt.Errorf("crypto: read key dir: %w", err)
	}
	kids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".key") {
			continue
		}
		kids = append(kids, strings.TrimSuffix(e.Name(), ".key"))
	}
	sort.Strings(kids)
	return kids, nil
}

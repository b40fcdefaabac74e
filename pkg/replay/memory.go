package replay

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store backed by a map. Suitable for
// single-instance deployments and tests; replay protection does not
// survive a process restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> expiry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]time.Time)}
}

// Seen implements Store. Expired entries are lazily swept on access so
// the map does not grow unbounded under steady traffic.
func (s *MemoryStore) Seen(ctx context.Context, issuer, kid, nonce string, ttl time.Duration) (bool, error) {
	key := compositeKey(issuer, kid, nonce)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.entries[key]; ok && now.Before(exp) {
		return true, nil
	}

	s.entries[key] = now.Add(ttl)
	s.sweepLocked(now)
	return false, nil
}

// sweepLocked removes expired entries. Called with mu held.
func (s *MemoryStore) sweepLocked(now time.Time) {
	if len(s.entries) < 4096 {
		return
	}
	for k, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, k)
		}
	}
}

// Len returns the current entry count, including not-yet-swept expired
// entries. Intended for tests and diagnostics.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

package jwks

import (
	"container/list"
	"sync"
	"time"
)

// CacheEntry is a resolved, cacheable verification key, tagged with the
// discovery source it came from and the freshness window the issuer's
// Cache-Control header granted it.
type CacheEntry struct {
	PublicKeyX25519 [32]byte // raw OKP x value, Ed25519 public key bytes
	Source          string   // one of the three discovery paths
	FetchedAt       time.Time
	ExpiresAt       time.Time
	ETag            string
}

const (
	defaultMaxEntries = 10000
	minTTL            = 60 * time.Second
	maxTTL            = 86400 * time.Second
	defaultTTL        = 3600 * time.Second
)

// ClampTTL enforces the [60s, 86400s] bound on a Cache-Control max-age
// value, falling back to the 3600s default when none was supplied.
func ClampTTL(maxAge time.Duration, hadMaxAge bool) time.Duration {
	if !hadMaxAge {
		return defaultTTL
	}
	if maxAge < minTTL {
		return minTTL
	}
	if maxAge > maxTTL {
		return maxTTL
	}
	return maxAge
}

type cacheKey struct {
	issuer string
	kid    string
}

// Cache is an LRU-bounded, TTL-aware store of CacheEntry keyed by
// (issuer, kid). Get returns ok=false for expired entries without
// evicting them, so GetStale can still serve them to the stale-if-error
// path; eviction only happens on LRU overflow or explicit Purge.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[cacheKey]*list.Element
}

type cacheElem struct {
	key   cacheKey
	entry CacheEntry
}

// NewCache creates a cache bounded to maxEntries; a non-positive value
// falls back to the default of 10000.
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Cache{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[cacheKey]*list.Element),
	}
}

// Put inserts or refreshes an entry and marks it most-recently-used,
// evicting the least-recently-used entry if the cache is now over its
// bound.
func (c *Cache) Put(issuer, kid string, entry CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{issuer, kid}
	if el, ok := c.items[key]; ok {
		el.Value.(*cacheElem).entry = entry
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&cacheElem{key: key, entry: entry})
	c.items[key] = el

	if c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheElem).key)
		}
	}
}

// Get returns the entry for (issuer, kid) only if it has not expired.
func (c *Cache) Get(issuer, kid string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[cacheKey{issuer, kid}]
	if !ok {
		return CacheEntry{}, false
	}
	c.ll.MoveToFront(el)
	entry := el.Value.(*cacheElem).entry
	if time.Now().After(entry.ExpiresAt) {
		return CacheEntry{}, false
	}
	return entry, true
}

// GetStale returns the entry for (issuer, kid) regardless of expiry,
// for the resolver's stale-if-error fallback. The caller is responsible
// for checking the entry's age against max_stale_age.
func (c *Cache) GetStale(issuer, kid string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[cacheKey{issuer, kid}]
	if !ok {
		return CacheEntry{}, false
	}
	return el.Value.(*cacheElem).entry, true
}

// Purge removes every entry, used by tests and forced-refresh paths.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[cacheKey]*list.Element)
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

package jwks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache(10)
	entry := CacheEntry{ExpiresAt: time.Now().Add(time.Hour)}
	c.Put("https://issuer.example", "k1", entry)

	got, ok := c.Get("https://issuer.example", "k1")
	require.True(t, ok)
	assert.WithinDuration(t, entry.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestCache_GetReturnsFalseForExpired(t *testing.T) {
	c := NewCache(10)
	c.Put("https://issuer.example", "k1", CacheEntry{ExpiresAt: time.Now().Add(-time.Hour)})

	_, ok := c.Get("https://issuer.example", "k1")
	assert.False(t, ok)
}

func TestCache_GetStaleReturnsExpiredEntry(t *testing.T) {
	c := NewCache(10)
	c.Put("https://issuer.example", "k1", CacheEntry{ExpiresAt: time.Now().Add(-time.Hour)})

	_, ok := c.GetStale("https://issuer.example", "k1")
	assert.True(t, ok)
}

func TestCache_EvictsLRUOnOverflow(t *testing.T) {
	c := NewCache(2)
	c.Put("iss", "k1", CacheEntry{ExpiresAt: time.Now().Add(time.Hour)})
	c.Put("iss", "k2", CacheEntry{ExpiresAt: time.Now().Add(time.Hour)})
	c.Put("iss", "k3", CacheEntry{ExpiresAt: time.Now().Add(time.Hour)})

	_, ok := c.Get("iss", "k1")
	assert.False(t, ok, "k1 should have been evicted as least-recently-used")
	assert.Equal(t, 2, c.Len())
}

func TestClampTTL(t *testing.T) {
	assert.Equal(t, defaultTTL, ClampTTL(0, false))
	assert.Equal(t, minTTL, ClampTTL(time.Second, true))
	assert.Equal(t, maxTTL, ClampTTL(365*24*time.Hour, true))
	assert.Equal(t, 120*time.Second, ClampTTL(120*time.Second, true))
}

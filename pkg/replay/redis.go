package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, suitable for multi-instance
// deployments where a shared SQL database is undesirable. Atomicity
// comes from SET ... NX, which Redis guarantees is a single atomic
// operation across concurrent clients.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps an existing Redis client (single-node or
// cluster; both satisfy redis.UniversalClient).
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Seen implements Store. SET key value NX EX ttl sets the key only if
// it does not already exist, returning whether the SET happened.
func (s *RedisStore) Seen(ctx context.Context, issuer, kid, nonce string, ttl time.Duration) (bool, error) {
	key := "peac:replay:" + compositeKey(issuer, kid, nonce)

	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay: redis setnx: %w", err)
	}

	return !ok, nil
}

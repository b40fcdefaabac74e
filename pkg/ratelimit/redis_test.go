package ratelimit

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// TestRedisLimiter_Integration requires a running Redis. We skip if
// connection fails.
func TestRedisLimiter_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	key := "ratelimit-test-key"
	defer client.Del(ctx, "peac:ratelimit:"+key)

	l := NewRedisLimiter(client, 1, 2)

	first, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Allowed {
		t.Errorf("expected first request within capacity to be allowed")
	}

	second, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.Allowed {
		t.Errorf("expected second request within capacity to be allowed")
	}

	third, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if third.Allowed {
		t.Errorf("expected third request to exceed capacity and be rejected")
	}
}

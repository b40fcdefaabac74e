package replay

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// TestRedisStore_Integration requires a running Redis. We skip if
// connection fails.
func TestRedisStore_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	store := NewRedisStore(client)
	issuer := "https://issuer.example"
	nonce := "redis-replay-test-nonce"
	defer client.Del(ctx, "peac:replay:"+compositeKey(issuer, "k1", nonce))

	seen, err := store.Seen(ctx, issuer, "k1", nonce, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Errorf("expected seen=false for fresh nonce")
	}

	seen, err = store.Seen(ctx, issuer, "k1", nonce, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !seen {
		t.Errorf("expected seen=true for replayed nonce")
	}
}

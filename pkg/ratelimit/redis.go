package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript runs the refill-then-consume sequence atomically so
// concurrent gateway instances never race on the same key's bucket.
//
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens/sec)
// ARGV[2] = capacity
// ARGV[3] = cost
// ARGV[4] = now (unix seconds, float)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RedisLimiter shares bucket state across gateway instances through a
// single atomic Lua script, so no two instances can race the same key into
// granting more than capacity requests per window.
type RedisLimiter struct {
	client   redis.UniversalClient
	rps      float64
	capacity int
	prefix   string
}

// NewRedisLimiter builds a limiter admitting rps requests per second per
// key, burstable up to capacity tokens, against client.
func NewRedisLimiter(client redis.UniversalClient, rps float64, capacity int) *RedisLimiter {
	return &RedisLimiter{client: client, rps: rps, capacity: capacity, prefix: "peac:ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + key}, l.rps, l.capacity, 1, now).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis script: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script result %T", res)
	}

	allowed, _ := results[0].(int64)
	remaining, _ := results[1].(int64)

	d := Decision{Allowed: allowed == 1, Limit: l.capacity, Remaining: int(remaining)}
	if !d.Allowed {
		if l.rps > 0 {
			d.RetryAfter = time.Duration(float64(time.Second) / l.rps)
		} else {
			d.RetryAfter = time.Second
		}
	}
	return d, nil
}

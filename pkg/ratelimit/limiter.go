// Package ratelimit implements the request-rate controls the gateway
// applies ahead of receipt verification. A single-instance deployment uses
// LocalLimiter (golang.org/x/time/rate, one bucket per key); a
// multi-instance deployment shares state through RedisLimiter. Both
// satisfy Limiter so the gateway never branches on which is configured.
package ratelimit

import (
	"context"
	"time"
)

// Decision reports the outcome of a single Allow check plus the fields
// the gateway needs to answer with RFC 9333 RateLimit-* headers and, on
// rejection, a Retry-After.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

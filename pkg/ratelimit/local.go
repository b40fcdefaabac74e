package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long a key's bucket survives with no traffic before
// cleanupVisitors reclaims it.
const idleTTL = 3 * time.Minute

const cleanupInterval = 1 * time.Minute

// LocalLimiter keeps one token bucket per key in process memory. It fits a
// single gateway instance; for a fleet behind a shared key space use
// RedisLimiter instead.
type LocalLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor

	stop chan struct{}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter builds a limiter allowing rps requests per second per key,
// with burst headroom above that steady rate. A background goroutine evicts
// keys idle for longer than idleTTL.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	l := &LocalLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go l.cleanupVisitors()
	return l
}

// Close stops the background eviction goroutine.
func (l *LocalLimiter) Close() {
	close(l.stop)
}

func (l *LocalLimiter) getVisitor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst), lastSeen: time.Now()}
		l.visitors[key] = v
		return v.limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (l *LocalLimiter) cleanupVisitors() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for key, v := range l.visitors {
				if time.Since(v.lastSeen) > idleTTL {
					delete(l.visitors, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Allow never blocks: a rejected request gets a RetryAfter derived from the
// limiter's Reserve, not a fixed guess.
func (l *LocalLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	limiter := l.getVisitor(key)

	reservation := limiter.ReserveN(time.Now(), 1)
	if !reservation.OK() {
		return Decision{Allowed: false, Limit: l.burst}, nil
	}

	delay := reservation.Delay()
	if delay <= 0 {
		return Decision{Allowed: true, Limit: l.burst, Remaining: int(limiter.Tokens())}, nil
	}

	reservation.Cancel()
	return Decision{Allowed: false, Limit: l.burst, RetryAfter: delay}, nil
}

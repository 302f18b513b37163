package plugin

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MemoryLimiter is an in-process token bucket limiter keyed by request.
// Suitable for single-instance deployments; distributed deployments
// should use the Redis limiter.
type MemoryLimiter struct {
	limit    Limit
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryLimiter creates an in-process limiter for the given limit.
func NewMemoryLimiter(limit Limit) *MemoryLimiter {
	return &MemoryLimiter{
		limit:    limit,
		limiters: make(map[string]*keyedLimiter),
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	l.mu.Lock()
	entry, ok := l.limiters[key]
	if !ok {
		interval := l.limit.Window / time.Duration(l.limit.Requests)
		entry = &keyedLimiter{
			limiter: rate.NewLimiter(rate.Every(interval), l.limit.Requests),
		}
		l.limiters[key] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	if !entry.limiter.Allow() {
		return &LimitResult{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: l.limit.Window / time.Duration(l.limit.Requests),
		}, nil
	}

	return &LimitResult{
		Allowed:   true,
		Remaining: int(entry.limiter.Tokens()),
	}, nil
}

// Prune drops per-key state idle longer than maxIdle.
func (l *MemoryLimiter) Prune(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
		}
	}
}

package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/apidispatch/internal/observability"
)

// fixedWindowScript atomically increments the window counter and sets
// its expiry on first use.
// KEYS[1] = window key
// ARGV[1] = window length in seconds
var fixedWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('TTL', KEYS[1])
	return {current, ttl}
`)

// RedisLimiter is a fixed-window limiter backed by Redis, shared across
// gateway instances. Redis calls run behind a circuit breaker so a
// failing Redis degrades to unlimited traffic instead of an outage.
type RedisLimiter struct {
	client  redis.UniversalClient
	limit   Limit
	prefix  string
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// RedisLimiterOption is a functional option for the Redis limiter.
type RedisLimiterOption func(*RedisLimiter)

// WithRedisLimiterPrefix sets the key prefix.
func WithRedisLimiterPrefix(prefix string) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.prefix = prefix
	}
}

// WithRedisLimiterLogger sets the logger.
func WithRedisLimiterLogger(logger observability.Logger) RedisLimiterOption {
	return func(l *RedisLimiter) {
		l.logger = logger
	}
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client redis.UniversalClient, limit Limit, opts ...RedisLimiterOption) *RedisLimiter {
	l := &RedisLimiter{
		client: client,
		limit:  limit,
		prefix: "ratelimit:",
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-ratelimit",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.logger.Warn("rate limit breaker state changed",
				observability.String("breaker", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return l
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	windowSeconds := int(l.limit.Window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	value, err := l.breaker.Execute(func() (any, error) {
		return fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, windowSeconds).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check for %q: %w", key, err)
	}

	reply, ok := value.([]any)
	if !ok || len(reply) != 2 {
		return nil, fmt.Errorf("rate limit check for %q: unexpected reply %T", key, value)
	}
	current, _ := reply[0].(int64)
	ttl, _ := reply[1].(int64)

	remaining := l.limit.Requests - int(current)
	if remaining < 0 {
		remaining = 0
	}

	if int(current) > l.limit.Requests {
		return &LimitResult{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: time.Duration(ttl) * time.Second,
		}, nil
	}

	return &LimitResult{
		Allowed:   true,
		Remaining: remaining,
	}, nil
}

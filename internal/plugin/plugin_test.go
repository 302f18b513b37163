package plugin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
)

func newTestContext(t *testing.T, mutate func(r *http.Request)) *dispatch.RequestContext {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/v1/widgets", nil)
	r.RemoteAddr = "10.0.0.1:51234"
	if mutate != nil {
		mutate(r)
	}
	return dispatch.NewRequestContext(httptest.NewRecorder(), r, &dispatch.Resolved{})
}

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	t.Parallel()

	rc := newTestContext(t, nil)

	require.NoError(t, NewRequestID().PreController(context.Background(), rc))

	id := rc.Req.Header.Get(RequestIDHeader)
	require.NotEmpty(t, id)
	_, err := uuid.Parse(id)
	assert.NoError(t, err)

	assert.Equal(t, id, rc.Response().Header(RequestIDHeader))
	assert.Equal(t, id, observability.RequestIDFromContext(rc.Req.Context()))
}

func TestRequestID_KeepsClientSupplied(t *testing.T) {
	t.Parallel()

	rc := newTestContext(t, func(r *http.Request) {
		r.Header.Set(RequestIDHeader, "client-supplied-id")
	})

	require.NoError(t, NewRequestID().PreController(context.Background(), rc))

	assert.Equal(t, "client-supplied-id", rc.Response().Header(RequestIDHeader))
	assert.Equal(t, "client-supplied-id", observability.RequestIDFromContext(rc.Req.Context()))
}

func TestAccessLog_PassesThrough(t *testing.T) {
	t.Parallel()

	rc := newTestContext(t, nil)
	rc.User = "alice"

	p := NewAccessLog(nil)
	assert.Equal(t, "accesslog", p.Name())
	require.NoError(t, p.PreController(context.Background(), rc))
	assert.False(t, rc.ResponseFinished())
}

func TestMemoryLimiter_AllowsWithinLimit(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter(Limit{Requests: 3, Window: time.Minute})

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(context.Background(), "client-a")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i)
	}

	result, err := limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Positive(t, result.RetryAfter)

	// Other keys are unaffected.
	result, err = limiter.Allow(context.Background(), "client-b")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestMemoryLimiter_Prune(t *testing.T) {
	t.Parallel()

	limiter := NewMemoryLimiter(Limit{Requests: 1, Window: time.Minute})

	_, err := limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	require.Len(t, limiter.limiters, 1)

	limiter.Prune(0)
	assert.Empty(t, limiter.limiters)
}

func redisClient(t *testing.T) redis.UniversalClient {
	t.Helper()

	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	t.Parallel()

	limiter := NewRedisLimiter(redisClient(t), Limit{Requests: 2, Window: time.Minute})

	result, err := limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 1, result.Remaining)

	result, err = limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)

	result, err = limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Positive(t, result.RetryAfter)
}

func TestRedisLimiter_WindowExpires(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLimiter(client, Limit{Requests: 1, Window: time.Minute})

	result, err := limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	mr.FastForward(time.Minute + time.Second)

	result, err = limiter.Allow(context.Background(), "client-a")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestRedisLimiter_ReportsErrors(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	limiter := NewRedisLimiter(client, Limit{Requests: 1, Window: time.Minute})

	_, err := limiter.Allow(context.Background(), "client-a")
	assert.Error(t, err)
}

type stubLimiter struct {
	result *LimitResult
	err    error
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (*LimitResult, error) {
	return s.result, s.err
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	p := NewRateLimit(
		&stubLimiter{result: &LimitResult{Allowed: true, Remaining: 4}},
		Limit{Requests: 5, Window: time.Minute},
	)

	rc := newTestContext(t, nil)
	require.NoError(t, p.PreController(context.Background(), rc))

	assert.False(t, rc.ResponseFinished())
	assert.Equal(t, "5", rc.Response().Header("X-RateLimit-Limit"))
	assert.Equal(t, "4", rc.Response().Header("X-RateLimit-Remaining"))
}

func TestRateLimit_FinishesResponseOverLimit(t *testing.T) {
	t.Parallel()

	p := NewRateLimit(
		&stubLimiter{result: &LimitResult{Allowed: false, RetryAfter: 30 * time.Second}},
		Limit{Requests: 5, Window: time.Minute},
	)

	rc := newTestContext(t, nil)
	require.NoError(t, p.PreController(context.Background(), rc))

	assert.True(t, rc.ResponseFinished())
	assert.Equal(t, http.StatusTooManyRequests, rc.Response().StatusCode())
	assert.Equal(t, "30", rc.Response().Header("Retry-After"))

	body, set := rc.Response().Body()
	require.True(t, set)
	assert.Equal(t, map[string]string{"message": "rate limit exceeded"}, body)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()

	p := NewRateLimit(
		&stubLimiter{err: errors.New("redis unavailable")},
		Limit{Requests: 5, Window: time.Minute},
	)

	rc := newTestContext(t, nil)
	require.NoError(t, p.PreController(context.Background(), rc))
	assert.False(t, rc.ResponseFinished())
}

func TestRateLimit_RecordsDecisions(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := NewRateLimitMetricsWithRegisterer("test", registry)

	p := NewRateLimit(
		&stubLimiter{result: &LimitResult{Allowed: false, RetryAfter: time.Second}},
		Limit{Requests: 1, Window: time.Minute},
		WithRateLimitMetrics(metrics),
	)

	require.NoError(t, p.PreController(context.Background(), newTestContext(t, nil)))

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "test_ratelimit_decisions_total", families[0].GetName())
}

func TestRateLimit_SkipsEmptyKey(t *testing.T) {
	t.Parallel()

	limiter := &stubLimiter{result: &LimitResult{Allowed: false}}
	p := NewRateLimit(limiter, Limit{Requests: 5, Window: time.Minute},
		WithRateLimitKeyFunc(func(rc *dispatch.RequestContext) string { return "" }),
	)

	rc := newTestContext(t, nil)
	require.NoError(t, p.PreController(context.Background(), rc))
	assert.False(t, rc.ResponseFinished())
}

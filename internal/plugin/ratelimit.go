package plugin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
)

// Limit configures a rate limit window.
type Limit struct {
	// Requests is the maximum number of requests allowed in the
	// window.
	Requests int `yaml:"requests"`

	// Window is the time window.
	Window time.Duration `yaml:"window"`
}

// LimitResult is the outcome of a rate limit check.
type LimitResult struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of requests left in the current window.
	Remaining int

	// RetryAfter is how long to wait before retrying when not
	// allowed.
	RetryAfter time.Duration
}

// Limiter checks one request against a keyed rate limit.
type Limiter interface {
	Allow(ctx context.Context, key string) (*LimitResult, error)
}

// KeyFunc derives the rate limit key from a request context. An empty
// key skips limiting for that request.
type KeyFunc func(rc *dispatch.RequestContext) string

// KeyByClientIP keys limits on the request's remote address.
func KeyByClientIP(rc *dispatch.RequestContext) string {
	return rc.Req.RemoteAddr
}

// RateLimit rejects requests over the configured limit by finishing the
// response with 429 before the controller runs.
type RateLimit struct {
	limiter Limiter
	limit   Limit
	keyFunc KeyFunc
	logger  observability.Logger
	metrics *RateLimitMetrics
}

// Rate limit decision outcomes used for metrics.
const (
	decisionAllowed = "allowed"
	decisionLimited = "limited"
	decisionError   = "error"
)

// RateLimitOption is a functional option for the rate limit plugin.
type RateLimitOption func(*RateLimit)

// WithRateLimitKeyFunc sets the key derivation function.
func WithRateLimitKeyFunc(fn KeyFunc) RateLimitOption {
	return func(p *RateLimit) {
		p.keyFunc = fn
	}
}

// WithRateLimitLogger sets the logger.
func WithRateLimitLogger(logger observability.Logger) RateLimitOption {
	return func(p *RateLimit) {
		p.logger = logger
	}
}

// WithRateLimitMetrics sets the decision metrics.
func WithRateLimitMetrics(metrics *RateLimitMetrics) RateLimitOption {
	return func(p *RateLimit) {
		p.metrics = metrics
	}
}

// NewRateLimit creates the rate limit plugin.
func NewRateLimit(limiter Limiter, limit Limit, opts ...RateLimitOption) *RateLimit {
	p := &RateLimit{
		limiter: limiter,
		limit:   limit,
		keyFunc: KeyByClientIP,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements dispatch.Plugin.
func (p *RateLimit) Name() string {
	return "ratelimit"
}

// PreController implements dispatch.PreControllerHook. Limiter failures
// fail open: the request proceeds rather than being rejected on
// infrastructure errors.
func (p *RateLimit) PreController(ctx context.Context, rc *dispatch.RequestContext) error {
	key := p.keyFunc(rc)
	if key == "" {
		return nil
	}

	result, err := p.limiter.Allow(ctx, key)
	if err != nil {
		p.metrics.Record(decisionError)
		p.logger.WithContext(ctx).Warn("rate limit check failed, allowing request",
			observability.String("key", key),
			observability.Error(err),
		)
		return nil
	}

	res := rc.Response()
	res.SetHeader("X-RateLimit-Limit", strconv.Itoa(p.limit.Requests))
	res.SetHeader("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

	if result.Allowed {
		p.metrics.Record(decisionAllowed)
		return nil
	}

	p.metrics.Record(decisionLimited)

	retryAfter := int(result.RetryAfter.Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	res.SetStatus(http.StatusTooManyRequests)
	res.SetHeader("Retry-After", strconv.Itoa(retryAfter))
	res.SetBody(map[string]string{"message": "rate limit exceeded"})
	rc.Finish()

	p.logger.WithContext(ctx).Debug("request rate limited",
		observability.String("key", key),
	)
	return nil
}

// Compile-time interface assertions.
var (
	_ dispatch.Plugin            = (*RateLimit)(nil)
	_ dispatch.PreControllerHook = (*RateLimit)(nil)
)

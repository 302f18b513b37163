package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/apidispatch/internal/observability"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// Pipeline stage names used for metrics and tracing.
const (
	stageResolve     = "resolve"
	stageWiring      = "wiring"
	stageSecurity    = "security"
	stagePlugins     = "plugins"
	stageParams      = "params"
	stageBody        = "body"
	stageController  = "controller"
	stageValidate    = "response_validation"
	stageMaterialize = "materialize"
)

// Dispatch outcomes used for metrics.
const (
	outcomeCompleted       = "completed"
	outcomeUnrouted        = "unrouted"
	outcomeStreamed        = "streamed"
	outcomeErrorHandled    = "error_handled"
	outcomeErrorPropagated = "error_propagated"
)

// Dispatcher sequences the pipeline stages for each request and applies
// the top-level error policy. It is safe for concurrent use: the resolver
// and plugin list are read-only after construction, and all per-request
// state lives on the request context.
type Dispatcher struct {
	resolver                  Resolver
	plugins                   []Plugin
	autoHandleHTTPErrors      bool
	validateDefaultResponses  bool
	onResponseValidationError ResponseValidationCallback
	logger                    observability.Logger
	metrics                   *Metrics
	tracer                    *observability.Tracer
}

// Option is a functional option for the Dispatcher.
type Option func(*Dispatcher)

// WithAutoHandleHTTPErrors controls whether recognized failures are
// converted into responses instead of being returned to the caller.
// Enabled unless switched off.
func WithAutoHandleHTTPErrors(enabled bool) Option {
	return func(d *Dispatcher) {
		d.autoHandleHTTPErrors = enabled
	}
}

// WithValidateDefaultResponses controls whether default/fallback response
// contracts are included in response validation.
func WithValidateDefaultResponses(enabled bool) Option {
	return func(d *Dispatcher) {
		d.validateDefaultResponses = enabled
	}
}

// WithResponseValidationCallback configures the callback invoked with
// response validation issues. Absence of a callback disables the response
// validation stage entirely.
func WithResponseValidationCallback(cb ResponseValidationCallback) Option {
	return func(d *Dispatcher) {
		d.onResponseValidationError = cb
	}
}

// WithPlugins sets the ordered plugin list. Ordering is preserved from
// the call and is significant.
func WithPlugins(plugins ...Plugin) Option {
	return func(d *Dispatcher) {
		d.plugins = plugins
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithTracer sets the tracer used to span each dispatch.
func WithTracer(tracer *observability.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// New creates a Dispatcher over the given resolver.
func New(resolver Resolver, opts ...Option) (*Dispatcher, error) {
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}

	d := &Dispatcher{
		resolver:             resolver,
		autoHandleHTTPErrors: true,
		logger:               observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Handle runs the full pipeline for one request. It returns nil with a
// nil error when no route matched, a Result otherwise. When auto-handling
// is enabled, recognized failures are converted into a Result; everything
// else propagates to the caller.
func (d *Dispatcher) Handle(w http.ResponseWriter, r *http.Request) (*Result, error) {
	start := time.Now()
	ctx := r.Context()

	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.StartSpan(ctx, "dispatch",
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()
	}

	result, stage, ctx, err := d.dispatch(ctx, w, r)

	if err == nil {
		outcome := outcomeCompleted
		if result == nil {
			if stage == stageResolve {
				outcome = outcomeUnrouted
			} else {
				outcome = outcomeStreamed
			}
		}
		d.metrics.RecordRequest(outcome, time.Since(start))
		if span != nil {
			span.SetAttributes(attribute.String("dispatch.outcome", outcome))
		}
		return result, nil
	}

	d.metrics.RecordStageFailure(stage)
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
	}

	if d.autoHandleHTTPErrors {
		if recognized, ok := classifyError(err); ok {
			converted, convErr := recognized.toResult()
			if convErr == nil {
				d.logger.WithContext(ctx).Debug("converted pipeline failure into response",
					observability.String("stage", stage),
					observability.Int("status", recognized.status),
					observability.Error(err),
				)
				d.metrics.RecordRequest(outcomeErrorHandled, time.Since(start))
				return converted, nil
			}
		}
	}

	d.logger.WithContext(ctx).Error("dispatch failed",
		observability.String("stage", stage),
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.Error(err),
	)
	d.metrics.RecordRequest(outcomeErrorPropagated, time.Since(start))
	return nil, err
}

// dispatch runs the stage sequence and reports the stage a failure
// occurred in. Failures are returned unchanged so the error policy in
// Handle stays the single place that interprets them. The returned
// context carries whatever hooks stored on the request, so the caller's
// logging stays correlated.
func (d *Dispatcher) dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Result, string, context.Context, error) {
	resolved := d.resolver.Resolve(r.Method, r.URL.Path, r.Header)
	if resolved == nil || resolved.Operation == nil {
		d.logger.WithContext(ctx).Debug("no operation resolved",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
		)
		return nil, stageResolve, ctx, nil
	}

	op := resolved.Operation
	if op.Controller() == nil {
		return nil, stageWiring, ctx, fmt.Errorf("resolved %s %s: %w", r.Method, r.URL.Path, util.ErrOperationUnwired)
	}

	rc := NewRequestContext(w, r, resolved)

	if err := evaluateSecurity(ctx, op, rc); err != nil {
		return nil, stageSecurity, ctx, err
	}

	ctx, err := runPreControllerHooks(ctx, d.plugins, rc)
	if err != nil {
		return nil, stagePlugins, ctx, err
	}

	if !rc.ResponseFinished() {
		if _, err := rc.GetParams(ctx); err != nil {
			return nil, stageParams, ctx, err
		}
	}

	// Body extraction strictly after parameter extraction.
	if !rc.ResponseFinished() {
		if _, err := rc.GetBody(ctx); err != nil {
			return nil, stageBody, ctx, err
		}
	}

	var controllerResult any
	if !rc.ResponseFinished() {
		controllerResult, err = invokeController(ctx, op.Controller(), rc)
		if err != nil {
			return nil, stageController, ctx, err
		}
	}

	if !rc.ResponseFinished() {
		if err := d.validateResponse(ctx, op, rc, controllerResult); err != nil {
			return nil, stageValidate, ctx, err
		}
	}

	// A transport that already sent headers owns the response; there is
	// nothing left to materialize.
	if rc.HeadersSent() {
		return nil, stageMaterialize, ctx, nil
	}

	candidate, ok := rc.Response().Body()
	if !ok {
		candidate = controllerResult
	}

	result, err := materialize(rc, candidate)
	if err != nil {
		return nil, stageMaterialize, ctx, err
	}

	return result, stageMaterialize, ctx, nil
}

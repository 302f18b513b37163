package plugin

import (
	"context"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
)

// AccessLog logs one line per dispatched request before the controller
// runs.
type AccessLog struct {
	logger observability.Logger
}

// NewAccessLog creates the access logging plugin.
func NewAccessLog(logger observability.Logger) *AccessLog {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &AccessLog{logger: logger}
}

// Name implements dispatch.Plugin.
func (p *AccessLog) Name() string {
	return "accesslog"
}

// PreController implements dispatch.PreControllerHook.
func (p *AccessLog) PreController(ctx context.Context, rc *dispatch.RequestContext) error {
	fields := []observability.Field{
		observability.String("method", rc.Req.Method),
		observability.String("path", rc.Req.URL.Path),
		observability.String("remote", rc.Req.RemoteAddr),
	}
	if id := rc.Req.Header.Get(RequestIDHeader); id != "" {
		fields = append(fields, observability.String("request_id", id))
	}
	if rc.User != nil {
		fields = append(fields, observability.Any("user", rc.User))
	}

	p.logger.WithContext(rc.Req.Context()).Info("request accepted", fields...)
	return nil
}

// Compile-time interface assertions.
var (
	_ dispatch.Plugin            = (*AccessLog)(nil)
	_ dispatch.PreControllerHook = (*AccessLog)(nil)
)

package plugin

import (
	"context"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
)

// RequestIDHeader is the header the request ID is read from and echoed
// on.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a unique identifier. An identifier
// supplied by the client is kept; otherwise a new UUID is generated.
// The identifier is echoed on the response and attached to the request
// context for log correlation.
type RequestID struct{}

// NewRequestID creates the request ID plugin.
func NewRequestID() *RequestID {
	return &RequestID{}
}

// Name implements dispatch.Plugin.
func (p *RequestID) Name() string {
	return "requestid"
}

// PreController implements dispatch.PreControllerHook.
func (p *RequestID) PreController(ctx context.Context, rc *dispatch.RequestContext) error {
	id := rc.Req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
		rc.Req.Header.Set(RequestIDHeader, id)
	}

	rc.Req = rc.Req.WithContext(observability.ContextWithRequestID(rc.Req.Context(), id))
	rc.Response().SetHeader(RequestIDHeader, id)
	return nil
}

// Compile-time interface assertions.
var (
	_ dispatch.Plugin            = (*RequestID)(nil)
	_ dispatch.PreControllerHook = (*RequestID)(nil)
)

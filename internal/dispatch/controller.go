package dispatch

import (
	"context"
)

// invokeController calls the application handler with the request context
// and returns whatever it produced. The invoker performs no interpretation
// of the result; converting it into a response is the materializer's job.
// Handler failures propagate unchanged.
func invokeController(ctx context.Context, controller Controller, rc *RequestContext) (any, error) {
	return controller(ctx, rc)
}

package dispatch

import (
	"context"
)

// Plugin is an externally configured pipeline extension. Plugins run in
// their configured order and strictly sequentially, never concurrently.
type Plugin interface {
	// Name identifies the plugin in logs and metrics.
	Name() string
}

// PreControllerHook is implemented by plugins that want to run before the
// controller. The hook may mutate the request context, including marking
// the response finished or writing to the transport directly.
type PreControllerHook interface {
	PreController(ctx context.Context, rc *RequestContext) error
}

// runPreControllerHooks invokes each plugin's pre-controller hook in
// configured order. The finished state is re-checked before every hook,
// so a plugin that finishes the response causes the remaining plugins to
// be skipped. A hook failure aborts the pipeline and propagates to the
// dispatcher's error policy unchanged.
//
// Hooks mutate the stage context by swapping rc.Req for a request with a
// derived context. The request context is re-read after each hook so
// later hooks and the returned context see those values, request IDs
// included.
func runPreControllerHooks(ctx context.Context, plugins []Plugin, rc *RequestContext) (context.Context, error) {
	for _, p := range plugins {
		if rc.ResponseFinished() {
			return ctx, nil
		}

		hook, ok := p.(PreControllerHook)
		if !ok {
			continue
		}

		if err := hook.PreController(ctx, rc); err != nil {
			return ctx, err
		}
		ctx = rc.Req.Context()
	}

	return ctx, nil
}

package dispatch

import (
	"context"
	"errors"
	"net/http"

	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// validateResponse runs the operation's response validation procedure and
// reports violations through the configured callback. The stage is active
// only when a callback was configured. Validation observes the response,
// it never mutates it. A failing callback is normalized to carry a status
// code (500 by default) and aborts the pipeline.
func (d *Dispatcher) validateResponse(ctx context.Context, op Operation, rc *RequestContext, controllerResult any) error {
	if d.onResponseValidationError == nil {
		return nil
	}

	result := op.ValidateResponse(rc.responseView(controllerResult), d.validateDefaultResponses)
	if len(result.Errors) == 0 {
		return nil
	}

	if err := d.onResponseValidationError(ctx, result); err != nil {
		return normalizeCallbackError(err)
	}

	return nil
}

// normalizeCallbackError ensures a response-validation-callback failure
// carries an HTTP status, defaulting to 500.
func normalizeCallbackError(err error) error {
	var se *util.StatusError
	if errors.As(err, &se) {
		return err
	}

	var ve *util.ValidationError
	if errors.As(err, &ve) {
		return err
	}

	return util.NewStatusErrorWithCause(http.StatusInternalServerError, err.Error(), err)
}

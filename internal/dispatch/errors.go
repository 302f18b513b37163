package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// recognizedFailure is the classified form of a failure the error policy
// knows how to render as an HTTP response.
type recognizedFailure struct {
	status  int
	payload any
}

// errorBody is the JSON body rendered for recognized failures.
type errorBody struct {
	Message string                 `json:"message"`
	Errors  []util.ValidationIssue `json:"errors,omitempty"`
}

// classifyError classifies a pipeline failure. Validation failures and
// status-bearing failures are recognized and can be converted into
// responses; everything else -- including configuration errors such as an
// unwired operation -- is unrecognized and must always be rethrown, since
// its shape carries no safe HTTP status to report.
func classifyError(err error) (recognizedFailure, bool) {
	var ve *util.ValidationError
	if errors.As(err, &ve) {
		return recognizedFailure{
			status: ve.StatusCode(),
			payload: errorBody{
				Message: "Validation errors",
				Errors:  ve.Issues,
			},
		}, true
	}

	var se *util.StatusError
	if errors.As(err, &se) && se.Status != 0 {
		message := se.Message
		if message == "" {
			message = se.Error()
		}
		return recognizedFailure{
			status:  se.Status,
			payload: errorBody{Message: message},
		}, true
	}

	return recognizedFailure{}, false
}

// toResult renders a recognized failure as a JSON Result.
func (f recognizedFailure) toResult() (*Result, error) {
	encoded, err := json.Marshal(f.payload)
	if err != nil {
		return nil, err
	}

	return &Result{
		Status:  f.status,
		Headers: map[string]string{headerContentType: "application/json"},
		Body:    bytes.NewReader(encoded),
	}, nil
}

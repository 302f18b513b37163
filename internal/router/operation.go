package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/security"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// OperationSpec describes one operation to register.
type OperationSpec struct {
	// ID identifies the operation in logs and metrics. Required.
	ID string

	// Method is the HTTP method. Required.
	Method string

	// Path is the request path, optionally with {name} template
	// parameters. Required.
	Path string

	// Controller handles the request. May be nil for operations
	// declared but not yet implemented.
	Controller dispatch.Controller

	// Schemes are evaluated in order during authentication. A scheme
	// reporting no credentials is skipped.
	Schemes []security.Scheme

	// AllowAnonymous permits requests no scheme matched even when
	// schemes are configured.
	AllowAnonymous bool

	// Headers restricts the registration to requests carrying these
	// exact header values.
	Headers map[string]string

	// Responses optionally declares the response contract.
	Responses *ResponseContract
}

// compiledOperation is a registered operation ready for resolution.
type compiledOperation struct {
	id             string
	controller     dispatch.Controller
	schemes        []security.Scheme
	allowAnonymous bool
	contract       *ResponseContract

	path     pathMatcher
	headers  []headerMatcher
	priority int
}

// ID returns the operation identifier.
func (op *compiledOperation) ID() string {
	return op.id
}

// Controller implements dispatch.Operation.
func (op *compiledOperation) Controller() dispatch.Controller {
	return op.controller
}

// Authenticate implements dispatch.Operation. Schemes run in
// registration order; every scheme that finds and accepts its
// credentials contributes to the result under its name.
func (op *compiledOperation) Authenticate(ctx context.Context, rc *dispatch.RequestContext) (dispatch.SecurityResult, error) {
	if len(op.schemes) == 0 {
		return nil, nil
	}

	result := make(dispatch.SecurityResult)
	for _, scheme := range op.schemes {
		schemeResult, err := scheme.Authenticate(ctx, rc)
		if err != nil {
			if errors.Is(err, security.ErrNoCredentials) {
				continue
			}
			return nil, err
		}
		result[scheme.Name()] = schemeResult
	}

	if len(result) == 0 && !op.allowAnonymous {
		return nil, util.NewStatusError(401, "authentication required")
	}
	return result, nil
}

// ValidateResponse implements dispatch.Operation.
func (op *compiledOperation) ValidateResponse(view dispatch.ResponseView, validateDefaults bool) dispatch.ValidationResult {
	return dispatch.ValidationResult{
		Errors: op.contract.validate(view, validateDefaults),
	}
}

// compileOperation builds the matcher set for a spec.
func compileOperation(spec OperationSpec) (*compiledOperation, error) {
	if spec.ID == "" {
		return nil, util.NewConfigError("router.operation", "operation ID is required")
	}
	if spec.Method == "" {
		return nil, util.NewConfigError("router.operation", fmt.Sprintf("operation %s: method is required", spec.ID))
	}

	path, err := compilePathMatcher(spec.Path)
	if err != nil {
		return nil, err
	}

	op := &compiledOperation{
		id:             spec.ID,
		controller:     spec.Controller,
		schemes:        spec.Schemes,
		allowAnonymous: spec.AllowAnonymous,
		contract:       spec.Responses,
		path:           path,
		priority:       path.Priority(),
	}

	for name, value := range spec.Headers {
		op.headers = append(op.headers, headerMatcher{name: name, value: value})
		op.priority += priorityPerHeader
	}

	return op, nil
}

// Compile-time interface assertion.
var _ dispatch.Operation = (*compiledOperation)(nil)

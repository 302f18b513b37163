package dispatch

import (
	"context"
	"io"
	"net/http"

	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// Result is the canonical pipeline output: a status code, a header mapping
// with lower-cased keys, and an optional body stream. Body is nil only when
// there is truly no content to send.
type Result struct {
	Status  int
	Headers map[string]string
	Body    io.Reader
}

// SchemeResult is the outcome of a single authentication scheme. User is
// the authenticated principal; the remaining fields carry whatever the
// scheme learned about it.
type SchemeResult struct {
	User   any
	Roles  []string
	Scopes []string
	Claims map[string]any
}

// SecurityResult maps an authentication scheme name to its outcome. Only
// schemes that actually matched the request appear in the map.
type SecurityResult map[string]*SchemeResult

// Controller is an application-supplied handler. It receives the request
// context and returns an arbitrary value that the materializer converts
// into the response body, or an error that is routed through the
// dispatcher's error policy.
type Controller func(ctx context.Context, rc *RequestContext) (any, error)

// ValidationIssue describes a single response contract violation.
type ValidationIssue = util.ValidationIssue

// ValidationResult is the outcome of validating a response against the
// operation's declared contract.
type ValidationResult struct {
	Errors []ValidationIssue
}

// ResponseView is the read-only view of the response state handed to
// response validation. BodyCandidate is the value that will be
// materialized, not yet serialized.
type ResponseView struct {
	Status        int
	Headers       map[string]string
	BodyCandidate any
}

// Operation is the resolved target of a routed request. Implementations
// are read-only for the duration of a request.
type Operation interface {
	// Authenticate runs the operation's authentication procedure. The
	// returned map may be nil when no scheme applies. Failures propagate
	// unchanged to the dispatcher.
	Authenticate(ctx context.Context, rc *RequestContext) (SecurityResult, error)

	// Controller returns the application handler, or nil when the
	// operation has none wired.
	Controller() Controller

	// ValidateResponse checks a produced response against the operation's
	// declared response contract. validateDefaults controls whether the
	// fallback contract is also enforced.
	ValidateResponse(view ResponseView, validateDefaults bool) ValidationResult
}

// Resolved is the outcome of routing a method, path and header triple.
type Resolved struct {
	// API is the originating API definition.
	API any

	// Operation is the matched operation; nil when the route matched but
	// carries no operation.
	Operation Operation

	// PathParams holds parameters captured from the request path.
	PathParams map[string]string
}

// Resolver matches requests to operations. A nil return means nothing
// resolved and the pipeline must produce no result.
type Resolver interface {
	Resolve(method, path string, headers http.Header) *Resolved
}

// ResponseValidationCallback is invoked with the validation result when
// response validation reports one or more issues. A non-nil return aborts
// the pipeline; errors without a status are normalized to 500.
type ResponseValidationCallback func(ctx context.Context, result ValidationResult) error

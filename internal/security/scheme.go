package security

import (
	"context"
	"errors"
	"net/http"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// ErrNoCredentials indicates a scheme found no credentials of its kind on
// the request. The scheme is skipped rather than failing the pipeline.
var ErrNoCredentials = errors.New("no credentials provided")

// Scheme authenticates one named security scheme against a request
// context.
type Scheme interface {
	// Name returns the scheme name used as the key in the security
	// result.
	Name() string

	// Authenticate inspects the request context for this scheme's
	// credentials. It returns ErrNoCredentials when none are present,
	// a status-bearing failure when they are present but invalid, and
	// the scheme result on success.
	Authenticate(ctx context.Context, rc *dispatch.RequestContext) (*dispatch.SchemeResult, error)
}

// Unauthorized builds the 401 failure returned for invalid credentials.
func Unauthorized(message string) *util.StatusError {
	return util.NewStatusError(http.StatusUnauthorized, message)
}

// UnauthorizedWithCause builds a 401 failure wrapping the underlying
// validation error.
func UnauthorizedWithCause(message string, cause error) *util.StatusError {
	return util.NewStatusErrorWithCause(http.StatusUnauthorized, message, cause)
}

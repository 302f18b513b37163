package dispatch

import (
	"context"
)

// evaluateSecurity runs the operation's authentication procedure and
// attaches its result to the request context. When exactly one scheme
// matched, the scheme's user is copied to the context's convenience User
// field; with zero or multiple matches the identity is ambiguous and User
// stays unset. Authentication failures propagate unchanged.
func evaluateSecurity(ctx context.Context, op Operation, rc *RequestContext) error {
	result, err := op.Authenticate(ctx, rc)
	if err != nil {
		return err
	}

	rc.Security = result

	if len(result) == 1 {
		for _, scheme := range result {
			if scheme != nil {
				rc.User = scheme.User
			}
		}
	}

	return nil
}

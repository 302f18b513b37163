package router

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
)

// ResponseSpec declares what a single response status is allowed to
// carry.
type ResponseSpec struct {
	// ContentType restricts the response content type. Empty allows
	// any. Parameters after a ";" on the response header are ignored.
	ContentType string `yaml:"contentType"`

	// BodyRequired requires a non-absent body candidate.
	BodyRequired bool `yaml:"bodyRequired"`
}

// ResponseContract declares the statuses an operation may produce.
type ResponseContract struct {
	// Statuses maps a declared status code to its spec.
	Statuses map[int]ResponseSpec `yaml:"statuses"`

	// Default, when set, covers statuses not declared in Statuses. It
	// is consulted only when default validation is enabled.
	Default *ResponseSpec `yaml:"default"`
}

// validate checks a response view against the contract and returns the
// issues found.
func (c *ResponseContract) validate(view dispatch.ResponseView, validateDefaults bool) []dispatch.ValidationIssue {
	if c == nil {
		return nil
	}

	spec, declared := c.Statuses[view.Status]
	if !declared {
		switch {
		case c.Default == nil:
			if len(c.Statuses) == 0 {
				return nil
			}
			return []dispatch.ValidationIssue{{
				Location: "response.status",
				Message:  fmt.Sprintf("undeclared response status %d", view.Status),
			}}
		case !validateDefaults:
			// The default spec covers this status but default
			// validation is switched off.
			return nil
		default:
			spec = *c.Default
		}
	}

	var issues []dispatch.ValidationIssue

	if spec.ContentType != "" {
		got := responseMediaType(view.Headers)
		if got != "" && !strings.EqualFold(got, spec.ContentType) {
			issues = append(issues, dispatch.ValidationIssue{
				Location: "response.headers.content-type",
				Message:  fmt.Sprintf("content type %q does not match declared %q", got, spec.ContentType),
			})
		}
	}

	if spec.BodyRequired && view.BodyCandidate == nil {
		issues = append(issues, dispatch.ValidationIssue{
			Location: "response.body",
			Message:  fmt.Sprintf("response status %d requires a body", view.Status),
		})
	}

	return issues
}

// responseMediaType returns the content type from lowercased response
// headers, stripped of parameters.
func responseMediaType(headers map[string]string) string {
	value := headers["content-type"]
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}

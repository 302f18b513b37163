package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *StatusError
		expected string
	}{
		{
			name:     "with message",
			err:      NewStatusError(404, "route gone"),
			expected: "status 404: route gone",
		},
		{
			name:     "without message",
			err:      &StatusError{Status: 503},
			expected: "status 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestStatusErrorWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("backend down")
	err := NewStatusErrorWithCause(502, "bad gateway", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, errors.Unwrap(err))

	var se *StatusError
	wrapped := fmt.Errorf("handling request: %w", err)
	require.ErrorAs(t, wrapped, &se)
	assert.Equal(t, 502, se.Status)
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	err := NewValidationError(0,
		ValidationIssue{Location: "query.limit", Message: "must be an integer"},
		ValidationIssue{Location: "body.name", Message: "is required"},
	)

	assert.Equal(t, "validation failed with 2 issue(s)", err.Error())
	assert.Equal(t, 400, err.StatusCode())

	err.Status = 422
	assert.Equal(t, 422, err.StatusCode())

	var ve *ValidationError
	require.ErrorAs(t, fmt.Errorf("dispatch: %w", err), &ve)
	assert.Len(t, ve.Issues, 2)
}

func TestConfigError(t *testing.T) {
	t.Parallel()

	err := NewConfigError("server.listen", "address is required")
	assert.Equal(t, "config error at server.listen: address is required", err.Error())

	bare := &ConfigError{Message: "empty file"}
	assert.Equal(t, "config error: empty file", bare.Error())
}

func TestConfigErrorSentinel(t *testing.T) {
	t.Parallel()

	err := NewConfigError("router.path", "must start with /")

	require.ErrorIs(t, err, ErrConfigInvalid)
	require.ErrorIs(t, fmt.Errorf("loading config: %w", err), ErrConfigInvalid)

	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "router.path", ce.Field)

	assert.NotErrorIs(t, err, ErrStoreClosed)
}

// Package util provides shared utility types for the dispatch pipeline.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrOperationUnwired.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., StatusError, ValidationError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// All custom error types must implement:
//
//	Error() string           – human-readable message
//	Unwrap() error           – if the type wraps another error
//	Is(target error) bool    – for errors.Is() compatibility
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrOperationUnwired indicates a resolved operation has no controller
	// bound to it. This is a deployment misconfiguration, never a request
	// error, and is deliberately not status-bearing so that the dispatch
	// error policy always rethrows it.
	ErrOperationUnwired = errors.New("operation has no controller")

	// ErrConfigInvalid indicates invalid configuration.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrStoreClosed indicates an operation on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// StatusError is a failure that carries an HTTP status code. The dispatch
// error policy converts it into a JSON response when auto-handling is
// enabled.
type StatusError struct {
	Status  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("status %d", e.Status)
}

// Unwrap returns the underlying error.
func (e *StatusError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *StatusError) Is(target error) bool {
	var se *StatusError
	if errors.As(target, &se) {
		return se.Status == 0 || se.Status == e.Status
	}
	return errors.Is(e.Cause, target)
}

// NewStatusError creates a new StatusError.
func NewStatusError(status int, message string) *StatusError {
	return &StatusError{Status: status, Message: message}
}

// NewStatusErrorWithCause creates a new StatusError wrapping a cause.
func NewStatusErrorWithCause(status int, message string, cause error) *StatusError {
	return &StatusError{Status: status, Message: message, Cause: cause}
}

// ValidationIssue describes a single contract violation, typically tied to
// a request parameter or a response field.
type ValidationIssue struct {
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}

// ValidationError is a failure carrying a structured list of per-field
// issues and an HTTP status. The zero status defaults to 400 when rendered.
type ValidationError struct {
	Status int
	Issues []ValidationIssue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d issue(s)", len(e.Issues))
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	var ve *ValidationError
	return errors.As(target, &ve)
}

// StatusCode returns the HTTP status for the error, defaulting to 400.
func (e *ValidationError) StatusCode() int {
	if e.Status == 0 {
		return 400
	}
	return e.Status
}

// NewValidationError creates a ValidationError with the given issues.
func NewValidationError(status int, issues ...ValidationIssue) *ValidationError {
	return &ValidationError{Status: status, Issues: issues}
}

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target. Every ConfigError matches
// the ErrConfigInvalid sentinel.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	var ce *ConfigError
	return errors.As(target, &ce) || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

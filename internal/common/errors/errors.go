// Package errors provides the standardized error type shared by the planner
// services and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError reports malformed caller input.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Validation failed",
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationErrorf is NewValidationError with formatting.
func NewValidationErrorf(format string, args ...interface{}) *StandardError {
	return NewValidationError(fmt.Sprintf(format, args...))
}

// NewNotFoundError reports an unknown entity id.
func NewNotFoundError(resource string, id int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("%s not found with id %d", resource, id),
		Timestamp: time.Now().UTC(),
		Metadata:  map[string]interface{}{"resource": resource, "id": id},
	}
}

// NewConflictError reports contention, e.g. a lease that could not be acquired in time.
func NewConflictError(details string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConflict,
		Message:   "Conflicting operation in progress",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewExternalServiceError wraps a failed call to a downstream service.
func NewExternalServiceError(service string, err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeExternalService,
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   details,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard finds a StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Normalize always returns a StandardError, wrapping unknown errors as internal.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

// CodeOf returns the error code for err, or "" when err is nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	return Normalize(err).Code
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// GetErrorCategory groups codes for logging and metrics labels.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeValidation:
		return "CLIENT"
	case ErrCodeNotFound:
		return "CLIENT"
	case ErrCodeConflict:
		return "CONCURRENCY"
	case ErrCodeExternalService:
		return "UPSTREAM"
	default:
		return "SERVER"
	}
}

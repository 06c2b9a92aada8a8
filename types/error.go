package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across conclave.
type ErrorCode string

// Consensus error codes
const (
	ErrNoResponders       ErrorCode = "NO_RESPONDERS"
	ErrRoundInProgress    ErrorCode = "ROUND_IN_PROGRESS"
	ErrRoundStalled       ErrorCode = "ROUND_STALLED"
	ErrCoordinatorStopped ErrorCode = "COORDINATOR_STOPPED"
	ErrResponderStopped   ErrorCode = "RESPONDER_STOPPED"
)

// Completion error codes
const (
	ErrCompletionFailed ErrorCode = "COMPLETION_FAILED"
	ErrEmptyCompletion  ErrorCode = "EMPTY_COMPLETION"
	ErrUpstreamTimeout  ErrorCode = "UPSTREAM_TIMEOUT"
)

// Configuration error codes
const (
	ErrMissingCredential ErrorCode = "MISSING_CREDENTIAL"
	ErrInvalidConfig     ErrorCode = "INVALID_CONFIG"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error carrying the same code, so package
// sentinels built with NewError match wrapped copies through errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause returns a copy of the error carrying cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithRetryable returns a copy of the error with the retryable flag set.
func (e *Error) WithRetryable(retryable bool) *Error {
	cp := *e
	cp.Retryable = retryable
	return &cp
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the coordination core.
type ErrorCode string

const (
	// ErrNotFound indicates an unknown advertisement, inquiry, voting,
	// breakdown, proposal, or contract identifier.
	ErrNotFound ErrorCode = "NOT_FOUND"

	// ErrExpired indicates an action attempted on a time-lapsed record.
	ErrExpired ErrorCode = "EXPIRED"

	// ErrInvalidState indicates an operation that is illegal in the record's
	// current lifecycle state, such as casting a ballot on a closed voting.
	ErrInvalidState ErrorCode = "INVALID_STATE"

	// ErrValidation indicates caller-fault input: missing required fields,
	// fewer than two voting choices, an empty subtask list, and so on.
	// Validation errors are never retried automatically.
	ErrValidation ErrorCode = "VALIDATION"
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Retryable: code != ErrValidation}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// NotFoundf creates a NOT_FOUND error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return NewError(ErrNotFound, fmt.Sprintf(format, args...))
}

// Expiredf creates an EXPIRED error with a formatted message.
func Expiredf(format string, args ...any) *Error {
	return NewError(ErrExpired, fmt.Sprintf(format, args...))
}

// InvalidStatef creates an INVALID_STATE error with a formatted message.
func InvalidStatef(format string, args ...any) *Error {
	return NewError(ErrInvalidState, fmt.Sprintf(format, args...))
}

// Validationf creates a VALIDATION error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return NewError(ErrValidation, fmt.Sprintf(format, args...))
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool { return GetErrorCode(err) == ErrNotFound }

// IsExpired reports whether err carries the EXPIRED code.
func IsExpired(err error) bool { return GetErrorCode(err) == ErrExpired }

// IsInvalidState reports whether err carries the INVALID_STATE code.
func IsInvalidState(err error) bool { return GetErrorCode(err) == ErrInvalidState }

// IsValidation reports whether err carries the VALIDATION code.
func IsValidation(err error) bool { return GetErrorCode(err) == ErrValidation }

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

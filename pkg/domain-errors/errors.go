// Package domainerrors carries coded errors from services to transport.
// Stores return sentinel errors from pkg/platform/sentinel; services
// translate them into coded errors here so handlers never inspect
// infrastructure failures directly.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and for tests.
type Code string

const (
	// CodeValidation marks malformed or missing caller input.
	CodeValidation Code = "validation_error"
	// CodeConflict marks a business-invariant violation (already voted,
	// party taken, already processed). Surfaced verbatim to the caller.
	CodeConflict Code = "conflict"
	// CodeUnauthorized marks a missing or invalid token. Opaque message.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks a caller whose role does not permit the action.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks an absent resource. May be presented identically
	// to CodeUnauthorized at the transport edge to avoid enumeration.
	CodeNotFound Code = "not_found"
	// CodeSessionLocked marks an action the voting session gate denies.
	// Always carries the specific reason in the message.
	CodeSessionLocked Code = "session_locked"
	// CodeUnavailable marks a retryable dependency failure.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks everything the caller cannot act on.
	CodeInternal Code = "internal"
)

// Error is the coded error type produced by services.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err carries
// none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the caller-facing message, or a generic one when err is
// not coded. Dependency internals never leak through here.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code onto the HTTP status the transport layer writes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeSessionLocked:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

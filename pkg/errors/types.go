package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	// Registry lookup errors
	ErrorCodeUnknownKind   ErrorCode = "UNKNOWN_KIND"
	ErrorCodeAmbiguousKind ErrorCode = "AMBIGUOUS_KIND"

	// Request errors
	ErrorCodeTransport  ErrorCode = "TRANSPORT_ERROR"
	ErrorCodeAPIFailure ErrorCode = "API_FAILURE"
	ErrorCodeParse      ErrorCode = "PARSE_ERROR"

	// Watch errors
	ErrorCodeWatchClosed ErrorCode = "WATCH_CLOSED"

	// Input validation errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// ClientError is the coded error type of client operations. Errors that
// Wrap builds from plain causes are not ClientErrors and carry no code.
type ClientError struct {
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
	// Candidates carries the possible fullKinds of an ambiguous shortKind
	Candidates []string `json:"candidates,omitempty"`
	Cause      error    `json:"-"`
}

// Error implements the error interface
func (e *ClientError) Error() string {
	var parts []string

	parts = append(parts, string(e.Code))
	parts = append(parts, e.Message)

	if len(e.Candidates) > 0 {
		parts = append(parts, fmt.Sprintf("candidates: %s", strings.Join(e.Candidates, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %s", e.Cause.Error()))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// New creates a new ClientError
func New(code ErrorCode, message string) *ClientError {
	return &ClientError{
		Code:    code,
		Message: message,
	}
}

// Wrap annotates another error with a message. A ClientError is wrapped in
// a new ClientError with the same code; any other error is wrapped with
// github.com/pkg/errors and carries no code.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// Keep the original code visible when wrapping one of our own errors
	if ce, ok := err.(*ClientError); ok {
		return &ClientError{
			Code:       ce.Code,
			Message:    message,
			Candidates: ce.Candidates,
			Cause:      ce,
		}
	}

	return errors.Wrap(err, message)
}

// Wrapf is Wrap with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithContext adds additional context
func (e *ClientError) WithContext(key, value string) *ClientError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithCause attaches the underlying cause
func (e *ClientError) WithCause(err error) *ClientError {
	e.Cause = err
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	ce := &ClientError{}
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	ce := &ClientError{}
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrorCodeTransport
}

// UnknownKindError reports a registry lookup miss
func UnknownKindError(kind string) *ClientError {
	return New(ErrorCodeUnknownKind, fmt.Sprintf("kind %q is not registered", kind)).
		WithContext("kind", kind)
}

// AmbiguousKindError reports a shortKind resolving to several fullKinds
func AmbiguousKindError(kind string, candidates []string) *ClientError {
	e := New(ErrorCodeAmbiguousKind,
		fmt.Sprintf("kind %q matches multiple API groups, pass a fullKind", kind))
	e.Candidates = candidates
	return e.WithContext("kind", kind)
}

// TransportError reports a network or TLS level failure
func TransportError(err error, message string) *ClientError {
	return New(ErrorCodeTransport, message).WithCause(err)
}

// APIFailureError reports a server response with status "Failure".
// The message is the pretty-printed response body; reason and code are
// lifted from the body when present.
func APIFailureError(message, reason string, code int64) *ClientError {
	e := New(ErrorCodeAPIFailure, message)
	if reason != "" {
		e = e.WithContext("reason", reason)
	}
	if code != 0 {
		e = e.WithContext("code", fmt.Sprintf("%d", code))
	}
	return e
}

// ParseError reports malformed JSON in a response or watch event
func ParseError(err error, message string) *ClientError {
	return New(ErrorCodeParse, message).WithCause(err)
}

// WatchClosedError reports a watch stream that ended
func WatchClosedError(err error) *ClientError {
	e := New(ErrorCodeWatchClosed, "watch stream closed")
	if err != nil {
		e = e.WithCause(err)
	}
	return e
}

// InvalidInputError reports a malformed argument or document
func InvalidInputError(message string) *ClientError {
	return New(ErrorCodeInvalidInput, message)
}

package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies why an upstream call did not produce an answer.
type ErrorKind string

const (
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindLoading   ErrorKind = "loading"
	ErrorKindStatus    ErrorKind = "status"
	ErrorKindAuth      ErrorKind = "auth"
	ErrorKindEmpty     ErrorKind = "empty"
	ErrorKindMalformed ErrorKind = "malformed"
	ErrorKindTransport ErrorKind = "transport"
	ErrorKindUnknown   ErrorKind = "unknown"
)

// Error is returned by providers for every failed call.
type Error struct {
	Kind       ErrorKind
	Model      string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error from %s", e.Kind, e.Model)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKindOf returns the kind of the first *Error in err's chain.
// Context deadlines are reported as timeouts even when no provider wrapped them.
func ErrorKindOf(err error) ErrorKind {
	var inferenceErr *Error
	if errors.As(err, &inferenceErr) {
		return inferenceErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	return ErrorKindUnknown
}

// Classify maps a non-success HTTP status and its body onto an ErrorKind.
func Classify(statusCode int, body string) ErrorKind {
	switch {
	case statusCode == http.StatusServiceUnavailable:
		return ErrorKindLoading
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrorKindAuth
	case IsLoadingMessage(body):
		return ErrorKindLoading
	default:
		return ErrorKindStatus
	}
}

// IsLoadingMessage reports whether a provider error message describes a cold model.
func IsLoadingMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "currently loading") ||
		strings.Contains(lower, "is loading") ||
		strings.Contains(lower, "estimated_time")
}

// NewTransportError wraps an error returned before any HTTP status was received.
// Deadlines on ctx become timeouts.
func NewTransportError(ctx context.Context, model string, err error) *Error {
	kind := ErrorKindTransport
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		kind = ErrorKindTimeout
	}
	return &Error{Kind: kind, Model: model, Err: err}
}

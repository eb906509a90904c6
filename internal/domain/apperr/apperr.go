package apperr

import (
	"errors"
	"net/http"
	"time"
)

// Kind classifies an application error. Each kind maps to exactly one HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthenticated
	KindForbidden
	KindRateLimited
	KindNotFound
)

// String returns the stable upper-case name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindRateLimited:
		return "RATE_LIMITED"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// Status maps the kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error type crossing package boundaries in the service.
//
// Fields:
//   - Kind: classification used to pick the HTTP status.
//   - Message: client-facing message, safe to expose.
//   - RetryAfter: hint for RATE_LIMITED (and retryable INTERNAL) rejections.
//   - Retryable: the caller may retry the same request later.
//   - Err: wrapped cause, logged but never exposed to clients.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind carrying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func BadRequest(message string) *Error { return New(KindBadRequest, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

// RateLimited builds a RATE_LIMITED rejection with its retry hint.
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter, Retryable: true}
}

// Unavailable builds a retryable INTERNAL error for transient dependency failures.
func Unavailable(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Retryable: true, RetryAfter: time.Second, Err: cause}
}

// As extracts an *Error from err. Anything else is reported as INTERNAL with a
// generic message so internal details never leak.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(KindInternal, "Internal server error", err)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	return As(err).Kind
}

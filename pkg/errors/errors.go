// Package errors defines the structured error taxonomy for the compliance advisor.
// Every error that crosses a component boundary carries a stable machine-readable kind
// and maps to an HTTP status code.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is the stable machine-readable error category surfaced to API callers.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindReferential       Kind = "referential_error"
	KindTransientUpstream Kind = "transient_upstream_error"
	KindUpstream          Kind = "upstream_error"
	KindInvariant         Kind = "invariant_violation"
	KindForbidden         Kind = "forbidden"
	KindUnauthorized      Kind = "unauthorized"
	KindNotFound          Kind = "not_found"
	KindInternal          Kind = "internal_error"
	KindRateLimited       Kind = "rate_limited"
)

// ================================================================================
// Application Error
// ================================================================================

// AppError represents a structured application error
type AppError struct {
	Kind     Kind
	Message  string
	Status   int
	Metadata map[string]interface{}
	cause    error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithCause adds a cause error to the error chain
func (e *AppError) WithCause(cause error) *AppError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// Is reports kind equality so errors.Is(err, errors.Validation("")) style checks work.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates a new AppError
func NewError(kind Kind, status int, message string) *AppError {
	return &AppError{Kind: kind, Status: status, Message: message}
}

// ================================================================================
// Constructors
// ================================================================================

// Validation reports malformed input. Never retried.
func Validation(format string, args ...interface{}) *AppError {
	return NewError(KindValidation, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// Referential reports an operation that references an unknown or inactive tenant.
func Referential(format string, args ...interface{}) *AppError {
	return NewError(KindReferential, http.StatusNotFound, fmt.Sprintf(format, args...))
}

// TransientUpstream reports a temporarily unavailable dependency. Retried with backoff.
func TransientUpstream(format string, args ...interface{}) *AppError {
	return NewError(KindTransientUpstream, http.StatusServiceUnavailable, fmt.Sprintf(format, args...))
}

// Upstream reports a non-retryable failure of an external dependency.
func Upstream(format string, args ...interface{}) *AppError {
	return NewError(KindUpstream, http.StatusBadGateway, fmt.Sprintf(format, args...))
}

// Invariant reports a broken internal guarantee. Must never be suppressed.
func Invariant(format string, args ...interface{}) *AppError {
	return NewError(KindInvariant, http.StatusInternalServerError, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...interface{}) *AppError {
	return NewError(KindForbidden, http.StatusForbidden, fmt.Sprintf(format, args...))
}

func Unauthorized(format string, args ...interface{}) *AppError {
	return NewError(KindUnauthorized, http.StatusUnauthorized, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *AppError {
	return NewError(KindNotFound, http.StatusNotFound, fmt.Sprintf(format, args...))
}

func Internal(format string, args ...interface{}) *AppError {
	return NewError(KindInternal, http.StatusInternalServerError, fmt.Sprintf(format, args...))
}

// RateLimited reports a caller that exceeded its request budget.
func RateLimited(format string, args ...interface{}) *AppError {
	return NewError(KindRateLimited, http.StatusTooManyRequests, fmt.Sprintf(format, args...))
}

// ErrDatabaseOperation is wrapped around raw driver errors by the repositories.
var ErrDatabaseOperation = stderrors.New("database operation failed")

// ================================================================================
// Inspection Helpers
// ================================================================================

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus returns the HTTP status for err.
func HTTPStatus(err error) int {
	if appErr, ok := As(err); ok && appErr.Status != 0 {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether err should be retried at the task level.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindTransientUpstream
}

// IsInvariant reports whether err is an invariant violation.
func IsInvariant(err error) bool {
	return err != nil && KindOf(err) == KindInvariant
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Is re-exports errors.Is.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// New re-exports errors.New.
func New(text string) error { return stderrors.New(text) }

package errors

import (
	"errors"
	"fmt"
)

// QueryErrorKind is the small stable taxonomy exposed by the query service.
// Internal stage failures never leak past it.
type QueryErrorKind string

const (
	// QueryInvalidInput indicates a malformed or empty query.
	QueryInvalidInput QueryErrorKind = "INVALID_INPUT"
	// QueryUnavailable indicates the index cannot be reached.
	QueryUnavailable QueryErrorKind = "UNAVAILABLE"
	// QueryInternal indicates an unexpected failure answering the query.
	QueryInternal QueryErrorKind = "INTERNAL"
)

// QueryError is the error type returned by the query service.
type QueryError struct {
	Kind    QueryErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is matches QueryErrors by kind, enabling errors.Is.
func (e *QueryError) Is(target error) bool {
	if t, ok := target.(*QueryError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// NewQueryError creates a QueryError of the given kind.
func NewQueryError(kind QueryErrorKind, message string, cause error) *QueryError {
	return &QueryError{Kind: kind, Message: message, Cause: cause}
}

// QueryKindOf returns the kind of err, or QueryInternal for foreign errors.
func QueryKindOf(err error) QueryErrorKind {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return QueryInternal
}

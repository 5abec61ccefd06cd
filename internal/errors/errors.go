package errors

import (
	"errors"
	"fmt"
)

// StageError is the structured error type for pipeline stage failures.
// Its Class drives the retry/dead-letter manager; everything else is
// context for logging and dead-letter records.
type StageError struct {
	// Code is the unique error code (e.g., "ERR_201_STORAGE_READ").
	Code string

	// Class is the retry classification.
	Class Class

	// Message is the human-readable error message.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StageError) Unwrap() error {
	return e.Cause
}

// Is matches StageErrors by code, enabling errors.Is.
func (e *StageError) Is(target error) bool {
	if t, ok := target.(*StageError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a StageError with the class derived from the code.
func New(code string, message string, cause error) *StageError {
	return &StageError{
		Code:    code,
		Class:   classFromCode(code),
		Message: message,
		Cause:   cause,
	}
}

// Transient creates a retryable StageError regardless of code category.
func Transient(code string, message string, cause error) *StageError {
	e := New(code, message, cause)
	e.Class = ClassTransient
	return e
}

// Permanent creates a non-retryable StageError regardless of code category.
func Permanent(code string, message string, cause error) *StageError {
	e := New(code, message, cause)
	e.Class = ClassPermanent
	return e
}

// Wrap creates a StageError from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *StageError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ClassOf returns the classification of err.
// Errors that are not StageErrors (including context deadline errors from
// stage timeouts) are treated as transient so that bounded retry, not an
// immediate dead-letter, decides their fate.
func ClassOf(err error) Class {
	var se *StageError
	if errors.As(err, &se) {
		return se.Class
	}
	return ClassTransient
}

// IsPermanent reports whether err is classified permanent.
func IsPermanent(err error) bool {
	return ClassOf(err) == ClassPermanent
}

// IsTransient reports whether err is classified transient.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// GetCode extracts the error code from a StageError, or "" otherwise.
func GetCode(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Package errs provides the discriminated error kinds surfaced by every
// engine's public operations. Internal transient errors may still unwind via
// plain wrapped errors; anything crossing a public method boundary is an
// *Error with a Kind a caller can switch on.
package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates the error categories engines report to callers.
type Kind string

const (
	Validation Kind = "validation" // bad input, never retried
	NotFound   Kind = "not_found"  // entity absent, terminal for the operation
	Conflict   Kind = "conflict"   // state-machine violation, caller may refresh and retry
	Transient  Kind = "transient"  // timeouts/5xx/429, surfaced only if retries exhausted
	Fatal      Kind = "fatal"      // store/cache unreachable, escrow inconsistency
)

// Error is the typed outcome every public engine method returns on failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error wrapping cause, or returns nil if cause is nil.
func Wrap(kind Kind, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func Validationf(format string, args ...interface{}) *Error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...interface{}) *Error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

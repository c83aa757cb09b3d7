// Package fault defines the error taxonomy shared by every pipeline stage.
//
// Kinds:
//   - Configuration: invalid or out-of-range parameters. Fatal, never retried.
//   - NotFound: a requested hash is absent from the store. Callers fall back to COMPUTE.
//   - Integrity: a stored artifact failed a structural check on load. Fatal.
//   - ExternalEngine: the simulation engine failed or was interrupted.
//
// Errors that carry no Kind (plain wrapped I/O errors) are considered transient
// and may be retried a bounded number of times by the caller.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes pipeline errors.
type Kind string

const (
	// Configuration indicates invalid or out-of-range parameters.
	Configuration Kind = "CONFIGURATION"

	// NotFound indicates the requested hash is absent from the store.
	NotFound Kind = "NOT_FOUND"

	// Integrity indicates a stored artifact failed a structural check.
	Integrity Kind = "INTEGRITY"

	// ExternalEngine indicates the simulation engine failed or was interrupted.
	ExternalEngine Kind = "EXTERNAL_ENGINE"
)

// Error is a categorized pipeline error.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op names the operation that failed (e.g. "scaling.Scale").
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around err.
func Wrap(kind Kind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// Configf is shorthand for New(Configuration, ...).
func Configf(op, format string, args ...any) *Error {
	return New(Configuration, op, format, args...)
}

// Integrityf is shorthand for New(Integrity, ...).
func Integrityf(op, format string, args ...any) *Error {
	return New(Integrity, op, format, args...)
}

// KindOf returns the Kind of err, or "" if err is not (and does not wrap) an *Error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return Is(err, NotFound)
}

// Retryable reports whether err is a transient failure worth retrying.
// Categorized errors are deterministic and never retryable.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == ""
}

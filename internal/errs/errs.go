// Package errs defines the error kinds used across the pipeline and job
// runtime: Validation, DataAvailability, Computation, Transport, Internal.
// These are kinds, not types — a single Error struct carries a Kind field,
// so callers match on errors.As and compare Kind rather than maintaining a
// parallel type hierarchy.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error per the error handling design.
type Kind string

const (
	// KindValidation covers bad enums, missing dates, duplicate names,
	// invalid factor code. Surfaced immediately on admission.
	KindValidation Kind = "validation"
	// KindDataAvailability covers empty factor series, empty market
	// windows, missing symbol universe.
	KindDataAvailability Kind = "data_availability"
	// KindComputation covers exceptions inside operator evaluation or
	// statistics; carries position context.
	KindComputation Kind = "computation"
	// KindTransport covers transient document-store or vendor errors.
	KindTransport Kind = "transport"
	// KindInternal covers invariant violations, e.g. a bundle write that
	// did not commit atomically with the task status transition.
	KindInternal Kind = "internal"
)

// Error is a kinded, wrapped error.
type Error struct {
	Kind     Kind
	Message  string
	Position string // non-empty only for KindComputation: "line:col" or a frame description
	Err      error  // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Position != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Kind, e.Message, e.Position)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, errs.Validation("")) style checks, though matching on
// Kind via errors.As is preferred for inspecting Message/Position.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Validation builds a Validation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// DataAvailability builds a DataAvailability error.
func DataAvailability(format string, args ...any) *Error {
	return &Error{Kind: KindDataAvailability, Message: fmt.Sprintf(format, args...)}
}

// Computation builds a Computation error carrying position context.
func Computation(position string, format string, args ...any) *Error {
	return &Error{Kind: KindComputation, Position: position, Message: fmt.Sprintf(format, args...)}
}

// Transport wraps a transient transport-layer error.
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

// Internal builds an Internal invariant-violation error.
func Internal(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Package errs defines the core's error kinds and their fatal/non-fatal
// propagation policy.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the core's recognized error conditions.
type Kind string

const (
	// OutOfOrderEvent means strict monotonic event time was violated. Fatal.
	OutOfOrderEvent Kind = "out_of_order_event"
	// UnknownSymbol means an order referenced a symbol with no book. Non-fatal.
	UnknownSymbol Kind = "unknown_symbol"
	// InvalidOrder means a malformed order was submitted. Non-fatal.
	InvalidOrder Kind = "invalid_order"
	// InsufficientLiquidity means a FOK order could not fully fill. Non-fatal.
	InsufficientLiquidity Kind = "insufficient_liquidity"
	// GuardBlocked means the book guard vetoed a submit. Non-fatal.
	GuardBlocked Kind = "guard_blocked"
	// ResourceExhausted means an adapter exceeded its in-memory sort budget. Fatal.
	ResourceExhausted Kind = "resource_exhausted"
	// SchemaError means an adapter row was missing a required column. Fatal.
	SchemaError Kind = "schema_error"
)

// Fatal reports whether errors of this kind terminate the engine run
// rather than being reported to the strategy as a Rejection.
func (k Kind) Fatal() bool {
	switch k {
	case OutOfOrderEvent, ResourceExhausted, SchemaError:
		return true
	default:
		return false
	}
}

// CoreError is the error type returned/reported for all recognized
// error conditions. It wraps an optional cause for stack attribution.
type CoreError struct {
	kind    Kind
	message string
	cause   error
}

// New creates a CoreError of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *CoreError {
	return &CoreError{kind: kind, message: fmt.Sprintf(format, args...), cause: errors.New(fmt.Sprintf(format, args...))}
}

// Wrap creates a CoreError of the given kind wrapping cause, preserving its
// stack trace when cause already carries one.
func Wrap(kind Kind, cause error, format string, args ...any) *CoreError {
	msg := fmt.Sprintf(format, args...)
	return &CoreError{kind: kind, message: msg, cause: errors.Wrap(cause, msg)}
}

// Kind returns the error's kind.
func (e *CoreError) Kind() Kind { return e.kind }

// Fatal reports whether this error should terminate the run.
func (e *CoreError) Fatal() bool { return e.kind.Fatal() }

func (e *CoreError) Error() string { return e.message }

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *CoreError) Unwrap() error { return e.cause }

// StackTrace implements the logger's StackTracer interface when the wrapped
// cause carries one (github.com/pkg/errors convention).
func (e *CoreError) StackTrace() errors.StackTrace {
	type stackTracer interface{ StackTrace() errors.StackTrace }
	if st, ok := e.cause.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

// StackTracer matches the github.com/pkg/errors convention so the logger
// package can pull a stack trace out of any error that carries one.
type StackTracer interface {
	StackTrace() errors.StackTrace
}

// Is reports whether err is a CoreError of the given kind.
func Is(err error, kind Kind) bool {
	ce, ok := err.(*CoreError)
	if !ok {
		return false
	}
	return ce.kind == kind
}

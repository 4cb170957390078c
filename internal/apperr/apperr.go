// Package apperr defines the error taxonomy shared by every command and
// report in the ledger core. Business code returns a *Error wrapping a Kind;
// the web layer maps Kind to an HTTP status in one place.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error categories the command envelope
// and reports can produce.
type Kind string

const (
	Validation           Kind = "VALIDATION"
	Unbalanced           Kind = "UNBALANCED"
	Backdated            Kind = "BACKDATED"
	InsufficientStock    Kind = "INSUFFICIENT_STOCK"
	PeriodClosed         Kind = "PERIOD_CLOSED"
	InvalidState         Kind = "INVALID_STATE"
	IdempotencyConflict  Kind = "IDEMPOTENCY_KEY_CONFLICT"
	NotFound             Kind = "NOT_FOUND"
	Conflict             Kind = "CONFLICT"
	Internal             Kind = "INTERNAL"
)

// Error is a business-rule or validation failure tagged with a Kind so the
// web layer and the idempotency store can translate it without string
// matching. Fields is an optional payload (e.g. {closedThrough, attempted}
// for PeriodClosed) echoed back to the caller.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithFields attaches structured payload fields and returns the same error
// for chaining at the call site.
func (e *Error) WithFields(fields map[string]any) *Error {
	e.Fields = fields
	return e
}

// KindOf extracts the Kind from err, defaulting to Internal for anything not
// produced by this package.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// FieldsOf extracts the Fields payload from err, or nil.
func FieldsOf(err error) map[string]any {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}

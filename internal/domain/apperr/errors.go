// Package apperr defines the error kinds surfaced by the approval core.
// Every error is scoped to a single request; none is fatal to the process.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindAuthorization   Kind = "authorization"
	KindConflict        Kind = "conflict"
	KindExternalService Kind = "external_service"
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// Error carries a stable kind and a descriptive reason
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports missing or invalid input
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent rule, expense, user or receipt
func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf("%s %s not found", what, id)}
}

// Unauthorized reports an actor that is not entitled to act or view
func Unauthorized(reason string) *Error {
	return &Error{Kind: KindAuthorization, Reason: reason}
}

// Conflict reports a concurrent modification detected during an atomic update
func Conflict(reason string) *Error {
	return &Error{Kind: KindConflict, Reason: reason}
}

// External wraps a failure of an external collaborator
func External(service string, err error) *Error {
	return &Error{Kind: KindExternalService, Reason: service + " call failed", Err: err}
}

// KindOf returns the kind of err, or an empty kind if err is not an *Error
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Reason returns the caller-facing reason of err
func Reason(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return err.Error()
}

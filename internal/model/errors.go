// Package model defines the domain types shared across the timeline service.
package model

import "fmt"

// ErrorKind classifies an error along the lines callers need to act on:
// which HTTP status to surface, whether to retry, whether to log loudly.
type ErrorKind string

const (
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindNotFound        ErrorKind = "not_found"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindConflict        ErrorKind = "conflict"
	KindUnavailable     ErrorKind = "unavailable"
	KindInternal        ErrorKind = "internal"
)

// Error is the service's standard error shape. It carries an ErrorKind so
// HTTP handlers can map it to a status code without string-matching.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error // wrapped cause, optional
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func NewInvalidArgument(msg string) *Error          { return newErr(KindInvalidArgument, msg, nil) }
func NewNotFound(msg string) *Error                 { return newErr(KindNotFound, msg, nil) }
func NewUnauthorized(msg string) *Error             { return newErr(KindUnauthorized, msg, nil) }
func NewConflict(msg string) *Error                 { return newErr(KindConflict, msg, nil) }
func NewUnavailable(msg string, cause error) *Error { return newErr(KindUnavailable, msg, cause) }
func NewInternal(msg string, cause error) *Error    { return newErr(KindInternal, msg, cause) }

// KindOf extracts the ErrorKind from err, defaulting to KindInternal when
// err is not one of our *Error values (or is nil, which should not happen
// on this path but is handled defensively at the boundary only).
func KindOf(err error) ErrorKind {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	}
	if e == nil {
		return KindInternal
	}
	return e.Kind
}

// Package apperr defines the error kinds shared by the hall service, the
// HTTP API and the operator console.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport and for operator feedback.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindTransport  Kind = "transport"
	KindRollback   Kind = "rollback"
	KindInternal   Kind = "internal"

	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
)

var (
	// ErrUnauthorized is returned for missing or expired operator credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the admin secret is missing or wrong.
	ErrForbidden = errors.New("admin secret required")
)

// ValidationError reports malformed input. Nothing has been mutated.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports a request that is well formed but illegal in the
// current state, such as starting a session on an occupied station.
type ConflictError struct {
	Reason string
	Err    error
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() error { return e.Err }

// NotFoundError reports a missing station or session.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// TransportError reports that the authoritative store could not be
// reached or did not answer in time.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RollbackError reports that an optimistic local change was undone
// because the authoritative store rejected it.
type RollbackError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%s on session %s rolled back: %v", e.Op, e.SessionID, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// Validation builds a ValidationError.
func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Conflict builds a ConflictError wrapping cause.
func Conflict(cause error, format string, args ...any) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...), Err: cause}
}

// NotFound builds a NotFoundError.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Transport builds a TransportError.
func Transport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// Rollback builds a RollbackError.
func Rollback(op, sessionID string, err error) error {
	return &RollbackError{Op: op, SessionID: sessionID, Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

func IsRollback(err error) bool {
	var target *RollbackError
	return errors.As(err, &target)
}

// KindOf returns the kind of err. Rollback is checked first because a
// RollbackError usually wraps the conflict that caused it.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case IsRollback(err):
		return KindRollback
	case IsValidation(err):
		return KindValidation
	case IsNotFound(err):
		return KindNotFound
	case IsConflict(err):
		return KindConflict
	case IsTransport(err):
		return KindTransport
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}

// remoteError carries the message received over the wire while still
// matching the typed error it wraps.
type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Unwrap() error { return e.err }

// FromKind rebuilds a typed error from a kind and message received over
// the wire. The message is preserved verbatim.
func FromKind(kind Kind, message string) error {
	var err error
	switch kind {
	case KindValidation:
		err = &ValidationError{Reason: message}
	case KindConflict:
		err = &ConflictError{Reason: message}
	case KindNotFound:
		err = &NotFoundError{Resource: "record", ID: message}
	case KindTransport:
		err = &TransportError{Op: "remote", Err: errors.New(message)}
	case KindUnauthorized:
		err = ErrUnauthorized
	case KindForbidden:
		err = ErrForbidden
	default:
		return errors.New(message)
	}
	return &remoteError{msg: message, err: err}
}

package claims

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport boundary can map it to a status code.
type Kind string

// Error kinds.
const (
	KindUnauthenticated Kind = "unauthenticated" // missing or invalid credential
	KindForbidden       Kind = "forbidden"       // authenticated but not entitled
	KindNotFound        Kind = "not_found"       // target claim does not exist
	KindValidation      Kind = "validation"      // malformed or incomplete input
	KindConflict        Kind = "conflict"        // illegal status transition
	KindTooLarge        Kind = "too_large"       // request body over the configured limit
	KindInternal        Kind = "internal"        // persistence or unexpected failure
)

// Sentinels for errors.Is. Any *Error matches the sentinel of the same Kind.
var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "not authorized"}
	ErrForbidden       = &Error{Kind: KindForbidden, Message: "access denied"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "claim not found"}
	ErrValidation      = &Error{Kind: KindValidation, Message: "invalid request"}
	ErrConflict        = &Error{Kind: KindConflict, Message: "conflict"}
	ErrTooLarge        = &Error{Kind: KindTooLarge, Message: "request body too large"}
	ErrInternal        = &Error{Kind: KindInternal, Message: "server error"}
)

// Error is the typed failure returned by every Service operation.
type Error struct {
	Kind    Kind
	Field   string // offending input field, for validation errors
	Message string
	Err     error // underlying cause; never shown to callers
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Public returns the message that is safe to show to a caller.
func (e *Error) Public() string {
	if e.Kind == KindInternal {
		return ErrInternal.Message
	}
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

func unauthenticated(err error) *Error {
	return &Error{Kind: KindUnauthenticated, Message: ErrUnauthenticated.Message, Err: err}
}

func forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func notFound(id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("claim %s not found", id)}
}

// invalid builds a validation error for field.
func invalid(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

func conflict(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: err}
}

// TooLarge marks a body read that hit the upload limit. Transport code wraps
// its size-limited readers with it so the service can tell it from a storage failure.
func TooLarge(err error) error {
	return &Error{Kind: KindTooLarge, Message: ErrTooLarge.Message, Err: err}
}

func internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf extracts the Kind from err. Untyped errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError returns err as an *Error, wrapping untyped errors as internal.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internal("unexpected failure", err)
}

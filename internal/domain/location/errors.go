package location

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error category. Handlers map kinds to HTTP
// status codes and OperationOutcome issue codes.
type Kind string

const (
	KindNotFound    Kind = "not-found"
	KindInvalidData Kind = "invalid-data"
	KindValidation  Kind = "validation-error"
	KindRemoteFetch Kind = "remote-fetch-error"
	KindGeocoding   Kind = "geocoding-error"
	KindStore       Kind = "store-error"
	KindDuplicate   Kind = "already-exists"
)

// Error carries a kind alongside a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a typed error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a typed error wrapping an underlying cause.
func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from err, or KindStore for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsDuplicate reports whether err signals a unique-constraint collision on
// the external identifier.
func IsDuplicate(err error) bool { return IsKind(err, KindDuplicate) }

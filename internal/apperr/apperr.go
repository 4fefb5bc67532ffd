// Package apperr defines the error kinds surfaced by SignDrop operations.
// Every error returned from a service wraps exactly one of the sentinel kinds
// below, so callers can match with errors.Is and the HTTP layer can map the
// kind to a status code.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation reports malformed or missing input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound reports a missing resource or one the caller may not see.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports a caller lacking the required relationship.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict reports a state machine violation.
	ErrConflict = errors.New("conflict")
	// ErrStorage reports a durable read or write failure.
	ErrStorage = errors.New("storage error")
	// ErrUnauthenticated reports a missing or invalid caller identity.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Kind is the stable, machine readable name of an error kind.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindStorage         Kind = "storage"
	KindUnauthenticated Kind = "unauthenticated"
	KindInternal        Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrConflict, KindConflict},
	{ErrStorage, KindStorage},
	{ErrUnauthenticated, KindUnauthenticated},
}

// Validation returns an ErrValidation with a formatted message.
func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

// NotFound returns an ErrNotFound with a formatted message.
func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

// Forbidden returns an ErrForbidden with a formatted message.
func Forbidden(format string, args ...any) error {
	return wrap(ErrForbidden, format, args...)
}

// Conflict returns an ErrConflict with a formatted message.
func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

// Unauthenticated returns an ErrUnauthenticated with a formatted message.
func Unauthenticated(format string, args ...any) error {
	return wrap(ErrUnauthenticated, format, args...)
}

// Storage wraps a storage backend failure so it carries both ErrStorage and
// the original cause.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

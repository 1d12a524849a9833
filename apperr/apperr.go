// Package apperr holds the error kinds shared by the lending core and its callers.
//
// Callers wrap one of the sentinels with context (fmt.Errorf("...: %w", apperr.ErrNotFound))
// and classify with errors.Is or Kind.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a user, book or order ID does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated covers a missing, malformed, expired or otherwise invalid token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is returned when an authenticated caller may not touch the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when the order's state forbids the requested transition
	// or a unique field is already taken.
	ErrConflict = errors.New("conflict")

	// ErrDependency wraps store and notification I/O failures.
	ErrDependency = errors.New("dependency failure")

	// ErrInvalid is returned for malformed input (empty book list, unknown book in a renewal).
	ErrInvalid = errors.New("invalid argument")
)

// Kind returns the sentinel err is classified under, or nil when it matches none.
func Kind(err error) error {
	for _, k := range []error{ErrNotFound, ErrUnauthenticated, ErrForbidden, ErrConflict, ErrInvalid, ErrDependency} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

func NotFound(what, id string) error {
	return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
}

func Conflict(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConflict)
}

func Invalid(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrInvalid)
}

// Dependency marks err as an I/O failure of op while keeping the original cause in the chain.
func Dependency(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}

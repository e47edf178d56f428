package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Update and Delete methods when the record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a uniqueness constraint would be violated.
	ErrConflict = errors.New("record already exists")

	// ErrReadOnly is returned by every write while the store is in maintenance mode.
	ErrReadOnly = errors.New("operation denied: application is in read-only mode")

	// ErrUnavailable wraps backend connectivity failures.
	ErrUnavailable = errors.New("store unavailable")
)

// notFound wraps ErrNotFound with the collection and ID that were missing.
func notFound(c Collection, id fmt.Stringer) error {
	return fmt.Errorf("%s %s: %w", c, id, ErrNotFound)
}

// NotFound is notFound for backends outside this package.
func NotFound(c Collection, id fmt.Stringer) error {
	return notFound(c, id)
}

// Unavailable marks err as a connectivity failure.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Package storage holds the error sentinels shared by every persistence
// implementation and the domain services that interpret them. It sits below
// both so neither has to import the other.
package storage

import "errors"

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a uniqueness constraint fails
	ErrDuplicate = errors.New("duplicate entry")

	// ErrForeignKeyViolation is returned when a foreign key constraint fails
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrBusy is returned for transient storage contention (lock or statement
	// timeout); callers retry by leaving the triggering message unacknowledged
	ErrBusy = errors.New("storage busy")

	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
)

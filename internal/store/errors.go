package store

import "errors"

var (
	// ErrNotFound is returned when an id is unknown. Callers must not
	// retry on it.
	ErrNotFound = errors.New("not found")

	// ErrStorageFailure wraps I/O failures and exhausted lock retries.
	ErrStorageFailure = errors.New("storage failure")
)

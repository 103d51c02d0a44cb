// Package store persists users, books, comments and access grants in
// DynamoDB and exposes them behind narrow interfaces the service and
// route layers consume.
package store

import "errors"

var (
	// ErrNotFound means the requested entity does not exist
	ErrNotFound = errors.New("entity not found")

	// ErrConflict means a unique-key condition failed (duplicate id,
	// email or ISBN)
	ErrConflict = errors.New("duplicate key conflict")

	// ErrVersionConflict means a conditional write lost a race and the
	// caller should re-read and retry
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnavailable means the backing store could not be reached;
	// surfaced to callers as a retryable server error
	ErrUnavailable = errors.New("store unavailable")
)

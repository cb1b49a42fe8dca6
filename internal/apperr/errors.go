// Package apperr holds the sentinel errors services return and handlers
// translate to status codes.
package apperr

import "errors"

var (
	// ErrNotFound is returned when a record does not exist in the
	// caller's business.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would duplicate a unique value.
	ErrConflict = errors.New("already exists")

	// ErrForbidden is returned when the actor may not touch the record.
	ErrForbidden = errors.New("forbidden")
)

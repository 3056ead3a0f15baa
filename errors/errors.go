// Package errors holds the sentinel errors shared by storage backends and
// providers. Callers compare with the standard library errors.Is.
package errors

import "errors"

var (
	// ErrNotFound indicates that a requested record was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailable indicates that an external dependency could not be reached
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrClosed indicates use of a store after Close
	ErrClosed = errors.New("store closed")
)

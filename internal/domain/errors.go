package domain

import "errors"

var (
	// ErrNotFound marks an expected miss (unknown or expired session,
	// unknown student, unknown verification reference).
	ErrNotFound = errors.New("not found")

	// ErrValidation marks rejected input. Handlers map it to 400.
	ErrValidation = errors.New("validation error")

	// ErrBatchFailed is returned by RunBatch when not a single item
	// produced an output document.
	ErrBatchFailed = errors.New("batch failed")
)

package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the resource is in a state that forbids the request.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock indicates a request exceeds the available quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrency indicates a lost optimistic update or serialization failure.
	ErrConcurrency = errors.New("concurrent modification")
)

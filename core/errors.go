package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates caller-supplied data was malformed.
	// Never retried; the caller must fix the request.
	ErrValidation = errors.New("validation error")

	// ErrProviderUnavailable indicates a transient upstream failure.
	// Callers may retry with bounded backoff.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrImmutable indicates an attempted mutation of an append-only record.
	ErrImmutable = errors.New("record is immutable")

	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
)

// DimensionMismatchError indicates a vector whose length does not match the
// configured embedding dimension. This is a fatal integration error: it means
// the embedding provider's contract changed, and must never be coerced.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

// NewDimensionMismatch builds a DimensionMismatchError with an optional cause.
func NewDimensionMismatch(expected, actual int, cause error) *DimensionMismatchError {
	return &DimensionMismatchError{Expected: expected, Actual: actual, cause: cause}
}

// SafetyServiceError indicates the safety provider rejected the scan request
// itself (malformed request, bad checks). This is a caller bug, not provider
// unavailability, so it wraps ErrValidation and propagates to the caller.
type SafetyServiceError struct {
	StatusCode int
	Message    string
}

func (e *SafetyServiceError) Error() string {
	return fmt.Sprintf("safety service rejected request (status %d): %s", e.StatusCode, e.Message)
}

func (e *SafetyServiceError) Unwrap() error { return ErrValidation }

// Package errs defines the error taxonomy shared across the hybrid storage
// engine core. Every fallible operation in the core returns one of these
// kinds rather than panicking or using exceptions for control flow.
package errs

import "fmt"

// DimensionMismatch signals a vector operation against the wrong shape.
type DimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// VectorNotFound is an internal bug guard: a referenced node id was absent
// from the vector store. It should never surface in correct flows.
type VectorNotFound struct {
	ID int64
}

func (e *VectorNotFound) Error() string {
	return fmt.Sprintf("vector not found: id=%d", e.ID)
}

// EmptyIndex is returned when search is attempted against an index with no
// data.
type EmptyIndex struct{}

func (e *EmptyIndex) Error() string { return "search on empty index" }

// InvalidSearchParams signals k <= 0 or ef < k. A k larger than the index
// is not rejected: the search returns as many results as it finds.
type InvalidSearchParams struct {
	K  int
	EF int
}

func (e *InvalidSearchParams) Error() string {
	return fmt.Sprintf("invalid search params: k=%d ef=%d", e.K, e.EF)
}

// InvalidVector signals a non-finite value (NaN, +/-Inf) in a vector.
type InvalidVector struct {
	Reason string
}

func (e *InvalidVector) Error() string {
	if e.Reason == "" {
		return "invalid vector: contains non-finite value"
	}
	return "invalid vector: " + e.Reason
}

// InvalidBatchSize signals a batch that is zero-length or exceeds a limit.
type InvalidBatchSize struct {
	N int
}

func (e *InvalidBatchSize) Error() string {
	return fmt.Sprintf("invalid batch size: %d", e.N)
}

// DimensionLimitExceeded signals a vector dimension beyond the configured
// maximum.
type DimensionLimitExceeded struct {
	Dimension int
	Max       int
}

func (e *DimensionLimitExceeded) Error() string {
	return fmt.Sprintf("dimension %d exceeds configured maximum %d", e.Dimension, e.Max)
}

// ConflictError signals an MVCC first-committer-wins violation.
type ConflictError struct {
	Key string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("write conflict on key %q: another transaction committed first", e.Key)
}

// Cancelled signals cooperative cancellation fired mid-operation.
type Cancelled struct {
	Op string
}

func (e *Cancelled) Error() string {
	if e.Op == "" {
		return "operation cancelled"
	}
	return fmt.Sprintf("%s cancelled", e.Op)
}

// IoError wraps a failure from the record store or filesystem.
type IoError struct {
	Cause error
}

func (e *IoError) Error() string { return fmt.Sprintf("io error: %v", e.Cause) }
func (e *IoError) Unwrap() error { return e.Cause }

// SerializationError wraps a failure decoding a persisted representation.
type SerializationError struct {
	Cause error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %v", e.Cause)
}
func (e *SerializationError) Unwrap() error { return e.Cause }

// InvalidParams signals a structural or index parameter out of its allowed
// range.
type InvalidParams struct {
	Reason string
}

func (e *InvalidParams) Error() string { return "invalid params: " + e.Reason }

// InternalError signals an unexpected bug. It aborts the current statement
// but must never crash the process.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string { return "internal error: " + e.Reason }

// Recoverable reports whether an error kind is user-recoverable (retryable
// or caller-correctable) as opposed to a structural/internal failure that
// should terminate the statement and be logged with context.
//
// This mirrors the teacher's ErrorRecoveryManager.IsRetryable classification
// but operates over the closed error-kind set instead of a registered
// per-ErrorType strategy, since the core's error kinds are fixed by spec.
func Recoverable(err error) bool {
	switch err.(type) {
	case *ConflictError, *Cancelled, *InvalidSearchParams, *InvalidVector,
		*EmptyIndex, *DimensionMismatch, *InvalidBatchSize, *DimensionLimitExceeded,
		*InvalidParams:
		return true
	case *IoError, *SerializationError, *InternalError, *VectorNotFound:
		return false
	default:
		return false
	}
}

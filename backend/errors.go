// Package backend invokes the text-generation service that interprets
// reconstructed messages and produces structured replies.
//
// This file defines sentinel errors and a classified wrapper for backend
// failures, enabling errors.Is/errors.As assertions rather than string
// matching.
package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for backend failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrUnavailable indicates the backend could not be reached
	// (connection refused, DNS failure, non-2xx response).
	ErrUnavailable = errors.New("backend unavailable")

	// ErrTimeout indicates the backend did not respond within the
	// configured bound.
	ErrTimeout = errors.New("backend timeout")

	// ErrMalformedReply indicates the backend responded but no structured
	// reply could be extracted from its output.
	ErrMalformedReply = errors.New("malformed reply")

	// ErrModelMissing indicates the configured model is not among the
	// models the backend reports as available.
	ErrModelMissing = errors.New("model not available")
)

// Error wraps an underlying failure with backend classification.
// It preserves the original error in the chain for inspection via errors.As.
type Error struct {
	// Kind is the sentinel error for classification (e.g., ErrTimeout).
	Kind error
	// Op is the operation that failed (e.g., "generate", "list_models").
	Op string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Classify returns the sentinel kind of a backend error, or nil when err
// is not a backend error. Used by callers that record failures by kind.
func Classify(err error) error {
	var berr *Error
	if errors.As(err, &berr) {
		return berr.Kind
	}
	return nil
}

// Package transport provides the persistent duplex frame connection the
// session loop drives: an ordered stream of opaque text frames in, one
// send primitive for structured records out.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// Transport is the connection boundary. Implementations deliver frames
// strictly in arrival order and serialize sent values as single frames.
type Transport interface {
	// Receive blocks until the next frame arrives, the context is
	// canceled, or the connection ends. Connection endings surface as
	// *ClosedError.
	Receive(ctx context.Context) ([]byte, error)

	// Send serializes v and transmits it as one frame.
	Send(ctx context.Context, v any) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// ClosedError indicates the connection ended while receiving.
type ClosedError struct {
	// Clean is true when the peer closed the connection normally rather
	// than the stream failing.
	Clean bool
	// Err is the underlying error.
	Err error
}

func (e *ClosedError) Error() string {
	if e.Clean {
		return fmt.Sprintf("connection closed by peer: %v", e.Err)
	}
	return fmt.Sprintf("connection lost: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ClosedError) Unwrap() error {
	return e.Err
}

// AsClosed returns the ClosedError in err's chain, or nil.
func AsClosed(err error) *ClosedError {
	var ce *ClosedError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

package backend

import (
	"context"

	"github.com/pithecene-io/relay/log"
	"github.com/pithecene-io/relay/types"
)

// Responder turns a reconstructed message into a structured reply by
// consulting the backend and extracting the reply from its text output.
//
// Stateless between calls. A failed attempt is reported upward, never
// retried here; retry policy belongs to the caller.
type Responder struct {
	client *Client
	logger *log.Logger
}

// NewResponder creates a Responder over the given client.
func NewResponder(client *Client, logger *log.Logger) *Responder {
	return &Responder{
		client: client,
		logger: logger,
	}
}

// Respond generates a structured reply for one message.
//
// Failure modes, all typed via the backend error taxonomy:
//   - ErrTimeout: backend exceeded its configured bound
//   - ErrUnavailable: backend could not be reached
//   - ErrMalformedReply: backend output held no structured record
func (r *Responder) Respond(ctx context.Context, message string) (types.Reply, error) {
	raw, err := r.client.Generate(ctx, message)
	if err != nil {
		return nil, err
	}

	reply, err := ExtractReply(raw)
	if err != nil {
		r.logger.Warn("no structured reply in backend output", map[string]any{
			"output": raw,
		})
		return nil, err
	}

	return reply, nil
}

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/relay/iox"
)

// HandshakeTimeout bounds the websocket dial handshake.
const HandshakeTimeout = 15 * time.Second

// WriteTimeout bounds a single outbound frame write.
const WriteTimeout = 10 * time.Second

// Websocket is the production Transport over a persistent websocket
// connection to one configured endpoint.
type Websocket struct {
	conn *websocket.Conn
}

// Dial connects to the endpoint. Connect failures are fatal to the
// caller; no retry happens here.
func Dial(ctx context.Context, endpoint string) (*Websocket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	if resp != nil && resp.Body != nil {
		iox.DiscardClose(resp.Body)
	}
	return &Websocket{conn: conn}, nil
}

// Receive blocks until the next frame arrives. Cancellation interrupts
// the blocked read by expiring the connection's read deadline.
func (w *Websocket) Receive(ctx context.Context) ([]byte, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = w.conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	_, data, err := w.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ClosedError{Clean: isCleanClose(err), Err: err}
	}
	return data, nil
}

// isCleanClose reports whether the peer closed the connection with a
// normal closure code.
func isCleanClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
	)
}

// Send serializes v as JSON and transmits it as one text frame.
func (w *Websocket) Send(ctx context.Context, v any) error {
	deadline := time.Now().Add(WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := w.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Close sends a normal closure frame and tears the connection down.
func (w *Websocket) Close() error {
	deadline := time.Now().Add(WriteTimeout)
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	return w.conn.Close()
}

// Verify Websocket implements the transport interface.
var _ Transport = (*Websocket)(nil)

// Package session implements the connection-scoped processing loop: it
// drives the transport, routes every inbound frame through classification
// and reassembly, and dispatches each complete message to the responder.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pithecene-io/relay/backend"
	"github.com/pithecene-io/relay/log"
	"github.com/pithecene-io/relay/metrics"
	"github.com/pithecene-io/relay/notify"
	"github.com/pithecene-io/relay/reassembly"
	"github.com/pithecene-io/relay/transcript"
	"github.com/pithecene-io/relay/transport"
	"github.com/pithecene-io/relay/types"
	"github.com/pithecene-io/relay/wire"
)

// LoopErrorKind classifies session loop failures.
type LoopErrorKind int

const (
	// LoopErrorTransport indicates the connection failed or a send did.
	LoopErrorTransport LoopErrorKind = iota
	// LoopErrorCanceled indicates context cancellation.
	LoopErrorCanceled
)

// LoopError represents a session loop failure.
type LoopError struct {
	// Kind indicates the failure class.
	Kind LoopErrorKind
	// Err is the underlying error.
	Err error
}

func (e *LoopError) Error() string {
	return e.Err.Error()
}

func (e *LoopError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if the error is a transport failure.
func IsTransportError(err error) bool {
	var loopErr *LoopError
	if errors.As(err, &loopErr) {
		return loopErr.Kind == LoopErrorTransport
	}
	return false
}

// IsCanceledError returns true if the error is due to context cancellation.
func IsCanceledError(err error) bool {
	var loopErr *LoopError
	if errors.As(err, &loopErr) {
		return loopErr.Kind == LoopErrorCanceled
	}
	return false
}

// Responder abstracts reply generation for test injection.
type Responder interface {
	Respond(ctx context.Context, message string) (types.Reply, error)
}

// Config configures a session loop.
type Config struct {
	// Transport is the connection to drive (required).
	Transport transport.Transport
	// Responder generates replies in autonomous mode (required unless Manual).
	Responder Responder
	// Meta is the session identity (required).
	Meta *types.SessionMeta
	// Logger receives session logs (required).
	Logger *log.Logger
	// Collector records session metrics. Nil disables recording.
	Collector *metrics.Collector
	// Notifier publishes message-handled events. Nil disables publication.
	Notifier notify.Notifier
	// Transcript persists the session transcript. Nil disables it.
	Transcript *transcript.Writer
	// FragmentsEnabled turns fragment reconstruction on.
	FragmentsEnabled bool
	// Manual substitutes operator-supplied replies for the responder.
	Manual bool
	// Input is the manual-mode reply source. Defaults to os.Stdin.
	Input io.Reader
	// Output is the manual-mode prompt destination. Defaults to os.Stderr.
	Output io.Writer
}

// errOperatorQuit signals the operator exit command in manual mode.
var errOperatorQuit = errors.New("operator quit")

// Loop processes one session: frames are handled strictly in arrival
// order, and at most one backend call is outstanding at any time. The
// loop owns its reassembler; teardown discards all accumulation state.
type Loop struct {
	config      *Config
	reassembler *reassembly.Reassembler
	input       *bufio.Scanner
	output      io.Writer
}

// NewLoop creates a session loop from the given config.
func NewLoop(config *Config) (*Loop, error) {
	if config.Transport == nil {
		return nil, errors.New("session loop requires a transport")
	}
	if config.Logger == nil {
		return nil, errors.New("session loop requires a logger")
	}
	if err := config.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session metadata: %w", err)
	}
	if !config.Manual && config.Responder == nil {
		return nil, errors.New("session loop requires a responder in autonomous mode")
	}

	in := config.Input
	if in == nil {
		in = os.Stdin
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	return &Loop{
		config:      config,
		reassembler: reassembly.New(config.Logger),
		input:       bufio.NewScanner(in),
		output:      out,
	}, nil
}

// Run processes frames until the connection ends or the context is
// canceled. Returns:
//   - nil: peer closed the connection normally, or the operator quit
//   - *LoopError with Kind=LoopErrorTransport: connection or send failure
//   - *LoopError with Kind=LoopErrorCanceled: context canceled
//
// Per-message failures (backend errors, invalid operator input) are
// logged and dropped; the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &LoopError{Kind: LoopErrorCanceled, Err: ctx.Err()}
		default:
		}

		raw, err := l.config.Transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &LoopError{Kind: LoopErrorCanceled, Err: err}
			}
			if ce := transport.AsClosed(err); ce != nil && ce.Clean {
				l.config.Logger.Info("connection closed by peer", nil)
				return nil
			}
			l.config.Logger.Error("connection lost", map[string]any{
				"error": err.Error(),
			})
			return &LoopError{Kind: LoopErrorTransport, Err: err}
		}

		message, ok := l.processFrame(raw)
		if !ok {
			continue
		}

		l.config.Logger.Info("processing message", map[string]any{
			"message": truncate(message, 200),
		})

		if l.config.Manual {
			err = l.dispatchManual(ctx, message)
		} else {
			err = l.dispatch(ctx, message)
		}
		if err != nil {
			if errors.Is(err, errOperatorQuit) {
				l.config.Logger.Info("operator exit", nil)
				return nil
			}
			return err
		}
	}
}

// processFrame classifies one frame and routes it. Returns the message
// text to dispatch, or ok=false when the frame produced no message
// (fragment still accumulating, or empty reconstruction).
func (l *Loop) processFrame(raw []byte) (string, bool) {
	l.config.Collector.IncFramesReceived()
	l.record(transcript.DirectionInbound, string(raw))

	c := wire.Classify(raw, l.config.FragmentsEnabled)
	switch c.Kind {
	case types.FramePlainText:
		l.config.Collector.IncPlainTextFrames()
		l.config.Logger.Debug("plain text frame", nil)
		return c.Content, true

	case types.FrameStructured:
		l.config.Collector.IncStructuredFrames()
		return c.Content, true

	case types.FrameFragment:
		l.config.Collector.IncFragmentFrames()
		res := l.reassembler.Ingest(c.Fragment)
		if res.AmbiguousTotal {
			l.config.Collector.IncAmbiguousTotals()
		}
		switch res.Status {
		case reassembly.Waiting:
			l.config.Logger.Debug("fragment stored", map[string]any{
				"group_key": res.GroupKey,
				"received":  res.Received,
				"total":     res.DeclaredTotal,
			})
			return "", false
		case reassembly.Empty:
			l.config.Collector.IncGroupsCompleted()
			l.config.Collector.IncEmptyReconstructions()
			l.config.Logger.Warn("group completed without content", map[string]any{
				"group_key": res.GroupKey,
				"fragments": res.Received,
			})
			return "", false
		case reassembly.Reconstructed:
			l.config.Collector.IncGroupsCompleted()
			return res.Message, true
		}
	}
	return "", false
}

// dispatch consults the responder and forwards its reply over the
// transport. Backend failures drop the message and keep the loop alive;
// send failures are transport errors and fatal.
func (l *Loop) dispatch(ctx context.Context, message string) error {
	reply, err := l.config.Responder.Respond(ctx, message)
	if err != nil {
		l.recordBackendFailure(err)
		l.config.Collector.IncMessagesDropped()
		l.config.Logger.Error("responder failed, message dropped", map[string]any{
			"error":   err.Error(),
			"message": truncate(message, 200),
		})
		return nil
	}

	if err := l.send(ctx, reply); err != nil {
		return err
	}
	l.config.Collector.IncRepliesSent()
	l.publish(ctx, message, reply, "auto")
	return nil
}

// dispatchManual displays the message and reads one operator-supplied
// reply. Invalid input is reported and the loop continues without
// sending; the exit command returns errOperatorQuit.
func (l *Loop) dispatchManual(ctx context.Context, message string) error {
	divider := strings.Repeat("=", 70)
	fmt.Fprintf(l.output, "\n%s\nMESSAGE RECEIVED:\n%s\n\nEnter JSON reply (or 'quit'): ", divider, message)

	if !l.input.Scan() {
		if err := l.input.Err(); err != nil {
			l.config.Logger.Error("manual input failed", map[string]any{
				"error": err.Error(),
			})
		}
		return errOperatorQuit
	}

	line := strings.TrimSpace(l.input.Text())
	if strings.EqualFold(line, "quit") {
		return errOperatorQuit
	}

	var reply types.Reply
	if err := json.Unmarshal([]byte(line), &reply); err != nil || reply == nil {
		l.config.Logger.Error("invalid JSON reply from operator", nil)
		return nil
	}

	if err := l.send(ctx, reply); err != nil {
		return err
	}
	l.config.Collector.IncRepliesSent()
	l.config.Collector.IncManualReplies()
	l.publish(ctx, message, reply, "manual")
	return nil
}

// send transmits one reply frame. A send failure is a transport failure.
func (l *Loop) send(ctx context.Context, reply types.Reply) error {
	encoded, err := json.Marshal(reply)
	if err != nil {
		// Reply came from a JSON parse, so this should not happen; drop
		// the message rather than the connection.
		l.config.Logger.Error("reply serialization failed", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	l.config.Logger.Info("sending reply", map[string]any{
		"reply": string(encoded),
	})
	if err := l.config.Transport.Send(ctx, reply); err != nil {
		l.config.Logger.Error("send failed", map[string]any{
			"error": err.Error(),
		})
		return &LoopError{Kind: LoopErrorTransport, Err: err}
	}
	l.record(transcript.DirectionOutbound, string(encoded))
	return nil
}

// publish emits a message-handled event to the configured notifier.
// Failures are logged and counted, never fatal.
func (l *Loop) publish(ctx context.Context, message string, reply types.Reply, mode string) {
	if l.config.Notifier == nil {
		return
	}
	event := &notify.MessageHandledEvent{
		Version:   types.Version,
		EventType: "message_handled",
		SessionID: l.config.Meta.SessionID,
		Endpoint:  l.config.Meta.Endpoint,
		Mode:      mode,
		Message:   message,
		Reply:     reply,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := l.config.Notifier.Publish(ctx, event); err != nil {
		l.config.Collector.IncNotifyFailures()
		l.config.Logger.Warn("notify publish failed", map[string]any{
			"error": err.Error(),
		})
	}
}

// record appends one transcript entry when a transcript is configured.
func (l *Loop) record(direction transcript.Direction, body string) {
	if l.config.Transcript == nil {
		return
	}
	if !l.config.Transcript.Append(transcript.NewRecord(l.config.Meta.SessionID, direction, body)) {
		l.config.Collector.IncTranscriptFailures()
	}
}

// recordBackendFailure counts a responder failure by kind.
func (l *Loop) recordBackendFailure(err error) {
	switch backend.Classify(err) {
	case backend.ErrTimeout:
		l.config.Collector.IncBackendTimeouts()
	case backend.ErrMalformedReply:
		l.config.Collector.IncMalformedReplies()
	default:
		l.config.Collector.IncBackendUnavailable()
	}
}

// truncate shortens text for log display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

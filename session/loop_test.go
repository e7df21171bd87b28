package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/relay/backend"
	"github.com/pithecene-io/relay/log"
	"github.com/pithecene-io/relay/metrics"
	"github.com/pithecene-io/relay/notify"
	"github.com/pithecene-io/relay/transport"
	"github.com/pithecene-io/relay/types"
)

// StubTransport replays queued frames and records sent replies.
type StubTransport struct {
	frames [][]byte
	// finalErr is returned once the frame queue drains.
	finalErr error
	sent     []any
	// sendErr, when set, is returned from every Send call.
	sendErr error
}

func (s *StubTransport) Receive(_ context.Context) ([]byte, error) {
	if len(s.frames) == 0 {
		if s.finalErr != nil {
			return nil, s.finalErr
		}
		return nil, &transport.ClosedError{Clean: true, Err: errors.New("normal closure")}
	}
	frame := s.frames[0]
	s.frames = s.frames[1:]
	return frame, nil
}

func (s *StubTransport) Send(_ context.Context, v any) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, v)
	return nil
}

func (s *StubTransport) Close() error { return nil }

// StubResponder returns a fixed reply and records prompts.
type StubResponder struct {
	reply    types.Reply
	err      error
	messages []string
}

func (s *StubResponder) Respond(_ context.Context, message string) (types.Reply, error) {
	s.messages = append(s.messages, message)
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func testLogger() *log.Logger {
	meta := &types.SessionMeta{SessionID: "test-session", Endpoint: "ws://test"}
	return log.NewLogger(meta, zapcore.ErrorLevel).WithOutput(io.Discard)
}

func testMeta() *types.SessionMeta {
	return &types.SessionMeta{SessionID: "sess-001", Endpoint: "ws://test", Model: "m"}
}

func newTestLoop(t *testing.T, config *Config) *Loop {
	t.Helper()
	if config.Meta == nil {
		config.Meta = testMeta()
	}
	if config.Logger == nil {
		config.Logger = testLogger()
	}
	if config.Collector == nil {
		config.Collector = metrics.NewCollector("sess-001", "ws://test", "m", "auto")
	}
	loop, err := NewLoop(config)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return loop
}

func TestNewLoop_Validation(t *testing.T) {
	base := func() *Config {
		return &Config{
			Transport: &StubTransport{},
			Responder: &StubResponder{reply: types.Reply{"ok": true}},
			Meta:      testMeta(),
			Logger:    testLogger(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing transport", func(c *Config) { c.Transport = nil }},
		{"missing logger", func(c *Config) { c.Logger = nil }},
		{"missing meta", func(c *Config) { c.Meta = nil }},
		{"missing responder in auto mode", func(c *Config) { c.Responder = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := base()
			tt.mutate(config)
			if _, err := NewLoop(config); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("manual mode needs no responder", func(t *testing.T) {
		config := base()
		config.Responder = nil
		config.Manual = true
		if _, err := NewLoop(config); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestRun_StructuredMessageDispatched(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{[]byte(`{"message": "hello"}`)}}
	resp := &StubResponder{reply: types.Reply{"text": "hi"}}
	collector := metrics.NewCollector("sess-001", "ws://test", "m", "auto")

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		Collector:        collector,
		FragmentsEnabled: true,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(resp.messages) != 1 || resp.messages[0] != "hello" {
		t.Errorf("responder messages = %v, want [hello]", resp.messages)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(tr.sent))
	}

	s := collector.Snapshot()
	if s.FramesReceived != 1 || s.StructuredFrames != 1 || s.RepliesSent != 1 {
		t.Errorf("counters = %+v", s)
	}
}

func TestRun_PlainTextDispatched(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{[]byte("just words")}}
	resp := &StubResponder{reply: types.Reply{"ok": true}}

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		FragmentsEnabled: true,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.messages) != 1 || resp.messages[0] != "just words" {
		t.Errorf("responder messages = %v", resp.messages)
	}
}

func TestRun_FragmentsReassembledBeforeDispatch(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{
		[]byte(`{"id": "m1", "sequence": 1, "total": 3, "text": "a"}`),
		[]byte(`{"id": "m1", "sequence": 3, "total": 3, "text": "c"}`),
		[]byte(`{"id": "m1", "sequence": 2, "total": 3, "text": "b"}`),
	}}
	resp := &StubResponder{reply: types.Reply{"ok": true}}
	collector := metrics.NewCollector("sess-001", "ws://test", "m", "auto")

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		Collector:        collector,
		FragmentsEnabled: true,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(resp.messages) != 1 || resp.messages[0] != "a b c" {
		t.Errorf("responder messages = %v, want [a b c]", resp.messages)
	}

	s := collector.Snapshot()
	if s.FragmentFrames != 3 {
		t.Errorf("FragmentFrames = %d, want 3", s.FragmentFrames)
	}
	if s.GroupsCompleted != 1 {
		t.Errorf("GroupsCompleted = %d, want 1", s.GroupsCompleted)
	}
}

func TestRun_EmptyReconstructionNotDispatched(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{
		[]byte(`{"id": "m1", "sequence": 1, "total": 2, "text": ""}`),
		[]byte(`{"id": "m1", "sequence": 2, "total": 2, "text": ""}`),
	}}
	resp := &StubResponder{reply: types.Reply{"ok": true}}
	collector := metrics.NewCollector("sess-001", "ws://test", "m", "auto")

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		Collector:        collector,
		FragmentsEnabled: true,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(resp.messages) != 0 {
		t.Errorf("responder messages = %v, want none", resp.messages)
	}
	s := collector.Snapshot()
	if s.EmptyReconstructions != 1 {
		t.Errorf("EmptyReconstructions = %d, want 1", s.EmptyReconstructions)
	}
}

func TestRun_BackendFailureKeepsLoopAlive(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{
		[]byte(`{"message": "first"}`),
		[]byte(`{"message": "second"}`),
	}}
	resp := &StubResponder{err: &backend.Error{Kind: backend.ErrTimeout, Op: "generate"}}
	collector := metrics.NewCollector("sess-001", "ws://test", "m", "auto")

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		Collector:        collector,
		FragmentsEnabled: true,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v (per-message failures must not end the session)", err)
	}

	if len(resp.messages) != 2 {
		t.Errorf("responder saw %d messages, want 2", len(resp.messages))
	}
	if len(tr.sent) != 0 {
		t.Errorf("sent %d replies, want 0", len(tr.sent))
	}

	s := collector.Snapshot()
	if s.MessagesDropped != 2 {
		t.Errorf("MessagesDropped = %d, want 2", s.MessagesDropped)
	}
	if s.BackendTimeouts != 2 {
		t.Errorf("BackendTimeouts = %d, want 2", s.BackendTimeouts)
	}
}

func TestRun_SendFailureIsFatal(t *testing.T) {
	tr := &StubTransport{
		frames:  [][]byte{[]byte(`{"message": "hello"}`)},
		sendErr: errors.New("broken pipe"),
	}
	resp := &StubResponder{reply: types.Reply{"ok": true}}

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		FragmentsEnabled: true,
	})

	err := loop.Run(context.Background())
	if !IsTransportError(err) {
		t.Errorf("Run = %v, want transport error", err)
	}
}

func TestRun_UncleanCloseIsTransportError(t *testing.T) {
	tr := &StubTransport{
		finalErr: &transport.ClosedError{Clean: false, Err: errors.New("reset")},
	}
	resp := &StubResponder{reply: types.Reply{"ok": true}}

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		FragmentsEnabled: true,
	})

	err := loop.Run(context.Background())
	if !IsTransportError(err) {
		t.Errorf("Run = %v, want transport error", err)
	}
}

func TestRun_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := newTestLoop(t, &Config{
		Transport: &StubTransport{},
		Responder: &StubResponder{reply: types.Reply{"ok": true}},
	})

	err := loop.Run(ctx)
	if !IsCanceledError(err) {
		t.Errorf("Run = %v, want canceled error", err)
	}
}

func TestRun_NotifierReceivesEvents(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{[]byte(`{"message": "hello"}`)}}
	resp := &StubResponder{reply: types.Reply{"text": "hi"}}
	stub := &notify.StubNotifier{}

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		Notifier:         stub,
		FragmentsEnabled: true,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	events := stub.Published()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	e := events[0]
	if e.EventType != "message_handled" {
		t.Errorf("EventType = %q", e.EventType)
	}
	if e.Message != "hello" {
		t.Errorf("Message = %q", e.Message)
	}
	if e.Mode != "auto" {
		t.Errorf("Mode = %q, want auto", e.Mode)
	}
	if e.SessionID != "sess-001" {
		t.Errorf("SessionID = %q", e.SessionID)
	}
}

func TestRun_NotifyFailureNotFatal(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{[]byte(`{"message": "hello"}`)}}
	resp := &StubResponder{reply: types.Reply{"ok": true}}
	stub := &notify.StubNotifier{Err: errors.New("downstream down")}
	collector := metrics.NewCollector("sess-001", "ws://test", "m", "auto")

	loop := newTestLoop(t, &Config{
		Transport:        tr,
		Responder:        resp,
		Notifier:         stub,
		Collector:        collector,
		FragmentsEnabled: true,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := collector.Snapshot(); s.NotifyFailures != 1 {
		t.Errorf("NotifyFailures = %d, want 1", s.NotifyFailures)
	}
}

func TestRun_ManualMode(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{
		[]byte(`{"message": "first"}`),
		[]byte(`{"message": "second"}`),
	}}
	input := strings.NewReader(`{"answer": "yes"}` + "\n" + "quit\n")
	var output bytes.Buffer
	collector := metrics.NewCollector("sess-001", "ws://test", "m", "manual")

	loop := newTestLoop(t, &Config{
		Transport: tr,
		Collector: collector,
		Manual:    true,
		Input:     input,
		Output:    &output,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(tr.sent) != 1 {
		t.Fatalf("sent %d replies, want 1", len(tr.sent))
	}
	reply, ok := tr.sent[0].(types.Reply)
	if !ok {
		t.Fatalf("sent %T, want types.Reply", tr.sent[0])
	}
	if reply["answer"] != "yes" {
		t.Errorf("reply = %v", reply)
	}

	if !strings.Contains(output.String(), "MESSAGE RECEIVED:") {
		t.Error("output missing message banner")
	}
	if !strings.Contains(output.String(), "first") {
		t.Error("output missing message text")
	}

	s := collector.Snapshot()
	if s.ManualReplies != 1 {
		t.Errorf("ManualReplies = %d, want 1", s.ManualReplies)
	}
}

func TestRun_ManualModeInvalidJSONContinues(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{
		[]byte(`{"message": "first"}`),
		[]byte(`{"message": "second"}`),
	}}
	input := strings.NewReader("not json\n" + `{"ok": true}` + "\n")
	var output bytes.Buffer

	loop := newTestLoop(t, &Config{
		Transport: tr,
		Manual:    true,
		Input:     input,
		Output:    &output,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Errorf("sent %d replies, want 1 (invalid line skipped)", len(tr.sent))
	}
}

func TestRun_ManualModeInputEOFEndsSession(t *testing.T) {
	tr := &StubTransport{frames: [][]byte{[]byte(`{"message": "first"}`)}}

	loop := newTestLoop(t, &Config{
		Transport: tr,
		Manual:    true,
		Input:     strings.NewReader(""),
		Output:    io.Discard,
	})

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run = %v, want nil on operator input EOF", err)
	}
	if len(tr.sent) != 0 {
		t.Errorf("sent %d replies, want 0", len(tr.sent))
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("truncate = %q", got)
	}
}

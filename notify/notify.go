// Package notify defines the downstream notification boundary.
//
// Notifiers publish message-handled events to downstream systems after
// each dispatched reply. The session owns notifier lifecycle; users
// provide configuration only. Notification failures are never fatal to
// the session.
package notify

import (
	"context"
	"sync"
)

// MessageHandledEvent is the payload published after a reply is sent.
type MessageHandledEvent struct {
	Version   string `json:"version"`
	EventType string `json:"event_type"` // always "message_handled"
	SessionID string `json:"session_id"`
	Endpoint  string `json:"endpoint"`
	Mode      string `json:"mode"` // "auto" or "manual"
	Message   string `json:"message"`
	Reply     any    `json:"reply"`
	Timestamp string `json:"timestamp"` // RFC 3339 UTC
}

// Notifier publishes message-handled events to a downstream system.
type Notifier interface {
	// Publish sends one event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *MessageHandledEvent) error

	// Close releases notifier resources.
	Close() error
}

// StubNotifier records Publish calls for testing.
type StubNotifier struct {
	mu     sync.Mutex
	Events []*MessageHandledEvent
	// Err, when set, is returned from every Publish call.
	Err error
}

// Publish implements Notifier by recording the event.
func (s *StubNotifier) Publish(_ context.Context, event *MessageHandledEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.Events = append(s.Events, event)
	return nil
}

// Close implements Notifier.
func (s *StubNotifier) Close() error { return nil }

// Published returns a snapshot of the recorded events.
func (s *StubNotifier) Published() []*MessageHandledEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*MessageHandledEvent, len(s.Events))
	copy(out, s.Events)
	return out
}

// Verify StubNotifier implements the notifier interface.
var _ Notifier = (*StubNotifier)(nil)

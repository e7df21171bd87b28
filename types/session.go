package types

import "errors"

// SessionMeta identifies one transport session. Attached to every log
// entry, transcript record, and notify event produced by the session.
type SessionMeta struct {
	// SessionID is the unique identifier for this session.
	SessionID string
	// Endpoint is the remote endpoint address the session connects to.
	Endpoint string
	// Model is the backend model identifier serving the session.
	Model string
}

// Validate checks that the session metadata is usable.
func (m *SessionMeta) Validate() error {
	if m == nil {
		return errors.New("session metadata is nil")
	}
	if m.SessionID == "" {
		return errors.New("session_id must not be empty")
	}
	if m.Endpoint == "" {
		return errors.New("endpoint must not be empty")
	}
	return nil
}

// Package transcript persists a best-effort record of one session: every
// inbound message and outbound reply, appended as length-prefixed msgpack
// records to a local file.
//
// The transcript is diagnostic only. Write failures disable the sink for
// the rest of the session and never affect message processing.
package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Direction labels which way a record crossed the transport.
type Direction string

// Direction constants.
const (
	// DirectionInbound is a frame received from the remote endpoint.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound is a reply sent to the remote endpoint.
	DirectionOutbound Direction = "outbound"
)

// Record is one transcript entry.
type Record struct {
	// RecordID is a unique identifier for this entry.
	RecordID string `msgpack:"record_id"`
	// SessionID is the session this entry belongs to.
	SessionID string `msgpack:"session_id"`
	// Direction labels the transport direction.
	Direction Direction `msgpack:"direction"`
	// Ts is the entry timestamp in RFC 3339 UTC format.
	Ts string `msgpack:"ts"`
	// Body is the frame or reply text.
	Body string `msgpack:"body"`
}

// NewRecord creates a transcript record stamped with a fresh ID and the
// current time.
func NewRecord(sessionID string, direction Direction, body string) *Record {
	return &Record{
		RecordID:  uuid.NewString(),
		SessionID: sessionID,
		Direction: direction,
		Ts:        time.Now().UTC().Format(time.RFC3339Nano),
		Body:      body,
	}
}

// Package metrics provides per-session metrics collection.
//
// The Collector accumulates counters during a single session. It is a
// leaf package with no internal dependencies; the session loop records
// live and logs a Snapshot at teardown.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Inbound frames
	FramesReceived   int64
	PlainTextFrames  int64
	StructuredFrames int64
	FragmentFrames   int64

	// Reassembly
	GroupsCompleted      int64
	EmptyReconstructions int64
	AmbiguousTotals      int64

	// Dispatch
	RepliesSent     int64
	ManualReplies   int64
	MessagesDropped int64

	// Backend failures by kind
	BackendTimeouts    int64
	BackendUnavailable int64
	MalformedReplies   int64

	// Side channels
	NotifyFailures     int64
	TranscriptFailures int64

	// Dimensions (informational, set at construction)
	SessionID string
	Endpoint  string
	Model     string
	Mode      string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	framesReceived   int64
	plainTextFrames  int64
	structuredFrames int64
	fragmentFrames   int64

	groupsCompleted      int64
	emptyReconstructions int64
	ambiguousTotals      int64

	repliesSent     int64
	manualReplies   int64
	messagesDropped int64

	backendTimeouts    int64
	backendUnavailable int64
	malformedReplies   int64

	notifyFailures     int64
	transcriptFailures int64

	sessionID string
	endpoint  string
	model     string
	mode      string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(sessionID, endpoint, model, mode string) *Collector {
	return &Collector{
		sessionID: sessionID,
		endpoint:  endpoint,
		model:     model,
		mode:      mode,
	}
}

// inc increments a counter under the collector lock, tolerating a nil
// receiver.
func (c *Collector) inc(counter *int64) {
	c.mu.Lock()
	*counter++
	c.mu.Unlock()
}

// --- Inbound frames ---

// IncFramesReceived records one inbound frame of any kind.
func (c *Collector) IncFramesReceived() {
	if c == nil {
		return
	}
	c.inc(&c.framesReceived)
}

// IncPlainTextFrames records a frame that did not parse as a record.
func (c *Collector) IncPlainTextFrames() {
	if c == nil {
		return
	}
	c.inc(&c.plainTextFrames)
}

// IncStructuredFrames records a complete structured message frame.
func (c *Collector) IncStructuredFrames() {
	if c == nil {
		return
	}
	c.inc(&c.structuredFrames)
}

// IncFragmentFrames records a fragment frame.
func (c *Collector) IncFragmentFrames() {
	if c == nil {
		return
	}
	c.inc(&c.fragmentFrames)
}

// --- Reassembly ---

// IncGroupsCompleted records a fragment group completing.
func (c *Collector) IncGroupsCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.groupsCompleted)
}

// IncEmptyReconstructions records a group that completed without content.
func (c *Collector) IncEmptyReconstructions() {
	if c == nil {
		return
	}
	c.inc(&c.emptyReconstructions)
}

// IncAmbiguousTotals records a fragment disagreeing on its group's
// declared total.
func (c *Collector) IncAmbiguousTotals() {
	if c == nil {
		return
	}
	c.inc(&c.ambiguousTotals)
}

// --- Dispatch ---

// IncRepliesSent records a reply transmitted over the transport.
func (c *Collector) IncRepliesSent() {
	if c == nil {
		return
	}
	c.inc(&c.repliesSent)
}

// IncManualReplies records an operator-supplied reply.
func (c *Collector) IncManualReplies() {
	if c == nil {
		return
	}
	c.inc(&c.manualReplies)
}

// IncMessagesDropped records a message dropped after a dispatch failure.
func (c *Collector) IncMessagesDropped() {
	if c == nil {
		return
	}
	c.inc(&c.messagesDropped)
}

// --- Backend failures ---

// IncBackendTimeouts records a backend call exceeding its bound.
func (c *Collector) IncBackendTimeouts() {
	if c == nil {
		return
	}
	c.inc(&c.backendTimeouts)
}

// IncBackendUnavailable records a backend transport failure.
func (c *Collector) IncBackendUnavailable() {
	if c == nil {
		return
	}
	c.inc(&c.backendUnavailable)
}

// IncMalformedReplies records backend output with no structured reply.
func (c *Collector) IncMalformedReplies() {
	if c == nil {
		return
	}
	c.inc(&c.malformedReplies)
}

// --- Side channels ---

// IncNotifyFailures records a downstream notification failure.
func (c *Collector) IncNotifyFailures() {
	if c == nil {
		return
	}
	c.inc(&c.notifyFailures)
}

// IncTranscriptFailures records a transcript write failure.
func (c *Collector) IncTranscriptFailures() {
	if c == nil {
		return
	}
	c.inc(&c.transcriptFailures)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
// The Collector can continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		FramesReceived:   c.framesReceived,
		PlainTextFrames:  c.plainTextFrames,
		StructuredFrames: c.structuredFrames,
		FragmentFrames:   c.fragmentFrames,

		GroupsCompleted:      c.groupsCompleted,
		EmptyReconstructions: c.emptyReconstructions,
		AmbiguousTotals:      c.ambiguousTotals,

		RepliesSent:     c.repliesSent,
		ManualReplies:   c.manualReplies,
		MessagesDropped: c.messagesDropped,

		BackendTimeouts:    c.backendTimeouts,
		BackendUnavailable: c.backendUnavailable,
		MalformedReplies:   c.malformedReplies,

		NotifyFailures:     c.notifyFailures,
		TranscriptFailures: c.transcriptFailures,

		SessionID: c.sessionID,
		Endpoint:  c.endpoint,
		Model:     c.model,
		Mode:      c.mode,
	}
}

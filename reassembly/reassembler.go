// Package reassembly accumulates message fragments per group and produces
// one reconstructed message the instant a group completes.
package reassembly

import (
	"sort"
	"strings"

	"github.com/pithecene-io/relay/log"
	"github.com/pithecene-io/relay/types"
	"github.com/pithecene-io/relay/wire"
)

// Status is the tri-state outcome of ingesting one fragment.
type Status int

const (
	// Waiting means the fragment was stored and its group is still incomplete.
	Waiting Status = iota
	// Empty means the group completed but no fragment contributed content.
	Empty
	// Reconstructed means the group completed and produced a message.
	Reconstructed
)

// String returns the status name for logs.
func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Empty:
		return "empty"
	case Reconstructed:
		return "reconstructed"
	default:
		return "unknown"
	}
}

// IngestResult reports the outcome of ingesting one fragment.
type IngestResult struct {
	Status Status
	// Message is the reconstructed text, set when Status == Reconstructed.
	Message string
	// GroupKey identifies the fragment's group.
	GroupKey string
	// Received is the number of fragments the group holds after this
	// ingest. For a completed group it is the number consumed by
	// reconstruction.
	Received int
	// DeclaredTotal is the group's declared total after this ingest.
	DeclaredTotal int
	// AmbiguousTotal is set when this fragment overwrote a different,
	// previously declared non-zero total.
	AmbiguousTotal bool
}

// group is the accumulating state for one group key.
type group struct {
	fragments     []*types.Fragment
	declaredTotal int
}

// Reassembler owns per-group accumulation state for one session.
//
// Not safe for concurrent use: the session loop processes frames strictly
// in arrival order, so ingestion is single-threaded by construction. Each
// loop owns its own Reassembler; nothing is shared across connections.
type Reassembler struct {
	groups map[string]*group
	logger *log.Logger
}

// New creates an empty Reassembler.
func New(logger *log.Logger) *Reassembler {
	return &Reassembler{
		groups: make(map[string]*group),
		logger: logger,
	}
}

// Ingest stores a fragment in its group and reports whether the group is
// now complete.
//
// The group's declared total takes the fragment's value on every ingest
// (last writer wins). A group completes when its declared total is
// positive and the accumulated count reaches it; completion consumes the
// group's state atomically, so a later fragment with the same group key
// starts a fresh, empty group.
func (r *Reassembler) Ingest(frag *types.Fragment) IngestResult {
	g, ok := r.groups[frag.GroupKey]
	if !ok {
		g = &group{}
		r.groups[frag.GroupKey] = g
	}

	ambiguous := g.declaredTotal > 0 && frag.DeclaredTotal != g.declaredTotal
	if ambiguous {
		r.logger.Warn("fragment disagrees on declared total", map[string]any{
			"group_key": frag.GroupKey,
			"previous":  g.declaredTotal,
			"declared":  frag.DeclaredTotal,
		})
	}

	g.fragments = append(g.fragments, frag)
	g.declaredTotal = frag.DeclaredTotal

	if g.declaredTotal > 0 && len(g.fragments) >= g.declaredTotal {
		received := len(g.fragments)
		total := g.declaredTotal
		message := reconstruct(g.fragments)
		delete(r.groups, frag.GroupKey)

		result := IngestResult{
			GroupKey:       frag.GroupKey,
			Received:       received,
			DeclaredTotal:  total,
			AmbiguousTotal: ambiguous,
		}
		if message == "" {
			result.Status = Empty
			return result
		}
		result.Status = Reconstructed
		result.Message = message
		r.logger.Info("message reconstructed", map[string]any{
			"group_key": frag.GroupKey,
			"fragments": received,
		})
		return result
	}

	return IngestResult{
		Status:         Waiting,
		GroupKey:       frag.GroupKey,
		Received:       len(g.fragments),
		DeclaredTotal:  g.declaredTotal,
		AmbiguousTotal: ambiguous,
	}
}

// PendingGroups returns the number of incomplete groups currently held.
func (r *Reassembler) PendingGroups() int {
	return len(r.groups)
}

// PendingFragments returns the number of fragments held by an incomplete
// group, or 0 when the group does not exist.
func (r *Reassembler) PendingFragments(groupKey string) int {
	g, ok := r.groups[groupKey]
	if !ok {
		return 0
	}
	return len(g.fragments)
}

// reconstruct orders a completed group's fragments by sequence key and
// joins their content contributions with single spaces. The sort is
// stable, so fragments with equal keys keep insertion order.
func reconstruct(fragments []*types.Fragment) string {
	ordered := make([]*types.Fragment, len(fragments))
	copy(ordered, fragments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SequenceKey.Less(ordered[j].SequenceKey)
	})

	parts := make([]string, 0, len(ordered))
	for _, frag := range ordered {
		if text := wire.ExtractFragmentContent(frag.Record); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

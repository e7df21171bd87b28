package types

// FrameKind discriminates the classifier outcome for one inbound frame.
type FrameKind string

// Frame kind constants.
const (
	// FramePlainText is a frame that does not parse as a structured record.
	FramePlainText FrameKind = "plain_text"
	// FrameFragment is a structured frame carrying one piece of a larger
	// logical message.
	FrameFragment FrameKind = "fragment"
	// FrameStructured is a structured frame that is a complete message on
	// its own.
	FrameStructured FrameKind = "structured"
)

// DefaultGroupKey is the group identity assigned to fragments that carry
// no id field of their own.
const DefaultGroupKey = "default"

// Record is one parsed structured frame: a field-name to value mapping.
type Record map[string]any

// SequenceKey orders fragments within a group. The wire delivers sequence
// indicators as JSON numbers or strings; numeric keys order before string
// keys so mixed groups still sort deterministically.
type SequenceKey struct {
	Num   float64
	Str   string
	IsNum bool
}

// NumericKey returns a numeric sequence key.
func NumericKey(n float64) SequenceKey {
	return SequenceKey{Num: n, IsNum: true}
}

// StringKey returns a string sequence key.
func StringKey(s string) SequenceKey {
	return SequenceKey{Str: s}
}

// Less reports whether k orders strictly before other.
func (k SequenceKey) Less(other SequenceKey) bool {
	if k.IsNum != other.IsNum {
		return k.IsNum
	}
	if k.IsNum {
		return k.Num < other.Num
	}
	return k.Str < other.Str
}

// Fragment is one piece of a larger logical message, addressed to a group.
type Fragment struct {
	// GroupKey identifies the group this fragment belongs to.
	GroupKey string
	// SequenceKey orders this fragment within its group.
	SequenceKey SequenceKey
	// DeclaredTotal is the fragment-set size this fragment states, or 0
	// when it states none.
	DeclaredTotal int
	// Record is the full parsed record. Content extraction happens at
	// reconstruction time, not here.
	Record Record
}

// Classification is the classifier outcome for one frame.
type Classification struct {
	Kind FrameKind
	// Content is the extracted message text. Set for plain-text and
	// structured non-fragment frames; empty for fragments.
	Content string
	// Fragment is set when Kind == FrameFragment.
	Fragment *Fragment
}

// Reply is the structured record produced by the responder. No schema is
// enforced; whatever the backend returns is passed through to the transport
// as long as it parses as a well-formed record.
type Reply map[string]any

// Package wire implements frame classification for the session wire
// protocol: deciding, for each inbound frame, whether it is plain text,
// a fragment of a larger message, or a complete structured message.
package wire

import (
	"encoding/json"

	"github.com/pithecene-io/relay/types"
)

// Classify inspects one decoded frame and routes it.
//
// Decision order:
//  1. Frames that do not parse as a JSON object are plain text.
//  2. Objects that look fragmented are classified as fragments when
//     fragment reconstruction is enabled.
//  3. Everything else is a structured non-fragment message; its content is
//     the first non-empty value among the message content fields, falling
//     back to the record's JSON form.
//
// Pure function of the frame and the fragmentsEnabled switch; no side
// effects.
func Classify(raw []byte, fragmentsEnabled bool) types.Classification {
	var rec types.Record
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return types.Classification{
			Kind:    types.FramePlainText,
			Content: string(raw),
		}
	}

	if fragmentsEnabled && looksFragmented(rec) {
		return types.Classification{
			Kind:     types.FrameFragment,
			Fragment: toFragment(rec),
		}
	}

	content, ok := firstNonEmptyString(rec, messageContentPriority)
	if !ok {
		content = Stringify(rec)
	}
	return types.Classification{
		Kind:    types.FrameStructured,
		Content: content,
	}
}

// looksFragmented reports whether a record carries fragment indicators:
// a sequencing key, a declared-total key, or a timestamp paired with an
// identity key.
func looksFragmented(rec types.Record) bool {
	if hasAny(rec, fragmentIndicatorKeys) || hasAny(rec, totalIndicatorKeys) {
		return true
	}
	_, hasTimestamp := rec["timestamp"]
	return hasTimestamp && hasAny(rec, groupKeyPriority)
}

// toFragment builds a Fragment from a fragment-like record. The full
// record is retained; content extraction happens at reconstruction time.
func toFragment(rec types.Record) *types.Fragment {
	groupKey, ok := firstNonEmptyString(rec, groupKeyPriority)
	if !ok {
		groupKey = types.DefaultGroupKey
	}

	frag := &types.Fragment{
		GroupKey:    groupKey,
		SequenceKey: types.NumericKey(0),
		Record:      rec,
	}

	if v, ok := firstValue(rec, sequencePriority); ok {
		switch t := v.(type) {
		case float64:
			frag.SequenceKey = types.NumericKey(t)
		case string:
			frag.SequenceKey = types.StringKey(t)
		}
	}

	if v, ok := firstValue(rec, declaredTotalPriority); ok {
		frag.DeclaredTotal = asInt(v)
	}

	return frag
}

// ExtractFragmentContent returns the content contribution of one fragment
// record: the string form of the first content field present, falling back
// to the record's JSON form when no content field exists at all. A present
// but empty content field contributes nothing.
func ExtractFragmentContent(rec types.Record) string {
	if v, ok := firstValue(rec, fragmentContentPriority); ok {
		return Stringify(v)
	}
	return Stringify(rec)
}

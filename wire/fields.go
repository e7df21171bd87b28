package wire

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pithecene-io/relay/types"
)

// Field priority tables. Every extraction site consults one of these in
// declared order; the first usable value wins. Keeping the policy in one
// place makes it auditable and testable independently of frame parsing.
var (
	// fragmentIndicatorKeys mark a record as carrying fragment sequencing.
	fragmentIndicatorKeys = []string{"fragment", "sequence", "part", "chunk", "index"}

	// totalIndicatorKeys mark a record as declaring a fragment-set size.
	totalIndicatorKeys = []string{"total", "total_fragments", "total_parts", "count"}

	// groupKeyPriority resolves the group identity of a fragment.
	groupKeyPriority = []string{"id", "message_id"}

	// sequencePriority resolves the ordering key of a fragment.
	sequencePriority = []string{"sequence", "timestamp", "index"}

	// declaredTotalPriority resolves the declared total of a fragment group.
	declaredTotalPriority = []string{"total", "total_fragments", "count"}

	// messageContentPriority extracts text from a structured non-fragment
	// record at classification time.
	messageContentPriority = []string{"message", "text", "content"}

	// fragmentContentPriority extracts text from a fragment record at
	// reconstruction time.
	fragmentContentPriority = []string{"text", "content", "message", "data"}
)

// hasAny reports whether the record contains any of the given keys.
func hasAny(rec types.Record, keys []string) bool {
	for _, k := range keys {
		if _, ok := rec[k]; ok {
			return true
		}
	}
	return false
}

// firstValue returns the value of the first key present in the record.
func firstValue(rec types.Record, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// firstNonEmptyString returns the string form of the first key whose value
// stringifies to a non-empty result.
func firstNonEmptyString(rec types.Record, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok {
			continue
		}
		if s := Stringify(v); s != "" {
			return s, true
		}
	}
	return "", false
}

// Stringify renders a field value as text. Scalars keep their natural
// form; nested structures render as compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}

// asInt coerces a JSON field value to an int. Numbers truncate; numeric
// strings parse; anything else is 0.
func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

package backend

import (
	"encoding/json"
	"strings"

	"github.com/pithecene-io/relay/types"
)

// ExtractReply pulls a structured reply out of raw model output. Models
// wrap replies in code fences or mix them with prose, so extraction tries
// progressively looser strategies, first success wins:
//
//  1. strip code-fence markers and parse the whole cleaned text
//  2. parse the first flat brace-delimited substring
//  3. parse the first brace-delimited substring with one nesting level
//
// Returns ErrMalformedReply when no strategy yields a well-formed record.
func ExtractReply(text string) (types.Reply, error) {
	cleaned := stripFences(text)

	if reply, ok := parseReply(cleaned); ok {
		return reply, nil
	}

	for _, candidate := range braceCandidates(cleaned, 1) {
		if reply, ok := parseReply(candidate); ok {
			return reply, nil
		}
	}

	for _, candidate := range braceCandidates(cleaned, 2) {
		if reply, ok := parseReply(candidate); ok {
			return reply, nil
		}
	}

	return nil, &Error{Kind: ErrMalformedReply, Op: "extract"}
}

// stripFences removes markdown code-fence markers from model output.
func stripFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// parseReply attempts to parse text as a structured record.
func parseReply(text string) (types.Reply, bool) {
	var reply types.Reply
	if err := json.Unmarshal([]byte(text), &reply); err != nil || reply == nil {
		return nil, false
	}
	return reply, true
}

// braceCandidates scans text for non-overlapping brace-delimited substrings
// whose nesting depth never exceeds maxDepth. Deeper blocks are skipped
// whole rather than matched partially.
func braceCandidates(text string, maxDepth int) []string {
	var candidates []string

	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}

		depth := 0
		tooDeep := false
		end := -1
		for j := i; j < len(text); j++ {
			switch text[j] {
			case '{':
				depth++
				if depth > maxDepth {
					tooDeep = true
				}
			case '}':
				depth--
			}
			if depth == 0 {
				end = j
				break
			}
		}
		if end == -1 {
			// Unbalanced tail; nothing further can close.
			break
		}
		if !tooDeep {
			candidates = append(candidates, text[i:end+1])
		}
		i = end
	}

	return candidates
}

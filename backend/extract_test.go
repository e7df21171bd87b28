package backend

import (
	"errors"
	"testing"
)

func TestExtractReply_CleanJSON(t *testing.T) {
	reply, err := ExtractReply(`{"action": "greet", "text": "hi"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply["action"] != "greet" {
		t.Errorf("action = %v, want greet", reply["action"])
	}
}

func TestExtractReply_FencedJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"json fence", "```json\n{\"status\": \"ok\"}\n```"},
		{"bare fence", "```\n{\"status\": \"ok\"}\n```"},
		{"fence with prose", "Sure! Here is the reply:\n```json\n{\"status\": \"ok\"}\n```\nLet me know if you need more."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := ExtractReply(tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if reply["status"] != "ok" {
				t.Errorf("status = %v, want ok", reply["status"])
			}
		})
	}
}

func TestExtractReply_EmbeddedInProse(t *testing.T) {
	reply, err := ExtractReply(`The answer you want is {"value": 42} as requested.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply["value"] != float64(42) {
		t.Errorf("value = %v, want 42", reply["value"])
	}
}

func TestExtractReply_SingleNestedObject(t *testing.T) {
	reply, err := ExtractReply(`Result: {"outer": {"inner": "deep"}} done.`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outer, ok := reply["outer"].(map[string]any)
	if !ok {
		t.Fatalf("outer = %T, want object", reply["outer"])
	}
	if outer["inner"] != "deep" {
		t.Errorf("inner = %v, want deep", outer["inner"])
	}
}

func TestExtractReply_FirstCandidateWins(t *testing.T) {
	reply, err := ExtractReply(`{"first": 1} and later {"second": 2}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := reply["first"]; !ok {
		t.Errorf("got %v, want the first brace candidate", reply)
	}
}

func TestExtractReply_SkipsInvalidCandidate(t *testing.T) {
	// The first brace block is not valid JSON; extraction moves on.
	reply, err := ExtractReply(`{not json} but then {"ok": true}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply["ok"] != true {
		t.Errorf("ok = %v, want true", reply["ok"])
	}
}

func TestExtractReply_NoStructuredContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"plain prose", "I could not produce a structured reply."},
		{"empty", ""},
		{"unbalanced brace", `{"broken": `},
		{"array only", `[1, 2, 3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractReply(tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrMalformedReply) {
				t.Errorf("error = %v, want ErrMalformedReply", err)
			}
		})
	}
}

func TestBraceCandidates(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		maxDepth int
		want     []string
	}{
		{"flat block", `a {"x": 1} b`, 1, []string{`{"x": 1}`}},
		{"nested skipped at depth 1", `{"a": {"b": 1}}`, 1, nil},
		{"nested matched at depth 2", `{"a": {"b": 1}}`, 2, []string{`{"a": {"b": 1}}`}},
		{"two flat blocks", `{"a": 1} {"b": 2}`, 1, []string{`{"a": 1}`, `{"b": 2}`}},
		{"unbalanced tail dropped", `{"a": 1} {"b": `, 1, []string{`{"a": 1}`}},
		{"no braces", "plain", 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := braceCandidates(tt.in, tt.maxDepth)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d candidates %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("candidate[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

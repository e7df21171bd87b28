package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/relay/types"
)

func TestLogger_SessionContextFields(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.SessionMeta{SessionID: "sess-001", Endpoint: "ws://test", Model: "llama3.1:8b"}
	logger := NewLogger(meta, zapcore.InfoLevel).WithOutput(&buf)

	logger.Info("processing message", map[string]any{"message": "hello"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["session_id"] != "sess-001" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
	if entry["endpoint"] != "ws://test" {
		t.Errorf("endpoint = %v", entry["endpoint"])
	}
	if entry["model"] != "llama3.1:8b" {
		t.Errorf("model = %v", entry["model"])
	}
	if entry["message"] != "processing message" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
}

func TestLogger_ModelFieldOptional(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.SessionMeta{SessionID: "sess-001", Endpoint: "ws://test"}
	logger := NewLogger(meta, zapcore.InfoLevel).WithOutput(&buf)

	logger.Info("hello", nil)

	if strings.Contains(buf.String(), `"model"`) {
		t.Errorf("model field present for metadata without a model: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"nonsense", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSugaredLogger(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.SessionMeta{SessionID: "sess-001", Endpoint: "ws://test"}
	logger := NewLogger(meta, zapcore.InfoLevel).WithOutput(&buf)

	logger.Sugar().Infof("connected to %s", "ws://test")

	if !strings.Contains(buf.String(), "connected to ws://test") {
		t.Errorf("output = %q", buf.String())
	}
}

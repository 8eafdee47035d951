package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestInfoWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Info("rewrite.completed", map[string]any{"rewrite_id": "rw-1", "score": 37.5})

	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, buf.String())
	}
	if payload["msg"] != "rewrite.completed" {
		t.Fatalf("unexpected msg: %v", payload["msg"])
	}
	if payload["level"] != "info" {
		t.Fatalf("unexpected level: %v", payload["level"])
	}
	if payload["rewrite_id"] != "rw-1" {
		t.Fatalf("unexpected rewrite_id: %v", payload["rewrite_id"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("missing ts")
	}
}

func TestErrorFieldIsStringified(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()

	Error("llm.failed", map[string]any{"error": errors.New("boom")})
	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Fatalf("expected error string in log, got %s", buf.String())
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutput(&buf)
	defer restore()
	SetLevel("info")

	Debug("noisy", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be suppressed, got %s", buf.String())
	}

	SetLevel("debug")
	defer SetLevel("info")
	Debug("noisy", nil)
	if !strings.Contains(buf.String(), `"msg":"noisy"`) {
		t.Fatalf("expected debug line, got %s", buf.String())
	}
}

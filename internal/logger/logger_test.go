package logger

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSetup_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf)

	log.Info("test message", "key", "value")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if entry["msg"] != "test message" {
		t.Errorf("unexpected msg: %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("unexpected attribute: %v", entry["key"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("unexpected level: %v", entry["level"])
	}
}

func TestSetup_DebugSuppressedAtInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Setup(&buf)

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected debug output suppressed, got: %s", buf.String())
	}
}

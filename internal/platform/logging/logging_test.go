package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ogurasousui/site-access/internal/platform/config"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("visible", "gate", "north")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one line, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if entry["msg"] != "visible" || entry["gate"] != "north" || entry["service"] != "site-access" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Debug("scan", "identifier", "BADGE-A")
	if !strings.Contains(buf.String(), "identifier=BADGE-A") {
		t.Fatalf("unexpected text output: %q", buf.String())
	}
}

func TestNew_InvalidInput(t *testing.T) {
	t.Parallel()

	if _, err := New(config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := New(config.LoggingConfig{Format: "xml"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

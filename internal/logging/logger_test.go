package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "production", "info")
	if err != nil {
		t.Fatal(err)
	}

	log.Debug().Msg("hidden")
	log.Info().Str("language", "es").Msg("model ready")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["service"] != "captran" || entry["language"] != "es" || entry["message"] != "model ready" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(&buf, "local", "debug")
	if err != nil {
		t.Fatal(err)
	}
	log.Debug().Msg("loading model")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "loading model") {
		t.Errorf("console output = %q", buf.String())
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New("local", "loud"); err == nil {
		t.Error("expected error for invalid level")
	}
}

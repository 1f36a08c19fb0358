package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name      string
		expected  slog.Level
		expectErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"critical", LevelCritical, false},
		{"verbose", 0, true},
	}

	for _, tt := range tests {
		level, err := ParseLevel(tt.name)
		if tt.expectErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error", tt.name)
			}
			continue
		}
		if err != nil || level != tt.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v (%v)", tt.name, tt.expected, level, err)
		}
	}
}

func TestNew_TextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warning", "text")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown", "peer", "abcdefg")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected info record to be filtered")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "peer=abcdefg") {
		t.Errorf("Expected warning record with attributes, got %q", out)
	}
}

func TestNew_JSONCritical(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "critical", "json")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Error("hidden")
	Critical(logger, "fatal", "err", "boom")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("Expected one JSON record, got %q: %v", buf.String(), err)
	}
	if record["level"] != "CRITICAL" {
		t.Errorf("Expected level CRITICAL, got %v", record["level"])
	}
	if record["msg"] != "fatal" {
		t.Errorf("Expected msg fatal, got %v", record["msg"])
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("Expected error for unknown format")
	}
	if _, err := New(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing happens")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("Expected discard logger to be disabled")
	}
}

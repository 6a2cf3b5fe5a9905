package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{"DEBUG", slog.LevelDebug},
		{"Trace", LevelTrace},
		{" debug ", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLoggerFiltersAndLabelsTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("info", &buf)
	logger.Debug("hidden")
	logger.Info("shown", "session", "s01")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "session=s01") {
		t.Fatalf("info logger output = %q", out)
	}

	buf.Reset()
	trace := NewLogger("trace", &buf)
	trace.Log(t.Context(), LevelTrace, "row detail")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Fatalf("trace output = %q", buf.String())
	}
}

func TestDecisionLogger(t *testing.T) {
	dir := t.TempDir()
	if dl := NewDecisionLogger(dir, "info"); dl != nil {
		t.Fatal("decision logger created at info level")
	}
	var nilLogger *DecisionLogger
	if err := nilLogger.Log(map[string]any{"ignored": true}); err != nil {
		t.Fatalf("nil logger Log error: %v", err)
	}
	nilLogger.Close()

	dl := NewDecisionLogger(dir, "debug")
	if dl == nil {
		t.Fatal("decision logger not created at debug level")
	}
	event := map[string]any{"decision": "window_kept", "label": "s01_Fruition_1"}
	if err := dl.Log(event); err != nil {
		t.Fatalf("Log error: %v", err)
	}
	if err := dl.Log(map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected an encode error for an unmarshalable value")
	}
	dl.Close()
	if _, ok := event["time"]; ok {
		t.Fatal("caller map was modified")
	}

	data, err := os.ReadFile(filepath.Join(dir, "decisions.jsonl"))
	if err != nil {
		t.Fatalf("read decisions: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &got); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if got["label"] != "s01_Fruition_1" || got["time"] == nil {
		t.Fatalf("decision = %v", got)
	}
}

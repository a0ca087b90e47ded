package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf))
	l.Info("hello", "key", "value")

	out := buf.String()
	for _, want := range []string{"hello", "key", "value"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithFormat("json"))
	l.Info("structured", "count", 42)

	var parsed map[string]any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if parsed["msg"] != "structured" {
		t.Fatalf("msg = %v, want structured", parsed["msg"])
	}
}

func TestNewPrettyLoggerFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithWriter(&buf), WithFormat("pretty"), WithLevel("info"))
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug output written at info level: %q", buf.String())
	}
	l.Info("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("pretty output missing message: %q", buf.String())
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	if l.Handler().Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("Nop handler enabled at error level")
	}
}

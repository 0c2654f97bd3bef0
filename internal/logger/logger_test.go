package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.expected {
			t.Errorf("Level(%d).String() = %s, want %s", tt.level, got, tt.expected)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warn ", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLevel(%q) error = %v, want error %v", tt.in, err, tt.err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLoggerOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelDebug)

	l.Debug("writer", "debug message")
	l.Info("writer", "info message")
	l.Warn("writer", "warn message")
	l.Error("writer", "error message")

	output := buf.String()

	for _, want := range []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]", "[writer]"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelWarn)

	l.Debug("", "debug message")
	l.Info("", "info message")
	l.Warn("", "warn message")

	output := buf.String()

	if strings.Contains(output, "[DEBUG]") || strings.Contains(output, "[INFO]") {
		t.Error("DEBUG and INFO should be filtered")
	}
	if !strings.Contains(output, "[WARN]") {
		t.Error("expected WARN log")
	}
	if l.Enabled(LevelInfo) {
		t.Error("LevelInfo should not be enabled at LevelWarn")
	}
}

func TestLoggerSetLevelAndOutput(t *testing.T) {
	first := &bytes.Buffer{}
	l := New(first, LevelError)

	l.Info("", "should not appear")
	if first.Len() != 0 {
		t.Error("INFO should be filtered at ERROR level")
	}

	second := &bytes.Buffer{}
	l.SetLevel(LevelInfo)
	l.SetOutput(second)
	l.Info("", "should appear")

	if first.Len() != 0 {
		t.Error("old writer should stay untouched after SetOutput")
	}
	if !strings.Contains(second.String(), "should appear") {
		t.Error("INFO should appear after SetLevel")
	}
}

func TestScope(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelDebug)

	s := l.For("applier")
	s.Debug("merged %d intents", 3)

	output := buf.String()
	if !strings.Contains(output, "[applier] merged 3 intents") {
		t.Errorf("expected scoped line, got: %s", output)
	}
}

func TestLoggerWithoutComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, LevelInfo)

	l.Info("", "message without component")

	output := buf.String()
	if strings.Contains(output, "[]") {
		t.Error("should not have empty brackets for component")
	}
	if !strings.Contains(output, "message without component") {
		t.Error("expected message in output")
	}
}

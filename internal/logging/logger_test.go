package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.name); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.WithComponent("tailer").WithCommander("Foo").Info().Str("role", "current").Msg("Opened journal file")

	line := buf.String()
	if !gjson.Valid(line) {
		t.Fatalf("output is not JSON: %q", line)
	}
	for field, want := range map[string]string{
		"component": "tailer",
		"commander": "Foo",
		"role":      "current",
		"message":   "Opened journal file",
		"level":     "info",
	} {
		if got := gjson.Get(line, field).String(); got != want {
			t.Errorf("%s = %q, want %q", field, got, want)
		}
	}
	if !gjson.Get(line, "time").Exists() {
		t.Error("missing timestamp")
	}
}

func TestLevelIsPerLogger(t *testing.T) {
	var quiet, loud bytes.Buffer
	q := New(Config{Level: "error", Output: &quiet})
	l := New(Config{Level: "debug", Output: &loud})

	q.Info().Msg("dropped")
	l.Debug().Msg("kept")

	if quiet.Len() != 0 {
		t.Errorf("error-level logger wrote %q", quiet.String())
	}
	if !strings.Contains(loud.String(), "kept") {
		t.Errorf("debug-level logger lost its message: %q", loud.String())
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "console", Output: &buf}).Warn().Msg("Watcher error")

	out := buf.String()
	if gjson.Valid(out) {
		t.Errorf("console output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "Watcher error") {
		t.Errorf("missing message: %q", out)
	}
}

func TestGlobal(t *testing.T) {
	prev := Global()
	t.Cleanup(func() { SetGlobal(prev) })

	var buf bytes.Buffer
	SetGlobal(New(Config{Output: &buf}))
	Global().Info().Msg("via global")

	if !strings.Contains(buf.String(), "via global") {
		t.Errorf("global logger did not write: %q", buf.String())
	}
}

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLogger_ConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Options{Console: &buf, Component: "upload"})

	logger.Info().Str("operation", "op-1").Msg("Upload started")

	out := buf.String()
	if !strings.Contains(out, "Upload started") {
		t.Errorf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "op-1") {
		t.Errorf("expected field value in output, got %q", out)
	}
	if !strings.Contains(out, "upload") {
		t.Errorf("expected component in output, got %q", out)
	}
}

func TestLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudfm.log")
	logger := NewLogger(Options{Console: &bytes.Buffer{}, File: path})

	logger.Warnf("retrying %s", "a.txt")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
	if !strings.Contains(string(data), `"retrying a.txt"`) {
		t.Errorf("expected JSON entry in log file, got %q", string(data))
	}
}

func TestLogger_SetOutput(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewLogger(Options{Console: &first})

	logger.SetOutput(&second)
	logger.Infof("redirected")

	if first.Len() != 0 {
		t.Errorf("expected nothing written to original writer, got %q", first.String())
	}
	if !strings.Contains(second.String(), "redirected") {
		t.Errorf("expected message in new writer, got %q", second.String())
	}
	if logger.Output() != &second {
		t.Error("expected Output() to return the new writer")
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error().Msg("dropped")
	logger.Named("child").Info().Msg("dropped")
	if err := logger.Close(); err != nil {
		t.Errorf("expected nil error closing nop logger, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

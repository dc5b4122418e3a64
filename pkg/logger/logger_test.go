package logger

import (
	"log/slog"
	"strings"
	"testing"
)

func TestValidateDefaults(t *testing.T) {
	c := &Conf{}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if c.Output != "stdout" || c.Level != "INFO" {
		t.Fatalf("unexpected normalized config: %+v", c)
	}
}

func TestValidateFileRequiresPath(t *testing.T) {
	c := &Conf{Output: "file"}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing path")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithCategory(t *testing.T) {
	l, err := NewWithCategory(SetDefaults(), " pipeline ")
	if err != nil {
		t.Fatalf("NewWithCategory error: %v", err)
	}
	if l == nil {
		t.Fatalf("expected logger")
	}
}

func TestFileWriterPath(t *testing.T) {
	dir := t.TempDir()
	c := &Conf{Output: "file", Path: dir, Filename: "x.log", RotateSize: 1, RotateNum: 1, KeepDays: 1}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	w, err := getFileLogWriter(c)
	if err != nil {
		t.Fatalf("getFileLogWriter error: %v", err)
	}
	if w == nil {
		t.Fatalf("expected writer")
	}
	if !strings.HasPrefix(dir, "/") {
		t.Fatalf("expected absolute temp dir, got %q", dir)
	}
}

package env

import (
	"testing"
	"time"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("INSIGHTRA_TEST_STR", "value")
	if got := GetEnvString("INSIGHTRA_TEST_STR", "def"); got != "value" {
		t.Fatalf("unexpected value: %q", got)
	}
	if got := GetEnvString("INSIGHTRA_TEST_MISSING", "def"); got != "def" {
		t.Fatalf("expected default, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("INSIGHTRA_TEST_INT", "42")
	if got := GetEnvInt("INSIGHTRA_TEST_INT", 1); got != 42 {
		t.Fatalf("unexpected value: %d", got)
	}
	t.Setenv("INSIGHTRA_TEST_INT", "not-a-number")
	if got := GetEnvInt("INSIGHTRA_TEST_INT", 7); got != 7 {
		t.Fatalf("expected default on parse failure, got %d", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("INSIGHTRA_TEST_DUR", "1500ms")
	if got := GetEnvDuration("INSIGHTRA_TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Fatalf("unexpected value: %v", got)
	}
}

func TestGetEnvStringSlice(t *testing.T) {
	t.Setenv("INSIGHTRA_TEST_SLICE", "a, b ,c")
	got := GetEnvStringSlice("INSIGHTRA_TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected slice: %v", got)
	}
}

package stepstatus

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestParseEmptyBlob(t *testing.T) {
	if got := Parse(nil); len(got) != 0 {
		t.Fatalf("nil blob should parse to empty map, got %v", got)
	}
	if got := Parse([]byte(`{}`)); len(got) != 0 {
		t.Fatalf("blob without step section should parse to empty map, got %v", got)
	}
}

func TestParseValidEntries(t *testing.T) {
	raw := []byte(`{
		"step_status": {
			"evidence": {"status": "completed", "startedAt": "2026-01-10T08:00:00Z", "finishedAt": "2026-01-10T08:01:30Z"},
			"synthesis": {"status": "failed", "error": {"code": "server_error", "message": "upstream 502"}}
		}
	}`)

	got := Parse(raw)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got["evidence"].Status != StatusCompleted || got["evidence"].FinishedAt == nil {
		t.Fatalf("evidence entry mangled: %+v", got["evidence"])
	}
	syn := got["synthesis"]
	if syn.Status != StatusFailed || syn.Error == nil || syn.Error.Code != "server_error" {
		t.Fatalf("synthesis entry mangled: %+v", syn)
	}
}

func TestParseMalformedEntryDegradesToPending(t *testing.T) {
	raw := []byte(`{
		"step_status": {
			"evidence": {"status": "completed"},
			"synthesis": "not an object",
			"ranking": {"status": "does-not-exist"}
		}
	}`)

	got := Parse(raw)
	if got["evidence"].Status != StatusCompleted {
		t.Fatalf("valid sibling damaged by malformed entry: %+v", got["evidence"])
	}
	if got["synthesis"].Status != StatusPending {
		t.Fatalf("malformed entry should degrade to pending, got %+v", got["synthesis"])
	}
	if got["ranking"].Status != StatusPending {
		t.Fatalf("unknown status should degrade to pending, got %+v", got["ranking"])
	}
}

func TestParseGarbageBlob(t *testing.T) {
	if got := Parse([]byte(`not json at all`)); len(got) != 0 {
		t.Fatalf("garbage blob should parse to empty map, got %v", got)
	}
}

func TestSerializePreservesSiblingKeys(t *testing.T) {
	prev := []byte(`{"token_usage": {"total": 120}, "step_status": {"evidence": {"status": "running"}}}`)
	started := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	out, err := Serialize(prev, map[string]Entry{
		"evidence": {Status: StatusCompleted, StartedAt: &started},
	})
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}

	var blob map[string]any
	if err := sonic.Unmarshal(out, &blob); err != nil {
		t.Fatalf("output not valid json: %v", err)
	}
	if _, ok := blob["token_usage"]; !ok {
		t.Fatalf("sibling key dropped: %s", out)
	}

	steps := Parse(out)
	if steps["evidence"].Status != StatusCompleted || steps["evidence"].StartedAt == nil {
		t.Fatalf("round trip lost entry state: %+v", steps["evidence"])
	}
}

func TestSerializeRoundTripWithError(t *testing.T) {
	out, err := Serialize(nil, map[string]Entry{
		"ranking": {Status: StatusFailed, Error: &StepError{Code: "timeout", Message: "attempt deadline exceeded", Detail: "req-abc123"}},
	})
	if err != nil {
		t.Fatalf("Serialize error: %v", err)
	}
	got := Parse(out)
	if got["ranking"].Error == nil || got["ranking"].Error.Detail != "req-abc123" {
		t.Fatalf("error detail lost: %+v", got["ranking"])
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusCompleted.Terminal() || StatusFailed.Terminal() {
		t.Fatalf("only completed is terminal")
	}
	if Status("bogus").Valid() {
		t.Fatalf("unknown status must not validate")
	}
}

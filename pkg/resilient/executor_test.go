package resilient

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestExecutor(maxRetries int) *Executor {
	// Jitter pinned low so retry delays stay near the floor in tests.
	backoff := NewBackoffPolicyWithSource(func() float64 { return 0 })
	backoff.schedule = []time.Duration{time.Millisecond}
	return NewExecutor(Config{Timeout: 200 * time.Millisecond, MaxRetries: maxRetries}, backoff, nil)
}

func TestDoSuccessFirstAttempt(t *testing.T) {
	ex := newTestExecutor(2)
	calls := 0
	got, err := Do(context.Background(), ex, "search", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if got != "ok" || calls != 1 {
		t.Fatalf("got %q after %d calls", got, calls)
	}
}

func TestDoRetriesRetryableThenSucceeds(t *testing.T) {
	ex := newTestExecutor(3)
	calls := 0
	got, err := Do(context.Background(), ex, "search", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &CallError{Class: ClassServer, Provider: "search", Status: 503, Message: "upstream busy"}
		}
		return 7, nil
	})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if got != 7 || calls != 3 {
		t.Fatalf("got %d after %d calls", got, calls)
	}
}

func TestDoFatalErrorNotRetried(t *testing.T) {
	ex := newTestExecutor(3)
	calls := 0
	fatal := &CallError{Class: ClassClient, Provider: "generation", Status: 400, Message: "bad request"}
	_, err := Do(context.Background(), ex, "generation", func(ctx context.Context) (string, error) {
		calls++
		return "", fatal
	})
	if calls != 1 {
		t.Fatalf("fatal error retried: %d calls", calls)
	}
	if !errors.Is(err, fatal) {
		t.Fatalf("error rewritten: %v", err)
	}
}

func TestDoExhaustedRetriesPropagatesLastErrorUnchanged(t *testing.T) {
	ex := newTestExecutor(2)
	calls := 0
	last := &CallError{Class: ClassRateLimited, Provider: "search", Status: 429, Message: "slow down"}
	_, err := Do(context.Background(), ex, "search", func(ctx context.Context) (string, error) {
		calls++
		return "", last
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got %d", calls)
	}
	var got *CallError
	if !errors.As(err, &got) || got != last {
		t.Fatalf("final error not propagated verbatim: %v", err)
	}
	if got.Message != "slow down" || got.Status != 429 {
		t.Fatalf("final error mutated: %+v", got)
	}
}

func TestDoTimeoutClassified(t *testing.T) {
	backoff := NewBackoffPolicyWithSource(func() float64 { return 0 })
	backoff.schedule = []time.Duration{time.Millisecond}
	ex := NewExecutor(Config{Timeout: 20 * time.Millisecond, MaxRetries: 0}, backoff, nil)

	_, err := Do(context.Background(), ex, "generation", func(ctx context.Context) (string, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			// Keep running past cancellation like a real network call would;
			// the executor must not wait for us.
			time.Sleep(50 * time.Millisecond)
			return "late", nil
		}
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	var callErr *CallError
	if !errors.As(err, &callErr) || callErr.Class != ClassTimeout {
		t.Fatalf("expected timeout classification, got %v", err)
	}
}

func TestDoRequestIDStableAcrossAttempts(t *testing.T) {
	ex := newTestExecutor(2)
	seen := map[string]bool{}
	calls := 0
	_, _ = Do(context.Background(), ex, "search", func(ctx context.Context) (string, error) {
		calls++
		id := RequestIDFrom(ctx)
		if id == "" {
			t.Errorf("attempt %d: missing request id", calls)
		}
		seen[id] = true
		return "", &CallError{Class: ClassTransport, Provider: "search", Message: "dial refused"}
	})
	if len(seen) != 1 {
		t.Fatalf("request id changed between attempts: %v", seen)
	}
}

func TestDoHonorsLimiter(t *testing.T) {
	backoff := NewBackoffPolicyWithSource(func() float64 { return 0 })
	backoff.schedule = []time.Duration{time.Millisecond}
	limiter := NewLimiter(1, nil)
	ex := NewExecutor(Config{Timeout: time.Second, MaxRetries: 0}, backoff, limiter)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Do(context.Background(), ex, "search", func(ctx context.Context) (string, error) {
			close(started)
			<-release
			return "first", nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := Do(ctx, ex, "search", func(ctx context.Context) (string, error) {
		return "second", nil
	})
	if err == nil {
		t.Fatalf("expected admission to block second call until ctx deadline")
	}
	close(release)
}

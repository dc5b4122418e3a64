// Copyright 2025 Insightra Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/insightrix/insightra/pkg/logger"
	"github.com/insightrix/insightra/pkg/metrics"
	"github.com/rs/xid"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultMaxRetries  = 2
)

// Operation is a zero-argument single attempt against an external provider.
type Operation[T any] func(ctx context.Context) (T, error)

// Config holds the executor knobs.
type Config struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries"`
}

func (c *Config) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultCallTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

// Executor wraps single-attempt operations with timeout, classification,
// retry with backoff, and per-provider admission control. It performs at
// most one attempt at a time per call site; there are no speculative
// parallel retries.
type Executor struct {
	timeout    time.Duration
	maxRetries int
	backoff    *BackoffPolicy
	limiter    *Limiter
}

// NewExecutor builds an executor. A nil backoff gets the default policy;
// a nil limiter disables admission control.
func NewExecutor(cfg Config, backoff *BackoffPolicy, limiter *Limiter) *Executor {
	cfg.SetDefaults()
	if backoff == nil {
		backoff = NewBackoffPolicy()
	}
	return &Executor{
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
		limiter:    limiter,
	}
}

type requestIDKey struct{}

// RequestIDFrom returns the request id threaded through executor attempts,
// or empty when the context did not pass through Do.
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Do executes op under the executor's retry policy. A request id is
// generated once per outer call and threaded through every attempt. On a
// non-retryable classification, or once attempts are exhausted, the last
// error is propagated unchanged.
func Do[T any](ctx context.Context, ex *Executor, provider string, op Operation[T]) (T, error) {
	var zero T

	requestID := xid.New().String()
	ctx = context.WithValue(ctx, requestIDKey{}, requestID)

	var lastErr error
	for attempt := 0; attempt <= ex.maxRetries; attempt++ {
		if attempt > 0 {
			delay := ex.backoff.Delay(attempt - 1)
			metrics.CallRetries.WithLabelValues(provider).Inc()
			logger.InfoContext(ctx, "retrying provider call",
				"provider", provider,
				"requestId", requestID,
				"attempt", attempt,
				"delay", delay,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := runAttempt(ctx, ex, provider, op)
		if err == nil {
			metrics.CallAttempts.WithLabelValues(provider, "ok").Inc()
			return result, nil
		}

		lastErr = err
		class := Classify(err)
		metrics.CallAttempts.WithLabelValues(provider, string(class)).Inc()
		if !class.Retryable() {
			return zero, err
		}
	}
	return zero, lastErr
}

// runAttempt performs one admission-controlled attempt raced against the
// timeout budget. The timeout cancels the caller's wait, not the operation
// itself; a late result lands in the buffered channel and is discarded.
func runAttempt[T any](ctx context.Context, ex *Executor, provider string, op Operation[T]) (T, error) {
	var zero T

	if ex.limiter != nil {
		if err := ex.limiter.Acquire(ctx, provider); err != nil {
			return zero, err
		}
		defer ex.limiter.Release(provider)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, ex.timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := op(attemptCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, &CallError{
				Class:     ClassTimeout,
				Provider:  provider,
				Message:   fmt.Sprintf("attempt exceeded %s budget", ex.timeout),
				RequestID: RequestIDFrom(ctx),
			}
		}
		return zero, attemptCtx.Err()
	}
}

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
	"math/rand/v2"
	"time"
)

const (
	defaultJitterRatio = 0.25
	minBackoffDelay    = 50 * time.Millisecond
)

var defaultSchedule = []time.Duration{
	300 * time.Millisecond,
	800 * time.Millisecond,
	1600 * time.Millisecond,
}

// BackoffPolicy computes the delay before a retry attempt: a fixed base
// schedule (clamped to its last value) with symmetric jitter and a floor.
type BackoffPolicy struct {
	schedule []time.Duration
	jitter   float64
	floor    time.Duration
	// randFloat returns a value in [0, 1). Injectable for deterministic tests.
	randFloat func() float64
}

// NewBackoffPolicy returns the default policy: 300/800/1600 ms, ±25%
// jitter, 50 ms floor.
func NewBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		schedule:  defaultSchedule,
		jitter:    defaultJitterRatio,
		floor:     minBackoffDelay,
		randFloat: rand.Float64,
	}
}

// NewBackoffPolicyWithSource returns a policy with a custom jitter source.
func NewBackoffPolicyWithSource(randFloat func() float64) *BackoffPolicy {
	p := NewBackoffPolicy()
	if randFloat != nil {
		p.randFloat = randFloat
	}
	return p
}

// Delay returns the delay before retry number attempt (zero-based).
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	idx := attempt
	if idx >= len(p.schedule) {
		idx = len(p.schedule) - 1
	}
	base := p.schedule[idx]

	// Symmetric jitter: base * (1 ± jitter).
	factor := 1 + p.jitter*(2*p.randFloat()-1)
	delay := time.Duration(float64(base) * factor)
	if delay < p.floor {
		delay = p.floor
	}
	return delay
}

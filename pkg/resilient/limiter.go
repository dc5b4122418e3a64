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
	"sync"

	"golang.org/x/sync/semaphore"
)

const defaultAdmissionLimit = 4

// Limiter bounds concurrent in-flight calls per provider. Callers beyond
// the bound wait in arrival order; admission never fails, it only delays.
type Limiter struct {
	mu           sync.Mutex
	defaultLimit int64
	limits       map[string]int64
	sems         map[string]*semaphore.Weighted
}

// NewLimiter creates a limiter with per-provider overrides. A zero or
// negative limit falls back to the default.
func NewLimiter(defaultLimit int, overrides map[string]int) *Limiter {
	if defaultLimit <= 0 {
		defaultLimit = defaultAdmissionLimit
	}
	limits := make(map[string]int64, len(overrides))
	for provider, n := range overrides {
		if n > 0 {
			limits[provider] = int64(n)
		}
	}
	return &Limiter{
		defaultLimit: int64(defaultLimit),
		limits:       limits,
		sems:         make(map[string]*semaphore.Weighted),
	}
}

// Acquire blocks until a slot for provider is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, provider string) error {
	return l.sem(provider).Acquire(ctx, 1)
}

// Release frees a slot previously acquired for provider.
func (l *Limiter) Release(provider string) {
	l.sem(provider).Release(1)
}

func (l *Limiter) sem(provider string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sems[provider]; ok {
		return s
	}
	limit := l.defaultLimit
	if n, ok := l.limits[provider]; ok {
		limit = n
	}
	s := semaphore.NewWeighted(limit)
	l.sems[provider] = s
	return s
}

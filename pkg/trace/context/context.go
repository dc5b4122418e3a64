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

package context

import (
	"context"
	"sync"

	"github.com/insightrix/insightra/pkg/num"
	"github.com/timandy/routine"
)

// Goroutine-local context store. Logging call sites that have no
// context parameter pick up the request context registered here.

const shardCount = 64

type shard struct {
	mu   sync.RWMutex
	data map[int64]context.Context
}

var shards [shardCount]*shard

func init() {
	for i := range shards {
		shards[i] = &shard{data: make(map[int64]context.Context)}
	}
}

func shardFor(goid int64) *shard {
	return shards[goid%shardCount]
}

// GetContext returns the context registered for the current goroutine, or nil.
func GetContext() context.Context {
	goid := num.MustInt64(routine.Goid())
	s := shardFor(goid)
	s.mu.RLock()
	ctx := s.data[goid]
	s.mu.RUnlock()
	return ctx
}

// SetContext registers ctx for the current goroutine.
func SetContext(ctx context.Context) {
	goid := num.MustInt64(routine.Goid())
	s := shardFor(goid)
	s.mu.Lock()
	s.data[goid] = ctx
	s.mu.Unlock()
}

// ClearContext removes the registration for the current goroutine.
func ClearContext() {
	goid := num.MustInt64(routine.Goid())
	s := shardFor(goid)
	s.mu.Lock()
	delete(s.data, goid)
	s.mu.Unlock()
}

// RunWithContext registers ctx for the duration of fn.
func RunWithContext(ctx context.Context, fn func(ctx context.Context)) {
	SetContext(ctx)
	defer ClearContext()
	fn(ctx)
}

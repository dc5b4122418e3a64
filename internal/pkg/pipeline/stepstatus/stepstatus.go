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

// Package stepstatus is the codec for the per-step status map persisted
// inside a run's metrics blob. Parsing is tolerant: a malformed entry is
// replaced by a pending placeholder instead of failing the whole map, so
// one corrupt step can never take down run recovery.
package stepstatus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// Status is the lifecycle state of one pipeline step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known step states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the step needs no further work.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// StepError captures why a step attempt failed.
type StepError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Entry is the persisted state of one step.
type Entry struct {
	Status     Status     `json:"status"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      *StepError `json:"error,omitempty"`
}

// metricsKey is the key holding the step map inside the metrics blob.
const metricsKey = "step_status"

// Parse decodes the step-status map out of a metrics blob. Entries that
// fail to decode or carry an unknown status come back as pending; valid
// siblings are untouched. A nil or empty blob yields an empty map.
func Parse(raw []byte) map[string]Entry {
	out := map[string]Entry{}
	if len(raw) == 0 {
		return out
	}

	var blob map[string]json.RawMessage
	if err := sonic.Unmarshal(raw, &blob); err != nil {
		return out
	}
	section, ok := blob[metricsKey]
	if !ok {
		return out
	}

	var entries map[string]json.RawMessage
	if err := sonic.Unmarshal(section, &entries); err != nil {
		return out
	}

	for step, rawEntry := range entries {
		out[step] = decodeEntry(rawEntry)
	}
	return out
}

// ValidateEntry decodes one entry, degrading to a pending placeholder on
// any malformed input.
func ValidateEntry(raw []byte) Entry {
	return decodeEntry(raw)
}

func decodeEntry(raw []byte) Entry {
	var entry Entry
	if err := sonic.Unmarshal(raw, &entry); err != nil {
		return Entry{Status: StatusPending}
	}
	if !entry.Status.Valid() {
		return Entry{Status: StatusPending}
	}
	return entry
}

// Serialize writes the step map back into a metrics blob, preserving any
// sibling keys already present in prev.
func Serialize(prev []byte, steps map[string]Entry) ([]byte, error) {
	blob := map[string]json.RawMessage{}
	if len(prev) > 0 {
		if err := sonic.Unmarshal(prev, &blob); err != nil {
			// Sibling data is unreadable; keep the step map and move on.
			blob = map[string]json.RawMessage{}
		}
	}

	encoded, err := sonic.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("encode step status: %w", err)
	}
	blob[metricsKey] = encoded

	out, err := sonic.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("encode metrics blob: %w", err)
	}
	return out, nil
}

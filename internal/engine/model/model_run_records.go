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

package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Run lifecycle states.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunRecord is one durable pipeline execution for a project input
// version. The Version column is the optimistic-lock counter guarding
// every step transition.
type RunRecord struct {
	RunID           string         `gorm:"column:run_id;type:VARCHAR(64);primaryKey" json:"run_id"`
	ProjectID       string         `gorm:"column:project_id;type:VARCHAR(64);index" json:"project_id"`
	InputVersion    int64          `gorm:"column:input_version;type:BIGINT" json:"input_version"`
	PipelineVersion string         `gorm:"column:pipeline_version;type:VARCHAR(64)" json:"pipeline_version"`
	IdempotencyKey  string         `gorm:"column:idempotency_key;type:VARCHAR(191);uniqueIndex" json:"idempotency_key"`
	Status          string         `gorm:"column:status;type:VARCHAR(32)" json:"status"` // queued/running/succeeded/failed
	Version         int64          `gorm:"column:version;type:BIGINT" json:"version"`
	Output          datatypes.JSON `gorm:"column:output;type:JSON" json:"output,omitempty"`
	Metrics         datatypes.JSON `gorm:"column:metrics;type:JSON" json:"metrics,omitempty"`
	ErrorCode       string         `gorm:"column:error_code;type:VARCHAR(64)" json:"error_code,omitempty"`
	ErrorMessage    string         `gorm:"column:error_message;type:TEXT" json:"error_message,omitempty"`
	StartedAt       *time.Time     `gorm:"column:started_at;type:DATETIME" json:"started_at,omitempty"`
	FinishedAt      *time.Time     `gorm:"column:finished_at;type:DATETIME" json:"finished_at,omitempty"`
	CreateTime      time.Time      `gorm:"column:create_time;type:DATETIME" json:"create_time"`
	UpdateTime      time.Time      `gorm:"column:update_time;type:DATETIME" json:"update_time"`
}

// TableName returns the backing table name.
func (RunRecord) TableName() string {
	return "i_run_records"
}

// Terminal reports whether the run can accept no further transitions.
func (r *RunRecord) Terminal() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}

// Active reports whether the run still owns the project's pipeline work.
func (r *RunRecord) Active() bool {
	return r.Status == RunStatusQueued || r.Status == RunStatusRunning
}

// BuildIdempotencyKey derives the key that makes run creation idempotent
// for one (project, input version, pipeline version) triple.
func BuildIdempotencyKey(projectID string, inputVersion int64, pipelineVersion string) string {
	return fmt.Sprintf("%s:%d:%s", projectID, inputVersion, pipelineVersion)
}

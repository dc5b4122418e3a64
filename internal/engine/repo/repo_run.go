// Copyright 2025 Insightra Team
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

package repo

import (
	"context"
	"errors"
	"time"

	"github.com/insightrix/insightra/internal/engine/model"
	"github.com/insightrix/insightra/internal/pkg/pipeline/stepstatus"
	"github.com/insightrix/insightra/pkg/database"
	"gorm.io/gorm"
)

var (
	// ErrStepAlreadyRunning means another worker holds the step.
	ErrStepAlreadyRunning = errors.New("step is already running")
	// ErrStepAlreadyCompleted means the step finished and must not rerun.
	ErrStepAlreadyCompleted = errors.New("step is already completed")
	// ErrIllegalStepTransition means the requested state change is not in
	// the step lifecycle.
	ErrIllegalStepTransition = errors.New("illegal step transition")
	// ErrVersionConflict means the run row changed under us; reload and
	// retry the decision.
	ErrVersionConflict = errors.New("run version conflict")
)

type IRunRepository interface {
	// Create inserts the run, or returns the existing run when the
	// idempotency key is already taken. The bool reports whether a new
	// row was written.
	Create(ctx context.Context, run *model.RunRecord) (*model.RunRecord, bool, error)
	GetByID(ctx context.Context, runID string) (*model.RunRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*model.RunRecord, error)
	GetLatestForProject(ctx context.Context, projectID string) (*model.RunRecord, error)

	// TryStepTransition moves one step to entry.Status with a single
	// conditional update guarded by the run's version column. The caller
	// passes the run as loaded; a concurrent writer surfaces as
	// ErrVersionConflict, a lost claim race as ErrStepAlreadyRunning or
	// ErrStepAlreadyCompleted.
	TryStepTransition(ctx context.Context, run *model.RunRecord, step string, entry stepstatus.Entry) (*model.RunRecord, error)

	// UpdateMetrics and UpdateOutput replace one JSON column under the
	// same version guard as step transitions.
	UpdateMetrics(ctx context.Context, run *model.RunRecord, metrics []byte) (*model.RunRecord, error)
	UpdateOutput(ctx context.Context, run *model.RunRecord, output []byte) (*model.RunRecord, error)

	SetRunning(ctx context.Context, run *model.RunRecord) (*model.RunRecord, error)
	SetSucceeded(ctx context.Context, run *model.RunRecord, output []byte) (*model.RunRecord, error)
	SetFailed(ctx context.Context, run *model.RunRecord, code, message string) (*model.RunRecord, error)
}

type RunRepo struct {
	database.IDatabase
}

func NewRunRepo(db database.IDatabase) IRunRepository {
	return &RunRepo{IDatabase: db}
}

func (r *RunRepo) Create(ctx context.Context, run *model.RunRecord) (*model.RunRecord, bool, error) {
	now := time.Now()
	run.CreateTime = now
	run.UpdateTime = now

	err := r.Database().WithContext(ctx).Create(run).Error
	if err == nil {
		return run, true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, false, err
	}

	existing, getErr := r.GetByIdempotencyKey(ctx, run.IdempotencyKey)
	if getErr != nil {
		return nil, false, getErr
	}
	if existing == nil {
		// Insert lost a race but the winner is gone; report the original
		// conflict so the caller retries.
		return nil, false, err
	}
	return existing, false, nil
}

func (r *RunRepo) GetByID(ctx context.Context, runID string) (*model.RunRecord, error) {
	var run model.RunRecord
	err := r.Database().WithContext(ctx).
		Where("run_id = ?", runID).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *RunRepo) GetByIdempotencyKey(ctx context.Context, key string) (*model.RunRecord, error) {
	var run model.RunRecord
	err := r.Database().WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *RunRepo) GetLatestForProject(ctx context.Context, projectID string) (*model.RunRecord, error) {
	var run model.RunRecord
	err := r.Database().WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("create_time DESC, input_version DESC").
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *RunRepo) TryStepTransition(ctx context.Context, run *model.RunRecord, step string, entry stepstatus.Entry) (*model.RunRecord, error) {
	steps := stepstatus.Parse(run.Metrics)
	current := steps[step].Status
	if current == "" {
		current = stepstatus.StatusPending
	}

	if err := checkStepTransition(current, entry.Status); err != nil {
		return nil, err
	}

	steps[step] = entry
	metrics, err := stepstatus.Serialize(run.Metrics, steps)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"metrics":     metrics,
		"version":     run.Version + 1,
		"update_time": time.Now(),
	}
	return r.casUpdate(ctx, run, step, updates)
}

func (r *RunRepo) UpdateMetrics(ctx context.Context, run *model.RunRecord, metrics []byte) (*model.RunRecord, error) {
	updates := map[string]any{
		"metrics":     metrics,
		"version":     run.Version + 1,
		"update_time": time.Now(),
	}
	return r.casUpdate(ctx, run, "", updates)
}

func (r *RunRepo) UpdateOutput(ctx context.Context, run *model.RunRecord, output []byte) (*model.RunRecord, error) {
	updates := map[string]any{
		"output":      output,
		"version":     run.Version + 1,
		"update_time": time.Now(),
	}
	return r.casUpdate(ctx, run, "", updates)
}

func (r *RunRepo) SetRunning(ctx context.Context, run *model.RunRecord) (*model.RunRecord, error) {
	now := time.Now()
	updates := map[string]any{
		"status":      model.RunStatusRunning,
		"version":     run.Version + 1,
		"update_time": now,
	}
	if run.StartedAt == nil {
		updates["started_at"] = now
	}
	return r.casUpdate(ctx, run, "", updates)
}

func (r *RunRepo) SetSucceeded(ctx context.Context, run *model.RunRecord, output []byte) (*model.RunRecord, error) {
	now := time.Now()
	updates := map[string]any{
		"status":      model.RunStatusSucceeded,
		"output":      output,
		"finished_at": now,
		"version":     run.Version + 1,
		"update_time": now,
	}
	return r.casUpdate(ctx, run, "", updates)
}

func (r *RunRepo) SetFailed(ctx context.Context, run *model.RunRecord, code, message string) (*model.RunRecord, error) {
	now := time.Now()
	updates := map[string]any{
		"status":        model.RunStatusFailed,
		"error_code":    code,
		"error_message": message,
		"finished_at":   now,
		"version":       run.Version + 1,
		"update_time":   now,
	}
	return r.casUpdate(ctx, run, "", updates)
}

// casUpdate applies updates only if the row still carries the version the
// caller loaded. On a miss it reloads the row to name the loser's error:
// a step claim lost to another claimer maps to the step errors, anything
// else to ErrVersionConflict.
func (r *RunRepo) casUpdate(ctx context.Context, run *model.RunRecord, step string, updates map[string]any) (*model.RunRecord, error) {
	res := r.Database().WithContext(ctx).
		Model(&model.RunRecord{}).
		Where("run_id = ? AND version = ?", run.RunID, run.Version).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return r.GetByID(ctx, run.RunID)
	}

	fresh, err := r.GetByID(ctx, run.RunID)
	if err != nil {
		return nil, err
	}
	if fresh != nil && step != "" {
		switch stepstatus.Parse(fresh.Metrics)[step].Status {
		case stepstatus.StatusRunning:
			return nil, ErrStepAlreadyRunning
		case stepstatus.StatusCompleted:
			return nil, ErrStepAlreadyCompleted
		}
	}
	return nil, ErrVersionConflict
}

// checkStepTransition enforces the step lifecycle: pending and failed
// steps can start, running steps can finish either way or be reclaimed
// back to pending, completed steps never move again.
func checkStepTransition(current, desired stepstatus.Status) error {
	switch current {
	case stepstatus.StatusPending, stepstatus.StatusFailed:
		if desired == stepstatus.StatusRunning || desired == stepstatus.StatusPending {
			return nil
		}
	case stepstatus.StatusRunning:
		if desired == stepstatus.StatusCompleted || desired == stepstatus.StatusFailed || desired == stepstatus.StatusPending {
			return nil
		}
		if desired == stepstatus.StatusRunning {
			return ErrStepAlreadyRunning
		}
	case stepstatus.StatusCompleted:
		return ErrStepAlreadyCompleted
	}
	return ErrIllegalStepTransition
}

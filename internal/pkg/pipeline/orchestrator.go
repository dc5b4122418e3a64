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

// Package pipeline holds the run/step state machine. The orchestrator
// gatekeeps duplicate and concurrent step execution; it never invokes
// step logic itself. All coordination state lives in the run repository,
// so the machine is correct across processes without any in-process lock.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/insightrix/insightra/internal/engine/model"
	"github.com/insightrix/insightra/internal/engine/repo"
	"github.com/insightrix/insightra/internal/pkg/pipeline/stepstatus"
	"github.com/insightrix/insightra/pkg/logger"
	"github.com/insightrix/insightra/pkg/metrics"
)

// Advance actions reported to step callers.
const (
	ActionStarted = "started"
	ActionResumed = "resumed"
	ActionNoop    = "noop"
)

// casAttempts bounds retries of unconditional transitions that lose a
// version race to a concurrent writer.
const casAttempts = 5

// Config carries the orchestrator knobs.
type Config struct {
	PipelineVersion  string        `mapstructure:"pipelineVersion"`
	StepLeaseTimeout time.Duration `mapstructure:"stepLeaseTimeout"`
}

func (c *Config) SetDefaults() {
	if c.PipelineVersion == "" {
		c.PipelineVersion = "v1"
	}
	if c.StepLeaseTimeout <= 0 {
		c.StepLeaseTimeout = 15 * time.Minute
	}
}

// Options controls run resolution in GetOrCreateActiveRun.
type Options struct {
	// RunID, when set, bypasses resolution and fetches that run directly.
	RunID string
	// AllowCreate permits creating a new run when the project has no
	// active one.
	AllowCreate bool
	// PipelineVersion overrides the configured version for the
	// idempotency key.
	PipelineVersion string
}

// Advance is the outcome of one step-advancement request.
type Advance struct {
	Action string
	Run    *model.RunRecord
	Status stepstatus.Entry
}

type Orchestrator struct {
	runs   repo.IRunRepository
	inputs repo.IInputRepository
	cfg    Config
}

func NewOrchestrator(repos *repo.Repositories, cfg Config) *Orchestrator {
	cfg.SetDefaults()
	return &Orchestrator{runs: repos.Run, inputs: repos.Input, cfg: cfg}
}

// GetOrCreateActiveRun resolves the run that owns the project's pipeline
// work. An in-flight run is always reused; a second trigger while one is
// active never starts a redundant run. Creation is keyed by
// (project, input version, pipeline version), so concurrent creators
// converge on one row.
func (o *Orchestrator) GetOrCreateActiveRun(ctx context.Context, projectID string, opts Options) (*model.RunRecord, error) {
	if opts.RunID != "" {
		run, err := o.runs.GetByID(ctx, opts.RunID)
		if err != nil {
			return nil, storageError(err)
		}
		if run == nil {
			return nil, newFlowError(FlowCodeRunNotFound, "run %s not found", opts.RunID)
		}
		return run, nil
	}

	latest, err := o.runs.GetLatestForProject(ctx, projectID)
	if err != nil {
		return nil, storageError(err)
	}
	if latest != nil && latest.Active() {
		logger.InfoContext(ctx, "reusing active run",
			"projectId", projectID, "runId", latest.RunID, "status", latest.Status)
		return latest, nil
	}

	if !opts.AllowCreate {
		return nil, newFlowError(FlowCodeNoActiveRun, "project %s has no active run", projectID)
	}

	input, err := o.inputs.GetLatestVersion(ctx, projectID)
	if err != nil {
		return nil, storageError(err)
	}
	if input == nil {
		return nil, newFlowError(FlowCodeNoInputs, "project %s has no inputs", projectID)
	}

	version := opts.PipelineVersion
	if version == "" {
		version = o.cfg.PipelineVersion
	}

	run, created, err := o.runs.Create(ctx, &model.RunRecord{
		RunID:           uuid.NewString(),
		ProjectID:       projectID,
		InputVersion:    input.Version,
		PipelineVersion: version,
		IdempotencyKey:  model.BuildIdempotencyKey(projectID, input.Version, version),
		Status:          model.RunStatusQueued,
	})
	if err != nil {
		return nil, storageError(err)
	}
	if created {
		metrics.RunTransitions.WithLabelValues(model.RunStatusQueued).Inc()
		logger.InfoContext(ctx, "run created",
			"projectId", projectID, "runId", run.RunID, "inputVersion", input.Version)
	} else {
		logger.InfoContext(ctx, "run creation converged on existing run",
			"projectId", projectID, "runId", run.RunID)
	}
	return run, nil
}

// AdvanceRun is called immediately before a step's actual work. Exactly
// one concurrent caller gets started/resumed for a claimable step; every
// other caller sees a noop with the winner's observed status.
func (o *Orchestrator) AdvanceRun(ctx context.Context, runID, step string) (*Advance, error) {
	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, storageError(err)
	}
	if run == nil {
		return nil, newFlowError(FlowCodeRunNotFound, "run %s not found", runID)
	}
	if run.Terminal() {
		return nil, newFlowError(FlowCodeRunFinished, "run %s is %s and accepts no further work", runID, run.Status)
	}

	entry := stepstatus.Parse(run.Metrics)[step]
	switch entry.Status {
	case stepstatus.StatusCompleted:
		return &Advance{Action: ActionNoop, Run: run, Status: entry}, nil
	case stepstatus.StatusRunning:
		return &Advance{Action: ActionNoop, Run: run, Status: entry}, nil
	}

	action := ActionStarted
	if entry.Status == stepstatus.StatusFailed {
		action = ActionResumed
	}

	// Claim the step. StartedAt is reset on every (re)start so duration
	// measures the attempt that produced the outcome.
	now := time.Now()
	claimed := stepstatus.Entry{Status: stepstatus.StatusRunning, StartedAt: &now}
	updated, err := o.runs.TryStepTransition(ctx, run, step, claimed)
	if err != nil {
		if errors.Is(err, repo.ErrStepAlreadyRunning) ||
			errors.Is(err, repo.ErrStepAlreadyCompleted) ||
			errors.Is(err, repo.ErrVersionConflict) {
			// Lost the race; report the winner's state instead of erroring.
			fresh, ferr := o.runs.GetByID(ctx, runID)
			if ferr != nil {
				return nil, storageError(ferr)
			}
			if fresh == nil {
				return nil, newFlowError(FlowCodeRunNotFound, "run %s not found", runID)
			}
			return &Advance{Action: ActionNoop, Run: fresh, Status: stepstatus.Parse(fresh.Metrics)[step]}, nil
		}
		return nil, storageError(err)
	}

	// Best effort: the claim is committed even if this promotion loses.
	if updated.Status == model.RunStatusQueued {
		if promoted, perr := o.runs.SetRunning(ctx, updated); perr == nil {
			updated = promoted
			metrics.RunTransitions.WithLabelValues(model.RunStatusRunning).Inc()
		} else {
			logger.WarnContext(ctx, "run promotion to running lost a race",
				"runId", runID, "error", perr)
		}
	}

	metrics.StepTransitions.WithLabelValues(step, string(stepstatus.StatusRunning)).Inc()
	logger.InfoContext(ctx, "step advanced",
		"runId", runID, "step", step, "action", action)
	return &Advance{Action: action, Run: updated, Status: claimed}, nil
}

// MarkStepCompleted records a step's terminal success. Already-completed
// steps are a no-op; version races are retried.
func (o *Orchestrator) MarkStepCompleted(ctx context.Context, runID, step string) error {
	return o.finishStep(ctx, runID, step, stepstatus.StatusCompleted, nil)
}

// MarkStepFailed records a step's failure with its structured reason.
func (o *Orchestrator) MarkStepFailed(ctx context.Context, runID, step string, stepErr *stepstatus.StepError) error {
	return o.finishStep(ctx, runID, step, stepstatus.StatusFailed, stepErr)
}

func (o *Orchestrator) finishStep(ctx context.Context, runID, step string, to stepstatus.Status, stepErr *stepstatus.StepError) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		run, err := o.runs.GetByID(ctx, runID)
		if err != nil {
			return storageError(err)
		}
		if run == nil {
			return newFlowError(FlowCodeRunNotFound, "run %s not found", runID)
		}

		current := stepstatus.Parse(run.Metrics)[step]
		now := time.Now()
		entry := stepstatus.Entry{
			Status:     to,
			StartedAt:  current.StartedAt,
			FinishedAt: &now,
			Error:      stepErr,
		}

		_, err = o.runs.TryStepTransition(ctx, run, step, entry)
		switch {
		case err == nil:
			metrics.StepTransitions.WithLabelValues(step, string(to)).Inc()
			logger.InfoContext(ctx, "step finished",
				"runId", runID, "step", step, "status", string(to))
			return nil
		case errors.Is(err, repo.ErrStepAlreadyCompleted):
			return nil
		case errors.Is(err, repo.ErrVersionConflict):
			continue
		default:
			return storageError(err)
		}
	}
	return newFlowError(FlowCodeConflict, "step %s transition kept losing version races", step)
}

// MarkRunCompleted records the run's terminal success with its output.
func (o *Orchestrator) MarkRunCompleted(ctx context.Context, runID string, output []byte) error {
	return o.finishRun(ctx, runID, func(run *model.RunRecord) (*model.RunRecord, error) {
		return o.runs.SetSucceeded(ctx, run, output)
	}, model.RunStatusSucceeded)
}

// MarkRunFailed records the run's terminal failure.
func (o *Orchestrator) MarkRunFailed(ctx context.Context, runID, code, message string) error {
	return o.finishRun(ctx, runID, func(run *model.RunRecord) (*model.RunRecord, error) {
		return o.runs.SetFailed(ctx, run, code, message)
	}, model.RunStatusFailed)
}

func (o *Orchestrator) finishRun(ctx context.Context, runID string, apply func(*model.RunRecord) (*model.RunRecord, error), to string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		run, err := o.runs.GetByID(ctx, runID)
		if err != nil {
			return storageError(err)
		}
		if run == nil {
			return newFlowError(FlowCodeRunNotFound, "run %s not found", runID)
		}
		if run.Terminal() {
			return nil
		}

		if _, err := apply(run); err != nil {
			if errors.Is(err, repo.ErrVersionConflict) {
				continue
			}
			return storageError(err)
		}
		metrics.RunTransitions.WithLabelValues(to).Inc()
		logger.InfoContext(ctx, "run finished", "runId", runID, "status", to)
		return nil
	}
	return newFlowError(FlowCodeConflict, "run %s transition kept losing version races", runID)
}

// ReclaimStuckSteps returns steps stuck running past the lease timeout to
// pending so a later advancement can pick them up. Operator invoked; the
// state machine itself never reaps. Returns the reclaimed step names.
func (o *Orchestrator) ReclaimStuckSteps(ctx context.Context, runID string, leaseTimeout time.Duration) ([]string, error) {
	if leaseTimeout <= 0 {
		leaseTimeout = o.cfg.StepLeaseTimeout
	}

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, storageError(err)
	}
	if run == nil {
		return nil, newFlowError(FlowCodeRunNotFound, "run %s not found", runID)
	}

	reclaimed := []string{}
	cutoff := time.Now().Add(-leaseTimeout)
	for step, entry := range stepstatus.Parse(run.Metrics) {
		if entry.Status != stepstatus.StatusRunning {
			continue
		}
		if entry.StartedAt == nil || entry.StartedAt.After(cutoff) {
			continue
		}

		updated, terr := o.runs.TryStepTransition(ctx, run, step, stepstatus.Entry{Status: stepstatus.StatusPending})
		if terr != nil {
			if errors.Is(terr, repo.ErrVersionConflict) || errors.Is(terr, repo.ErrStepAlreadyCompleted) {
				continue
			}
			return reclaimed, storageError(terr)
		}
		run = updated
		reclaimed = append(reclaimed, step)
		logger.WarnContext(ctx, "reclaimed stuck step",
			"runId", runID, "step", step, "leaseTimeout", leaseTimeout.String())
	}
	return reclaimed, nil
}

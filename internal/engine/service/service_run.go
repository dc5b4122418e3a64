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

package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/insightrix/insightra/internal/engine/model"
	"github.com/insightrix/insightra/internal/engine/repo"
	"github.com/insightrix/insightra/internal/pkg/pipeline"
	"github.com/insightrix/insightra/internal/pkg/pipeline/stepstatus"
	"github.com/insightrix/insightra/pkg/logger"
	"github.com/insightrix/insightra/pkg/provider/generation"
	"github.com/insightrix/insightra/pkg/provider/search"
	"github.com/insightrix/insightra/pkg/resilient"
	"github.com/insightrix/insightra/pkg/safe"
)

// RunService drives the analytical pipeline: it asks the orchestrator for
// permission to run each step, performs the step's provider calls through
// the resilient executor, and reports the outcome back.
type RunService struct {
	flow       *pipeline.Orchestrator
	repos      *repo.Repositories
	generation *generation.Client
	search     *search.Client
	genExec    *resilient.Executor
	searchExec *resilient.Executor
}

func NewRunService(
	flow *pipeline.Orchestrator,
	repos *repo.Repositories,
	generationClient *generation.Client,
	searchClient *search.Client,
	genCfg generation.Config,
	searchCfg search.Config,
	limiter *resilient.Limiter,
) *RunService {
	genCfg.SetDefaults()
	searchCfg.SetDefaults()
	backoff := resilient.NewBackoffPolicy()
	return &RunService{
		flow:       flow,
		repos:      repos,
		generation: generationClient,
		search:     searchClient,
		genExec:    resilient.NewExecutor(resilient.Config{Timeout: genCfg.Timeout, MaxRetries: genCfg.MaxRetries}, backoff, limiter),
		searchExec: resilient.NewExecutor(resilient.Config{Timeout: searchCfg.Timeout, MaxRetries: searchCfg.MaxRetries}, backoff, limiter),
	}
}

// Trigger resolves the project's active run (creating one if needed) and
// starts pipeline execution in the background. The run record is returned
// immediately so callers can poll it.
func (s *RunService) Trigger(ctx context.Context, projectID string) (*model.RunRecord, error) {
	run, err := s.flow.GetOrCreateActiveRun(ctx, projectID, pipeline.Options{AllowCreate: true})
	if err != nil {
		return nil, err
	}

	runID := run.RunID
	safe.Go(func() {
		if err := s.Execute(context.Background(), runID); err != nil {
			logger.Errorw("pipeline execution stopped", "runId", runID, "error", err)
		}
	})
	return run, nil
}

// Execute walks the pipeline steps in order for one run. Completed steps
// are skipped, a step owned by another worker ends this walk, a failed
// step records its reason and stops. Safe to call repeatedly; the
// orchestrator gatekeeps every transition.
func (s *RunService) Execute(ctx context.Context, runID string) error {
	run, err := s.repos.Run.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return &pipeline.FlowError{Code: pipeline.FlowCodeRunNotFound, Message: "run " + runID + " not found"}
	}

	outputs := loadOutputs(run.Output)

	for _, step := range PipelineSteps {
		adv, err := s.flow.AdvanceRun(ctx, runID, step)
		if err != nil {
			return err
		}
		if adv.Action == pipeline.ActionNoop {
			if adv.Status.Status == stepstatus.StatusCompleted {
				continue
			}
			logger.InfoContext(ctx, "step owned elsewhere, yielding",
				"runId", runID, "step", step, "status", string(adv.Status.Status))
			return nil
		}

		result, stepErr := s.runStep(ctx, adv.Run, step, outputs)
		if stepErr != nil {
			return s.recordStepFailure(ctx, runID, step, stepErr)
		}

		outputs[step] = result
		s.persistOutputs(ctx, runID, outputs)
		if err := s.flow.MarkStepCompleted(ctx, runID, step); err != nil {
			return err
		}
	}

	final, err := sonic.Marshal(outputs)
	if err != nil {
		return err
	}
	return s.flow.MarkRunCompleted(ctx, runID, final)
}

// GetRun returns one run, or nil when unknown.
func (s *RunService) GetRun(ctx context.Context, runID string) (*model.RunRecord, error) {
	return s.repos.Run.GetByID(ctx, runID)
}

// GetLatestRun returns the project's most recent run, or nil.
func (s *RunService) GetLatestRun(ctx context.Context, projectID string) (*model.RunRecord, error) {
	return s.repos.Run.GetLatestForProject(ctx, projectID)
}

// CreateInput appends a new input version for the project.
func (s *RunService) CreateInput(ctx context.Context, projectID string, payload []byte) (*model.ProjectInput, error) {
	return s.repos.Input.Create(ctx, projectID, payload)
}

// Reclaim returns steps stuck running past the lease back to pending.
func (s *RunService) Reclaim(ctx context.Context, runID string, leaseTimeout time.Duration) ([]string, error) {
	return s.flow.ReclaimStuckSteps(ctx, runID, leaseTimeout)
}

// recordStepFailure writes the step's structured failure. A fatal error
// class also fails the run: retries cannot fix missing credentials or a
// rejected request, so the run should not sit running forever.
func (s *RunService) recordStepFailure(ctx context.Context, runID, step string, stepErr error) error {
	class := resilient.Classify(stepErr)
	detail := ""
	var callErr *resilient.CallError
	if errors.As(stepErr, &callErr) {
		detail = callErr.RequestID
	}

	if err := s.flow.MarkStepFailed(ctx, runID, step, &stepstatus.StepError{
		Code:    string(class),
		Message: stepErr.Error(),
		Detail:  detail,
	}); err != nil {
		logger.ErrorContext(ctx, "failed to record step failure",
			"runId", runID, "step", step, "error", err)
	}

	if !class.Retryable() {
		if err := s.flow.MarkRunFailed(ctx, runID, string(class), stepErr.Error()); err != nil {
			logger.ErrorContext(ctx, "failed to record run failure",
				"runId", runID, "error", err)
		}
	}
	return stepErr
}

// persistOutputs stores partial step outputs so a resumed run does not
// redo finished work. Best effort under version races.
func (s *RunService) persistOutputs(ctx context.Context, runID string, outputs map[string]json.RawMessage) {
	encoded, err := sonic.Marshal(outputs)
	if err != nil {
		logger.ErrorContext(ctx, "encode partial outputs", "runId", runID, "error", err)
		return
	}

	for attempt := 0; attempt < 3; attempt++ {
		run, err := s.repos.Run.GetByID(ctx, runID)
		if err != nil || run == nil {
			logger.WarnContext(ctx, "partial output reload failed", "runId", runID, "error", err)
			return
		}
		_, err = s.repos.Run.UpdateOutput(ctx, run, encoded)
		if err == nil {
			return
		}
		if !errors.Is(err, repo.ErrVersionConflict) {
			logger.WarnContext(ctx, "partial output write failed", "runId", runID, "error", err)
			return
		}
	}
	logger.WarnContext(ctx, "partial output write kept losing version races", "runId", runID)
}

func loadOutputs(raw []byte) map[string]json.RawMessage {
	outputs := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &outputs); err != nil {
			outputs = map[string]json.RawMessage{}
		}
	}
	return outputs
}

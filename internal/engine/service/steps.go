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
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/insightrix/insightra/internal/engine/model"
	"github.com/insightrix/insightra/pkg/provider"
	"github.com/insightrix/insightra/pkg/provider/generation"
	"github.com/insightrix/insightra/pkg/provider/search"
	"github.com/insightrix/insightra/pkg/resilient"
	"golang.org/x/sync/errgroup"
)

// Pipeline step names, executed in this order.
const (
	StepEvidence  = "evidence"
	StepSynthesis = "synthesis"
	StepRanking   = "ranking"
)

// PipelineSteps is the ordered step list for one run.
var PipelineSteps = []string{StepEvidence, StepSynthesis, StepRanking}

// runStep performs the actual work of one step and returns its output as
// a JSON fragment. Every outbound call goes through the resilient
// executor; the returned error is the executor's final error, already
// classified.
func (s *RunService) runStep(ctx context.Context, run *model.RunRecord, step string, outputs map[string]json.RawMessage) (json.RawMessage, error) {
	switch step {
	case StepEvidence:
		return s.gatherEvidence(ctx, run)
	case StepSynthesis:
		return s.synthesize(ctx, outputs[StepEvidence])
	case StepRanking:
		return s.rank(ctx, outputs[StepSynthesis])
	default:
		return nil, fmt.Errorf("unknown pipeline step %q", step)
	}
}

func (s *RunService) gatherEvidence(ctx context.Context, run *model.RunRecord) (json.RawMessage, error) {
	topic, err := s.topicFor(ctx, run)
	if err != nil {
		return nil, err
	}

	// Query variants run concurrently; the admission limiter still bounds
	// in-flight search calls.
	queries := evidenceQueries(topic)
	hits := make([][]provider.SearchItem, len(queries))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, query := range queries {
		eg.Go(func() error {
			res, err := resilient.Do(egCtx, s.searchExec, search.ProviderName, func(ctx context.Context) (*provider.SearchResult, error) {
				return s.search.Search(ctx, query)
			})
			if err != nil {
				return err
			}
			hits[i] = res.Results
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return sonic.Marshal(mergeEvidence(hits))
}

func evidenceQueries(topic string) []string {
	return []string{topic, topic + " recent findings"}
}

// mergeEvidence flattens variant results, dropping duplicate URLs while
// keeping first-seen order.
func mergeEvidence(hits [][]provider.SearchItem) []provider.SearchItem {
	seen := make(map[string]struct{})
	merged := make([]provider.SearchItem, 0)
	for _, items := range hits {
		for _, item := range items {
			if _, ok := seen[item.URL]; ok {
				continue
			}
			seen[item.URL] = struct{}{}
			merged = append(merged, item)
		}
	}
	return merged
}

func (s *RunService) synthesize(ctx context.Context, evidence json.RawMessage) (json.RawMessage, error) {
	prompt := buildSynthesisPrompt(evidence)

	res, err := resilient.Do(ctx, s.genExec, generation.ProviderName, func(ctx context.Context) (*provider.GenerationResult, error) {
		return s.generation.Complete(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(res.Text)
}

func (s *RunService) rank(ctx context.Context, synthesis json.RawMessage) (json.RawMessage, error) {
	prompt := buildRankingPrompt(synthesis)

	res, err := resilient.Do(ctx, s.genExec, generation.ProviderName, func(ctx context.Context) (*provider.GenerationResult, error) {
		return s.generation.Complete(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(res.Text)
}

// topicFor resolves the search topic from the input version the run was
// pinned to.
func (s *RunService) topicFor(ctx context.Context, run *model.RunRecord) (string, error) {
	input, err := s.repos.Input.GetVersion(ctx, run.ProjectID, run.InputVersion)
	if err != nil {
		return "", err
	}
	if input == nil {
		return "", fmt.Errorf("input version %d for project %s is gone", run.InputVersion, run.ProjectID)
	}

	var payload struct {
		Topic string `json:"topic"`
	}
	if err := sonic.Unmarshal(input.Payload, &payload); err == nil && strings.TrimSpace(payload.Topic) != "" {
		return payload.Topic, nil
	}
	return run.ProjectID, nil
}

func buildSynthesisPrompt(evidence json.RawMessage) string {
	var b strings.Builder
	b.WriteString("Synthesize the following evidence into key findings with citations.\n\nEvidence:\n")
	b.Write(evidence)
	return b.String()
}

func buildRankingPrompt(synthesis json.RawMessage) string {
	var b strings.Builder
	b.WriteString("Rank the following findings by strength of supporting evidence, strongest first.\n\nFindings:\n")
	b.Write(synthesis)
	return b.String()
}

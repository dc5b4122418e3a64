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
	"github.com/google/wire"
	"github.com/insightrix/insightra/internal/engine/repo"
	"github.com/insightrix/insightra/internal/pkg/pipeline"
	"github.com/insightrix/insightra/pkg/provider/generation"
	"github.com/insightrix/insightra/pkg/provider/search"
	"github.com/insightrix/insightra/pkg/resilient"
)

// Services bundles the service layer behind one injection point.
type Services struct {
	Run *RunService
}

func NewServices(run *RunService) *Services {
	return &Services{Run: run}
}

// ProvideServices wires the run service from its collaborators.
func ProvideServices(
	repos *repo.Repositories,
	flow *pipeline.Orchestrator,
	generationClient *generation.Client,
	searchClient *search.Client,
	genCfg generation.Config,
	searchCfg search.Config,
	limiter *resilient.Limiter,
) *Services {
	return NewServices(NewRunService(flow, repos, generationClient, searchClient, genCfg, searchCfg, limiter))
}

var ProviderSet = wire.NewSet(ProvideServices)

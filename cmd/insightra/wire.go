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

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/insightrix/insightra/internal/engine/bootstrap"
	"github.com/insightrix/insightra/internal/engine/config"
	"github.com/insightrix/insightra/internal/engine/repo"
	"github.com/insightrix/insightra/internal/engine/router"
	"github.com/insightrix/insightra/internal/engine/service"
	"github.com/insightrix/insightra/internal/pkg/pipeline"
	"github.com/insightrix/insightra/pkg/database"
	"github.com/insightrix/insightra/pkg/logger"
	"github.com/insightrix/insightra/pkg/metrics"
	"github.com/insightrix/insightra/pkg/provider"
	"github.com/insightrix/insightra/pkg/provider/generation"
	"github.com/insightrix/insightra/pkg/provider/search"
	"github.com/insightrix/insightra/pkg/shutdown"
)

func initApp(configPath string) (*bootstrap.App, func(), error) {
	panic(wire.Build(
		config.ProviderSet,
		logger.ProviderSet,
		database.ProviderSet,
		metrics.ProviderSet,
		repo.ProviderSet,
		pipeline.ProviderSet,
		provider.ProviderSet,
		generation.ProviderSet,
		search.ProviderSet,
		service.ProviderSet,
		router.ProviderSet,
		shutdown.ProviderSet,
		bootstrap.NewApp,
	))
}

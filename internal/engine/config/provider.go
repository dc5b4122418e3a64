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

package config

import (
	"github.com/google/wire"

	"github.com/insightrix/insightra/internal/pkg/pipeline"
	"github.com/insightrix/insightra/pkg/database"
	"github.com/insightrix/insightra/pkg/http"
	"github.com/insightrix/insightra/pkg/logger"
	"github.com/insightrix/insightra/pkg/metrics"
	"github.com/insightrix/insightra/pkg/provider/generation"
	"github.com/insightrix/insightra/pkg/provider/search"
	"github.com/insightrix/insightra/pkg/resilient"
)

// ProviderSet exposes the loaded configuration and its sections to Wire.
var ProviderSet = wire.NewSet(
	NewConf,
	ProvideLogConf,
	ProvideHttpConf,
	ProvideDatabaseConf,
	ProvideMetricsConf,
	ProvideGenerationConf,
	ProvideSearchConf,
	ProvidePipelineConf,
	ProvideLimiter,
)

func ProvideLogConf(c *AppConfig) *logger.Conf {
	return &c.Log
}

func ProvideHttpConf(c *AppConfig) *http.Http {
	return &c.Http
}

func ProvideDatabaseConf(c *AppConfig) database.Database {
	return c.Database
}

func ProvideMetricsConf(c *AppConfig) metrics.MetricsConfig {
	return c.Metrics
}

func ProvideGenerationConf(c *AppConfig) generation.Config {
	return c.Providers.Generation
}

func ProvideSearchConf(c *AppConfig) search.Config {
	return c.Providers.Search
}

func ProvidePipelineConf(c *AppConfig) pipeline.Config {
	return c.Pipeline
}

func ProvideLimiter(c *AppConfig) *resilient.Limiter {
	return resilient.NewLimiter(c.Limiter.DefaultLimit, c.Limiter.PerProvider)
}

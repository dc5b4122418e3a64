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
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/insightrix/insightra/internal/pkg/pipeline"
	"github.com/insightrix/insightra/pkg/database"
	"github.com/insightrix/insightra/pkg/http"
	"github.com/insightrix/insightra/pkg/logger"
	"github.com/insightrix/insightra/pkg/metrics"
	"github.com/insightrix/insightra/pkg/provider/generation"
	"github.com/insightrix/insightra/pkg/provider/search"
	"github.com/insightrix/insightra/pkg/trace"
)

// ProvidersConfig holds the external-service adapter settings.
type ProvidersConfig struct {
	Generation generation.Config `mapstructure:"generation"`
	Search     search.Config     `mapstructure:"search"`
}

// LimiterConfig bounds concurrent in-flight calls per provider.
type LimiterConfig struct {
	DefaultLimit int            `mapstructure:"defaultLimit"`
	PerProvider  map[string]int `mapstructure:"perProvider"`
}

func (l *LimiterConfig) SetDefaults() {
	if l.DefaultLimit <= 0 {
		l.DefaultLimit = 4
	}
}

type AppConfig struct {
	Log       logger.Conf           `mapstructure:"log"`
	Http      http.Http             `mapstructure:"http"`
	Database  database.Database     `mapstructure:"database"`
	Metrics   metrics.MetricsConfig `mapstructure:"metrics"`
	Trace     trace.TraceConfig     `mapstructure:"trace"`
	Providers ProvidersConfig       `mapstructure:"providers"`
	Pipeline  pipeline.Config       `mapstructure:"pipeline"`
	Limiter   LimiterConfig         `mapstructure:"limiter"`
}

var (
	cfg  AppConfig
	mu   sync.RWMutex
	once sync.Once
)

func NewConf(confDir string) *AppConfig {
	once.Do(func() {
		var err error
		cfg, err = LoadConfigFile(confDir)
		if err != nil {
			panic(fmt.Sprintf("load config file error: %s", err))
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return &cfg
}

// GetConfig returns a snapshot of the current configuration, safe to call
// while a hot reload is in flight.
func GetConfig() AppConfig {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadConfigFile reads the configuration and keeps watching it for
// changes.
func LoadConfigFile(confDir string) (AppConfig, error) {
	config := viper.New()
	config.SetConfigFile(confDir)
	if err := config.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("failed to read configuration file: %v", err)
	}

	config.WatchConfig()
	config.OnConfigChange(func(e fsnotify.Event) {
		logger.Infow("configuration changed, re-reading", "file", e.Name)
		if err := config.ReadInConfig(); err != nil {
			logger.Errorw("failed to re-read configuration file", "error", err, "file", e.Name)
			return
		}
		mu.Lock()
		if err := config.Unmarshal(&cfg); err != nil {
			mu.Unlock()
			logger.Errorw("failed to unmarshal configuration file", "error", err, "file", e.Name)
			return
		}
		applyDefaults(&cfg)
		mu.Unlock()
		logger.Infow("configuration reloaded successfully", "file", e.Name)
	})

	if err := config.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal configuration file: %v", err)
	}
	applyDefaults(&cfg)
	logger.Infow("config file loaded", "path", confDir)

	return cfg, nil
}

func applyDefaults(c *AppConfig) {
	c.Http.SetDefaults()
	c.Database.SetDefaults()
	c.Metrics.SetDefaults()
	c.Trace.SetDefaults()
	c.Providers.Generation.SetDefaults()
	c.Providers.Search.SetDefaults()
	c.Pipeline.SetDefaults()
	c.Limiter.SetDefaults()
}

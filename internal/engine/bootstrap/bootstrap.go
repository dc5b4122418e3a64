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

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/insightrix/insightra/internal/engine/config"
	"github.com/insightrix/insightra/internal/engine/repo"
	"github.com/insightrix/insightra/internal/engine/router"
	"github.com/insightrix/insightra/pkg/database"
	"github.com/insightrix/insightra/pkg/http/middleware"
	"github.com/insightrix/insightra/pkg/logger"
	"github.com/insightrix/insightra/pkg/metrics"
	"github.com/insightrix/insightra/pkg/safe"
	"github.com/insightrix/insightra/pkg/shutdown"
	"github.com/insightrix/insightra/pkg/trace"
)

type App struct {
	HttpApp       *fiber.App
	MetricsServer *metrics.Server
	Logger        *logger.Logger
	AppConf       *config.AppConfig
	DB            database.IDatabase
	Repos         *repo.Repositories
	ShutdownMgr   *shutdown.Manager
}

// InitAppFunc init app function type
type InitAppFunc func(configPath string) (*App, func(), error)

func NewApp(
	rt *router.Router,
	log *logger.Logger,
	metricsServer *metrics.Server,
	appConf *config.AppConfig,
	db database.IDatabase,
	repos *repo.Repositories,
	shutdownMgr *shutdown.Manager,
) (*App, func(), error) {
	if metricsServer != nil {
		if err := middleware.RegisterHttpMetrics(metricsServer.GetRegistry()); err != nil {
			logger.Warnw("Failed to register HTTP metrics", "error", err)
		}
	}

	app := &App{
		HttpApp:       rt.App(),
		MetricsServer: metricsServer,
		Logger:        log,
		AppConf:       appConf,
		DB:            db,
		Repos:         repos,
		ShutdownMgr:   shutdownMgr,
	}

	cleanup := func() {
		if metricsServer != nil {
			logger.Info("Shutting down metrics server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				logger.Errorw("Failed to stop metrics server", "error", err)
			}
		}

		logger.Info("Shutting down OpenTelemetry tracing...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Failed to shutdown OpenTelemetry tracing", "error", err)
		}

		if db != nil {
			if err := db.Close(); err != nil {
				logger.Errorw("Failed to close database", "error", err)
			}
		}
	}

	return app, cleanup, nil
}

// Bootstrap init app, return App instance and cleanup function
func Bootstrap(configFile string, initApp InitAppFunc) (*App, func(), *config.AppConfig, error) {
	app, cleanup, err := initApp(configFile)
	if err != nil {
		return nil, nil, nil, err
	}

	appConf := app.AppConf

	// Tracing comes up before any listener so middleware sees a live
	// provider.
	if err := trace.Init(appConf.Trace); err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, nil, fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}

	return app, cleanup, appConf, nil
}

// Run start app and wait for exit signal, then gracefully shutdown
func Run(app *App, cleanup func()) {
	appConf := app.AppConf

	if app.MetricsServer != nil {
		if err := app.MetricsServer.Start(); err != nil {
			logger.Errorw("Metrics server failed", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	safe.Go(func() {
		addr := fmt.Sprintf("%s:%d", appConf.Http.Host, appConf.Http.Port)
		logger.Infow("HTTP listener started", "address", addr)
		if err := app.HttpApp.Listen(addr); err != nil {
			logger.Errorw("HTTP listener failed", "address", addr, "error", err)
		}
	})

	select {
	case sig := <-quit:
		logger.Infow("Received OS signal, shutting down gracefully...", "signal", sig.String())
		if app.ShutdownMgr != nil {
			app.ShutdownMgr.Shutdown()
		}
	case <-app.ShutdownMgr.Wait():
		logger.Info("Received shutdown request, shutting down gracefully...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := app.HttpApp.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorw("HTTP server shutdown error", "error", err)
	} else {
		logger.Info("HTTP server shut down gracefully")
	}

	cleanup()

	logger.Info("Server shutdown complete")
}

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

package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/wire"
	"github.com/insightrix/insightra/internal/engine/service"
	"github.com/insightrix/insightra/pkg/http"
	"github.com/insightrix/insightra/pkg/http/middleware"
)

type Router struct {
	Http     *http.Http
	Services *service.Services
}

func NewRouter(httpCfg *http.Http, services *service.Services) *Router {
	return &Router{Http: httpCfg, Services: services}
}

// App builds the fiber application with every route mounted.
func (rt *Router) App() *fiber.App {
	rt.Http.SetDefaults()
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(rt.Http.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(rt.Http.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(rt.Http.IdleTimeout) * time.Second,
		BodyLimit:    rt.Http.BodyLimit,
	})
	rt.Register(app)
	return app
}

// Register mounts every route on the app.
func (rt *Router) Register(app *fiber.App) {
	app.Use(middleware.CorsMiddleware())
	app.Use(middleware.HttpMetricsMiddleware())
	if rt.Http.AccessLog {
		app.Use(middleware.AccessLogMiddleware())
	}

	app.Get("/healthz", rt.health)

	api := app.Group("/api/v1")
	rt.runRouter(api)
}

func (rt *Router) health(c *fiber.Ctx) error {
	return http.WithRep(c, fiber.Map{"status": "ok"})
}

var ProviderSet = wire.NewSet(NewRouter)

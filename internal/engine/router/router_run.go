// Copyright 2026 Insightra Authors.
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
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/insightrix/insightra/internal/pkg/pipeline"
	"github.com/insightrix/insightra/pkg/http"
)

func (rt *Router) runRouter(r fiber.Router) {
	projects := r.Group("/projects")
	{
		projects.Post("/:projectId/inputs", rt.createInput)
		projects.Post("/:projectId/runs", rt.triggerRun)
		projects.Get("/:projectId/runs/latest", rt.getLatestRun)
	}

	runs := r.Group("/runs")
	{
		runs.Get("/:runId", rt.getRun)
		runs.Post("/:runId/reclaim", rt.reclaimRun)
	}
}

func (rt *Router) createInput(c *fiber.Ctx) error {
	projectId := strings.TrimSpace(c.Params("projectId"))
	if projectId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "project id is required", c.Path())
	}
	payload := c.Body()
	if len(payload) == 0 {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "input payload is required", c.Path())
	}

	input, err := rt.Services.Run.CreateInput(c.Context(), projectId, payload)
	if err != nil {
		return rt.flowErr(c, err)
	}
	return http.WithRep(c, fiber.Map{
		"projectId": input.ProjectID,
		"version":   input.Version,
	})
}

func (rt *Router) triggerRun(c *fiber.Ctx) error {
	projectId := strings.TrimSpace(c.Params("projectId"))
	if projectId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "project id is required", c.Path())
	}

	run, err := rt.Services.Run.Trigger(c.Context(), projectId)
	if err != nil {
		return rt.flowErr(c, err)
	}
	return http.WithRep(c, run)
}

func (rt *Router) getRun(c *fiber.Ctx) error {
	runId := strings.TrimSpace(c.Params("runId"))
	if runId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "run id is required", c.Path())
	}

	run, err := rt.Services.Run.GetRun(c.Context(), runId)
	if err != nil {
		return rt.flowErr(c, err)
	}
	if run == nil {
		return http.WithRepErrMsg(c, http.NotFound.Code, "run not found", c.Path())
	}
	return http.WithRep(c, run)
}

func (rt *Router) getLatestRun(c *fiber.Ctx) error {
	projectId := strings.TrimSpace(c.Params("projectId"))
	if projectId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "project id is required", c.Path())
	}

	run, err := rt.Services.Run.GetLatestRun(c.Context(), projectId)
	if err != nil {
		return rt.flowErr(c, err)
	}
	if run == nil {
		return http.WithRepErrMsg(c, http.NotFound.Code, "project has no runs", c.Path())
	}
	return http.WithRep(c, run)
}

func (rt *Router) reclaimRun(c *fiber.Ctx) error {
	runId := strings.TrimSpace(c.Params("runId"))
	if runId == "" {
		return http.WithRepErrMsg(c, http.BadRequest.Code, "run id is required", c.Path())
	}

	var req struct {
		LeaseTimeoutSeconds int `json:"leaseTimeoutSeconds"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return http.WithRepErrMsg(c, http.RequestParameterParsingFailed.Code, http.RequestParameterParsingFailed.Msg, c.Path())
		}
	}

	reclaimed, err := rt.Services.Run.Reclaim(c.Context(), runId, time.Duration(req.LeaseTimeoutSeconds)*time.Second)
	if err != nil {
		return rt.flowErr(c, err)
	}
	return http.WithRep(c, fiber.Map{"reclaimed": reclaimed})
}

// flowErr maps orchestrator failures to stable API responses.
func (rt *Router) flowErr(c *fiber.Ctx, err error) error {
	var flowErr *pipeline.FlowError
	if errors.As(err, &flowErr) {
		code := http.Failed.Code
		switch flowErr.Code {
		case pipeline.FlowCodeRunNotFound, pipeline.FlowCodeNoActiveRun:
			code = http.NotFound.Code
		case pipeline.FlowCodeNoInputs, pipeline.FlowCodeRunFinished, pipeline.FlowCodeConflict:
			code = http.Conflict.Code
		}
		return http.WithRepErrMsg(c, code, flowErr.Message, c.Path())
	}
	return http.WithRepErrMsg(c, http.Failed.Code, err.Error(), c.Path())
}

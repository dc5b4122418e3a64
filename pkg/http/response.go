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

package http

import (
	"github.com/gofiber/fiber/v2"
)

// Status pairs a stable API code with its default message.
type Status struct {
	Code int
	Msg  string
}

var (
	Success                       = Status{Code: 0, Msg: "success"}
	Failed                        = Status{Code: 500, Msg: "request failed"}
	BadRequest                    = Status{Code: 400, Msg: "bad request"}
	NotFound                      = Status{Code: 404, Msg: "not found"}
	Conflict                      = Status{Code: 409, Msg: "conflict"}
	RequestParameterParsingFailed = Status{Code: 422, Msg: "request parameter parsing failed"}
)

// Response is the envelope every handler returns.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

// WithRep writes a success envelope.
func WithRep(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusOK).JSON(Response{
		Code: Success.Code,
		Msg:  Success.Msg,
		Data: data,
	})
}

// WithRepErrMsg writes an error envelope. Codes in the HTTP status range
// double as the transport status; anything else maps to 500.
func WithRepErrMsg(c *fiber.Ctx, code int, msg string, path string) error {
	status := fiber.StatusInternalServerError
	if code >= 400 && code < 600 {
		status = code
	}
	return c.Status(status).JSON(Response{
		Code: code,
		Msg:  msg,
		Path: path,
	})
}

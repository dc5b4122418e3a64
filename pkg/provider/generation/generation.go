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

package generation

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/wire"
	"github.com/insightrix/insightra/pkg/provider"
	"github.com/insightrix/insightra/pkg/resilient"
)

// ProviderName labels generation-service calls in logs, metrics, and
// admission control.
const ProviderName = "generation"

// ProviderSet is the Wire provider set for the generation adapter.
var ProviderSet = wire.NewSet(NewClient)

// Config holds generation-service settings.
type Config struct {
	APIKey      string        `mapstructure:"apiKey"`
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"maxTokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"maxRetries"`
	Concurrency int           `mapstructure:"concurrency"`
}

func (c *Config) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "https://api.openai.com"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 2
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
}

// Client is the generation-service adapter. It exposes exactly one
// single-attempt operation and is invoked only through the resilient
// executor. The HTTP client is constructed by bootstrap and passed in.
type Client struct {
	cfg  Config
	http *resty.Client
}

func NewClient(cfg Config, httpClient *resty.Client) *Client {
	cfg.SetDefaults()
	return &Client{cfg: cfg, http: httpClient}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type upstreamError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete performs one attempt against the generation service and
// normalizes the outcome.
func (c *Client) Complete(ctx context.Context, prompt string) (*provider.GenerationResult, error) {
	requestID := resilient.RequestIDFrom(ctx)

	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, &resilient.CallError{
			Class:     resilient.ClassConfiguration,
			Provider:  ProviderName,
			Message:   "generation api key is not configured",
			RequestID: requestID,
		}
	}

	body := completionRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(strings.TrimRight(c.cfg.Endpoint, "/") + "/v1/chat/completions")
	if err != nil {
		return nil, &resilient.CallError{
			Class:     resilient.Classify(err),
			Provider:  ProviderName,
			Message:   err.Error(),
			RequestID: requestID,
		}
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &resilient.CallError{
			Class:     resilient.ClassFromStatus(resp.StatusCode()),
			Provider:  ProviderName,
			Status:    resp.StatusCode(),
			Message:   upstreamMessage(resp.Body()),
			RequestID: requestID,
		}
	}

	var parsed completionResponse
	if err := sonic.Unmarshal(resp.Body(), &parsed); err != nil || len(parsed.Choices) == 0 {
		return nil, &resilient.CallError{
			Class:     resilient.ClassUnexpected,
			Provider:  ProviderName,
			Status:    resp.StatusCode(),
			Message:   "generation response has no usable completion",
			RequestID: requestID,
		}
	}

	return &provider.GenerationResult{
		Text: parsed.Choices[0].Message.Content,
		Usage: &provider.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}

// upstreamMessage extracts the provider's error message, falling back to
// the raw body.
func upstreamMessage(body []byte) string {
	var parsed upstreamError
	if err := sonic.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "upstream request failed"
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return msg
}

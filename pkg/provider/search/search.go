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

package search

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/google/wire"
	"github.com/insightrix/insightra/pkg/provider"
	"github.com/insightrix/insightra/pkg/resilient"
)

// ProviderName labels search-service calls in logs, metrics, and
// admission control.
const ProviderName = "search"

// ProviderSet is the Wire provider set for the search adapter.
var ProviderSet = wire.NewSet(NewClient)

// Config holds web-search service settings.
type Config struct {
	APIKey      string        `mapstructure:"apiKey"`
	Endpoint    string        `mapstructure:"endpoint"`
	MaxResults  int           `mapstructure:"maxResults"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"maxRetries"`
	Concurrency int           `mapstructure:"concurrency"`
}

func (c *Config) SetDefaults() {
	if c.MaxResults <= 0 {
		c.MaxResults = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 2
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
}

// Client is the web-search adapter. Single-attempt; retries, timeouts,
// and admission belong to the resilient executor.
type Client struct {
	cfg  Config
	http *resty.Client
}

func NewClient(cfg Config, httpClient *resty.Client) *Client {
	cfg.SetDefaults()
	return &Client{cfg: cfg, http: httpClient}
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// Search performs one attempt against the search service and normalizes
// the outcome.
func (c *Client) Search(ctx context.Context, query string) (*provider.SearchResult, error) {
	requestID := resilient.RequestIDFrom(ctx)

	if strings.TrimSpace(c.cfg.Endpoint) == "" {
		return nil, &resilient.CallError{
			Class:     resilient.ClassConfiguration,
			Provider:  ProviderName,
			Message:   "search endpoint is not configured",
			RequestID: requestID,
		}
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, &resilient.CallError{
			Class:     resilient.ClassConfiguration,
			Provider:  ProviderName,
			Message:   "search api key is not configured",
			RequestID: requestID,
		}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.cfg.APIKey).
		SetQueryParam("q", query).
		SetQueryParam("count", strconv.Itoa(c.cfg.MaxResults)).
		Get(strings.TrimRight(c.cfg.Endpoint, "/") + "/v1/search")
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
			Message:   strings.TrimSpace(string(resp.Body())),
			RequestID: requestID,
		}
	}

	var parsed searchResponse
	if err := sonic.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, &resilient.CallError{
			Class:     resilient.ClassUnexpected,
			Provider:  ProviderName,
			Status:    resp.StatusCode(),
			Message:   "search response is not valid json",
			RequestID: requestID,
		}
	}

	out := &provider.SearchResult{Results: make([]provider.SearchItem, 0, len(parsed.Results))}
	for _, r := range parsed.Results {
		out.Results = append(out.Results, provider.SearchItem{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}

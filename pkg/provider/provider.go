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

// Package provider holds the normalized request/response types shared by
// all external-service adapters. Code above the resilient executor deals
// only in these types; the adapters are the only code aware of
// provider-specific wire shapes.
package provider

import (
	"github.com/go-resty/resty/v2"
	"github.com/google/wire"
)

// ProviderSet is the Wire provider set for the shared HTTP client.
var ProviderSet = wire.NewSet(NewRestyClient)

// Usage reports token accounting where the upstream service exposes it.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// GenerationResult is the normalized response of a text-generation call.
type GenerationResult struct {
	Text  string `json:"text"`
	Usage *Usage `json:"usage,omitempty"`
}

// SearchItem is one normalized web-search hit.
type SearchItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// SearchResult is the normalized response of a web-search call.
type SearchResult struct {
	Results []SearchItem `json:"results"`
}

// NewRestyClient builds the shared outbound HTTP client. The client
// carries no timeout of its own; the resilient executor owns the budget
// for every attempt.
func NewRestyClient() *resty.Client {
	client := resty.New()
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	return client
}

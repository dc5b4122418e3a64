package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/insightrix/insightra/pkg/provider"
	"github.com/insightrix/insightra/pkg/resilient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{APIKey: "test-key", Endpoint: srv.URL, MaxResults: 3}, provider.NewRestyClient())
}

func TestSearchNormalizesResults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "solid state batteries" {
			t.Errorf("query not forwarded, got %q", got)
		}
		if got := r.URL.Query().Get("count"); got != "3" {
			t.Errorf("count not forwarded, got %q", got)
		}
		_, _ = w.Write([]byte(`{"results": [
			{"title": "A", "url": "https://a.example", "snippet": "alpha"},
			{"title": "B", "url": "https://b.example", "snippet": "beta"}
		]}`))
	})

	got, err := client.Search(context.Background(), "solid state batteries")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(got.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(got.Results))
	}
	if got.Results[0].URL != "https://a.example" || got.Results[1].Snippet != "beta" {
		t.Fatalf("results not normalized: %+v", got.Results)
	}
}

func TestSearchMissingEndpointIsConfigurationError(t *testing.T) {
	client := NewClient(Config{APIKey: "k"}, provider.NewRestyClient())

	_, err := client.Search(context.Background(), "anything")
	var callErr *resilient.CallError
	if !errors.As(err, &callErr) || callErr.Class != resilient.ClassConfiguration {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSearchServerErrorIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("backend unavailable"))
	})

	_, err := client.Search(context.Background(), "anything")
	var callErr *resilient.CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected CallError, got %v", err)
	}
	if callErr.Class != resilient.ClassServer || !callErr.Class.Retryable() {
		t.Fatalf("503 should classify retryable server, got %+v", callErr)
	}
	if callErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("status not preserved: %d", callErr.Status)
	}
}

func TestSearchUnauthorizedIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Search(context.Background(), "anything")
	var callErr *resilient.CallError
	if !errors.As(err, &callErr) || callErr.Class != resilient.ClassClient {
		t.Fatalf("expected client error, got %v", err)
	}
	if callErr.Class.Retryable() {
		t.Fatalf("401 must not retry")
	}
}

func TestSearchMalformedBodyIsUnexpected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	})

	_, err := client.Search(context.Background(), "anything")
	var callErr *resilient.CallError
	if !errors.As(err, &callErr) || callErr.Class != resilient.ClassUnexpected {
		t.Fatalf("expected unexpected classification, got %v", err)
	}
}

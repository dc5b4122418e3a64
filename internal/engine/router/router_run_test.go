package router

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/insightrix/insightra/internal/engine/model"
	"github.com/insightrix/insightra/internal/engine/repo"
	"github.com/insightrix/insightra/internal/engine/service"
	"github.com/insightrix/insightra/internal/pkg/pipeline"
	"github.com/insightrix/insightra/pkg/database"
	httppkg "github.com/insightrix/insightra/pkg/http"
	"github.com/insightrix/insightra/pkg/provider"
	"github.com/insightrix/insightra/pkg/provider/generation"
	"github.com/insightrix/insightra/pkg/provider/search"
	"github.com/insightrix/insightra/pkg/resilient"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	upstream := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if strings.Contains(r.URL.Path, "chat") {
			_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "ranked findings"}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"title": "A", "url": "https://a", "snippet": "s"}]}`))
	}))
	t.Cleanup(upstream.Close)

	db, err := database.NewManager(database.Database{
		Driver: "sqlite",
		SQLite: database.SQLiteConfig{Path: "file:" + t.Name() + "?mode=memory&cache=shared"},
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Database().AutoMigrate(&model.RunRecord{}, &model.ProjectInput{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repos := repo.NewRepositories(db)
	flow := pipeline.NewOrchestrator(repos, pipeline.Config{PipelineVersion: "v1"})
	httpClient := provider.NewRestyClient()
	genCfg := generation.Config{APIKey: "k", Endpoint: upstream.URL, Timeout: 2 * time.Second}
	searchCfg := search.Config{APIKey: "k", Endpoint: upstream.URL, Timeout: 2 * time.Second}
	services := service.NewServices(service.NewRunService(flow, repos,
		generation.NewClient(genCfg, httpClient),
		search.NewClient(searchCfg, httpClient),
		genCfg, searchCfg, resilient.NewLimiter(4, nil)))

	httpCfg := &httppkg.Http{}
	httpCfg.SetDefaults()

	app := fiber.New()
	NewRouter(httpCfg, services).Register(app)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, httppkg.Response) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var envelope httppkg.Response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("%s %s: bad envelope %q: %v", method, path, raw, err)
	}
	return resp.StatusCode, envelope
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t)
	status, envelope := doRequest(t, app, fiber.MethodGet, "/healthz", "")
	if status != nethttp.StatusOK || envelope.Code != httppkg.Success.Code {
		t.Fatalf("health = %d %+v", status, envelope)
	}
}

func TestTriggerWithoutInputsConflicts(t *testing.T) {
	app := newTestApp(t)
	status, envelope := doRequest(t, app, fiber.MethodPost, "/api/v1/projects/p1/runs", "")
	if status != nethttp.StatusConflict {
		t.Fatalf("trigger without inputs = %d %+v", status, envelope)
	}
}

func TestInputThenTriggerThenFetch(t *testing.T) {
	app := newTestApp(t)

	status, envelope := doRequest(t, app, fiber.MethodPost, "/api/v1/projects/p2/inputs", `{"topic": "desalination"}`)
	if status != nethttp.StatusOK {
		t.Fatalf("create input = %d %+v", status, envelope)
	}

	status, envelope = doRequest(t, app, fiber.MethodPost, "/api/v1/projects/p2/runs", "")
	if status != nethttp.StatusOK {
		t.Fatalf("trigger = %d %+v", status, envelope)
	}
	runData, _ := json.Marshal(envelope.Data)
	var run struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(runData, &run); err != nil || run.RunID == "" {
		t.Fatalf("trigger envelope missing run id: %+v", envelope)
	}

	status, _ = doRequest(t, app, fiber.MethodGet, "/api/v1/runs/"+run.RunID, "")
	if status != nethttp.StatusOK {
		t.Fatalf("get run = %d", status)
	}

	status, _ = doRequest(t, app, fiber.MethodGet, "/api/v1/projects/p2/runs/latest", "")
	if status != nethttp.StatusOK {
		t.Fatalf("get latest run = %d", status)
	}
}

func TestGetUnknownRunReturnsNotFound(t *testing.T) {
	app := newTestApp(t)
	status, _ := doRequest(t, app, fiber.MethodGet, "/api/v1/runs/does-not-exist", "")
	if status != nethttp.StatusNotFound {
		t.Fatalf("unknown run = %d", status)
	}
}

func TestReclaimUnknownRunReturnsNotFound(t *testing.T) {
	app := newTestApp(t)
	status, _ := doRequest(t, app, fiber.MethodPost, "/api/v1/runs/missing/reclaim", `{"leaseTimeoutSeconds": 1}`)
	if status != nethttp.StatusNotFound {
		t.Fatalf("reclaim unknown run = %d", status)
	}
}

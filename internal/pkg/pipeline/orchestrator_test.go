package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/insightrix/insightra/internal/engine/model"
	"github.com/insightrix/insightra/internal/engine/repo"
	"github.com/insightrix/insightra/internal/pkg/pipeline/stepstatus"
	"github.com/insightrix/insightra/pkg/database"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *repo.Repositories) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.NewManager(database.Database{
		Driver: "sqlite",
		SQLite: database.SQLiteConfig{Path: dsn},
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Database().AutoMigrate(&model.RunRecord{}, &model.ProjectInput{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repos := repo.NewRepositories(db)
	return NewOrchestrator(repos, Config{PipelineVersion: "v1"}), repos
}

func seedInput(t *testing.T, repos *repo.Repositories, projectID string) {
	t.Helper()
	if _, err := repos.Input.Create(context.Background(), projectID, []byte(`{"documents": ["a"]}`)); err != nil {
		t.Fatalf("seed input: %v", err)
	}
}

func flowCode(t *testing.T, err error) string {
	t.Helper()
	var flowErr *FlowError
	if !errors.As(err, &flowErr) {
		t.Fatalf("expected FlowError, got %v", err)
	}
	return flowErr.Code
}

func TestGetOrCreateActiveRunCreates(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-a")

	run, err := o.GetOrCreateActiveRun(ctx, "proj-a", Options{AllowCreate: true})
	if err != nil {
		t.Fatalf("GetOrCreateActiveRun: %v", err)
	}
	if run.Status != model.RunStatusQueued {
		t.Fatalf("new run status = %s", run.Status)
	}
	if run.IdempotencyKey != "proj-a:1:v1" {
		t.Fatalf("idempotency key = %s", run.IdempotencyKey)
	}
}

func TestGetOrCreateActiveRunReusesInFlight(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-b")

	first, err := o.GetOrCreateActiveRun(ctx, "proj-b", Options{AllowCreate: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Second trigger while the run is in flight must reuse it, even after
	// a new input version appears.
	seedInput(t, repos, "proj-b")
	second, err := o.GetOrCreateActiveRun(ctx, "proj-b", Options{AllowCreate: true})
	if err != nil {
		t.Fatalf("second trigger: %v", err)
	}
	if second.RunID != first.RunID {
		t.Fatalf("in-flight run not reused: %s vs %s", second.RunID, first.RunID)
	}
}

func TestGetOrCreateActiveRunErrors(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.GetOrCreateActiveRun(ctx, "proj-c", Options{}); flowCode(t, err) != FlowCodeNoActiveRun {
		t.Fatalf("expected NO_ACTIVE_RUN, got %v", err)
	}
	if _, err := o.GetOrCreateActiveRun(ctx, "proj-c", Options{AllowCreate: true}); flowCode(t, err) != FlowCodeNoInputs {
		t.Fatalf("expected NO_INPUTS, got %v", err)
	}
	if _, err := o.GetOrCreateActiveRun(ctx, "", Options{RunID: "missing"}); flowCode(t, err) != FlowCodeRunNotFound {
		t.Fatalf("expected RUN_NOT_FOUND, got %v", err)
	}

	seedInput(t, repos, "proj-c")
	run, err := o.GetOrCreateActiveRun(ctx, "proj-c", Options{AllowCreate: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := o.GetOrCreateActiveRun(ctx, "", Options{RunID: run.RunID})
	if err != nil || got.RunID != run.RunID {
		t.Fatalf("explicit run id lookup failed: %v, %v", got, err)
	}
}

func TestEndToEndScenario(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-e2e")

	run, err := o.GetOrCreateActiveRun(ctx, "proj-e2e", Options{AllowCreate: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	adv, err := o.AdvanceRun(ctx, run.RunID, "evidence")
	if err != nil {
		t.Fatalf("advance evidence: %v", err)
	}
	if adv.Action != ActionStarted {
		t.Fatalf("evidence action = %s, want started", adv.Action)
	}
	if adv.Run.Status != model.RunStatusRunning {
		t.Fatalf("run should be running after first advancement, got %s", adv.Run.Status)
	}
	if err := o.MarkStepCompleted(ctx, run.RunID, "evidence"); err != nil {
		t.Fatalf("complete evidence: %v", err)
	}

	adv, err = o.AdvanceRun(ctx, run.RunID, "synthesis")
	if err != nil {
		t.Fatalf("advance synthesis: %v", err)
	}
	if adv.Action != ActionStarted {
		t.Fatalf("synthesis action = %s, want started", adv.Action)
	}
	if err := o.MarkStepFailed(ctx, run.RunID, "synthesis", &stepstatus.StepError{Code: "server_error", Message: "upstream 502"}); err != nil {
		t.Fatalf("fail synthesis: %v", err)
	}

	fresh, err := repos.Run.GetByID(ctx, run.RunID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	steps := stepstatus.Parse(fresh.Metrics)
	if steps["synthesis"].Status != stepstatus.StatusFailed || steps["synthesis"].Error == nil {
		t.Fatalf("synthesis not failed with reason: %+v", steps["synthesis"])
	}
	if fresh.Status != model.RunStatusRunning {
		t.Fatalf("run must stay running across a step failure, got %s", fresh.Status)
	}

	adv, err = o.AdvanceRun(ctx, run.RunID, "synthesis")
	if err != nil {
		t.Fatalf("re-advance synthesis: %v", err)
	}
	if adv.Action != ActionResumed {
		t.Fatalf("failed step re-advance action = %s, want resumed", adv.Action)
	}
}

func TestAdvanceRunIdempotentOnCompletedStep(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-idem")

	run, _ := o.GetOrCreateActiveRun(ctx, "proj-idem", Options{AllowCreate: true})
	if _, err := o.AdvanceRun(ctx, run.RunID, "evidence"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := o.MarkStepCompleted(ctx, run.RunID, "evidence"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	before, _ := repos.Run.GetByID(ctx, run.RunID)
	entryBefore := stepstatus.Parse(before.Metrics)["evidence"]

	adv, err := o.AdvanceRun(ctx, run.RunID, "evidence")
	if err != nil {
		t.Fatalf("re-advance: %v", err)
	}
	if adv.Action != ActionNoop || adv.Status.Status != stepstatus.StatusCompleted {
		t.Fatalf("completed step re-advance = %+v", adv)
	}

	after, _ := repos.Run.GetByID(ctx, run.RunID)
	entryAfter := stepstatus.Parse(after.Metrics)["evidence"]
	if !entryAfter.FinishedAt.Equal(*entryBefore.FinishedAt) || !entryAfter.StartedAt.Equal(*entryBefore.StartedAt) {
		t.Fatalf("timestamps mutated by idempotent re-entry: %+v vs %+v", entryAfter, entryBefore)
	}
}

func TestAdvanceRunNoDuplicateStepExecution(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-dup")

	run, _ := o.GetOrCreateActiveRun(ctx, "proj-dup", Options{AllowCreate: true})

	const workers = 6
	actions := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			adv, err := o.AdvanceRun(ctx, run.RunID, "evidence")
			errs[i] = err
			if adv != nil {
				actions[i] = adv.Action
			}
		}(i)
	}
	wg.Wait()

	started, noop := 0, 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		switch actions[i] {
		case ActionStarted:
			started++
		case ActionNoop:
			noop++
		default:
			t.Fatalf("worker %d unexpected action %q", i, actions[i])
		}
	}
	if started != 1 || noop != workers-1 {
		t.Fatalf("started=%d noop=%d, want exactly one starter", started, noop)
	}
}

func TestAdvanceRunResetsStartedAtOnRetry(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-retry")

	run, _ := o.GetOrCreateActiveRun(ctx, "proj-retry", Options{AllowCreate: true})
	if _, err := o.AdvanceRun(ctx, run.RunID, "ranking"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := o.MarkStepFailed(ctx, run.RunID, "ranking", &stepstatus.StepError{Code: "timeout", Message: "deadline"}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	failed, _ := repos.Run.GetByID(ctx, run.RunID)
	firstStart := stepstatus.Parse(failed.Metrics)["ranking"].StartedAt

	time.Sleep(5 * time.Millisecond)
	adv, err := o.AdvanceRun(ctx, run.RunID, "ranking")
	if err != nil {
		t.Fatalf("retry advance: %v", err)
	}
	if adv.Action != ActionResumed {
		t.Fatalf("action = %s, want resumed", adv.Action)
	}
	if adv.Status.StartedAt == nil || !adv.Status.StartedAt.After(*firstStart) {
		t.Fatalf("startedAt not reset on retry: %v vs %v", adv.Status.StartedAt, firstStart)
	}
	if adv.Status.Error != nil {
		t.Fatalf("previous failure reason must be cleared on retry: %+v", adv.Status.Error)
	}
}

func TestAdvanceRunRejectsTerminalRun(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-done")

	run, _ := o.GetOrCreateActiveRun(ctx, "proj-done", Options{AllowCreate: true})
	if err := o.MarkRunCompleted(ctx, run.RunID, []byte(`{"summary": "ok"}`)); err != nil {
		t.Fatalf("complete run: %v", err)
	}

	_, err := o.AdvanceRun(ctx, run.RunID, "evidence")
	if flowCode(t, err) != FlowCodeRunFinished {
		t.Fatalf("expected RUN_FINISHED, got %v", err)
	}

	// Terminal marks are idempotent.
	if err := o.MarkRunFailed(ctx, run.RunID, "late", "should not overwrite"); err != nil {
		t.Fatalf("late MarkRunFailed: %v", err)
	}
	fresh, _ := repos.Run.GetByID(ctx, run.RunID)
	if fresh.Status != model.RunStatusSucceeded {
		t.Fatalf("terminal status overwritten: %s", fresh.Status)
	}
}

func TestMarkRunFailedRecordsReason(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-fail")

	run, _ := o.GetOrCreateActiveRun(ctx, "proj-fail", Options{AllowCreate: true})
	if err := o.MarkRunFailed(ctx, run.RunID, "client_error", "invalid model configured"); err != nil {
		t.Fatalf("MarkRunFailed: %v", err)
	}

	fresh, _ := repos.Run.GetByID(ctx, run.RunID)
	if fresh.Status != model.RunStatusFailed || fresh.ErrorCode != "client_error" {
		t.Fatalf("failure not recorded: %+v", fresh)
	}
	if fresh.FinishedAt == nil {
		t.Fatalf("finished_at missing on failed run")
	}
}

func TestReclaimStuckSteps(t *testing.T) {
	o, repos := newTestOrchestrator(t)
	ctx := context.Background()
	seedInput(t, repos, "proj-stuck")

	run, _ := o.GetOrCreateActiveRun(ctx, "proj-stuck", Options{AllowCreate: true})
	if _, err := o.AdvanceRun(ctx, run.RunID, "evidence"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// Fresh lease: nothing to reclaim.
	reclaimed, err := o.ReclaimStuckSteps(ctx, run.RunID, time.Hour)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("fresh step reclaimed: %v", reclaimed)
	}

	// Expired lease: the step returns to pending and can start again.
	reclaimed, err = o.ReclaimStuckSteps(ctx, run.RunID, time.Nanosecond)
	if err != nil {
		t.Fatalf("reclaim expired: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != "evidence" {
		t.Fatalf("expected evidence reclaimed, got %v", reclaimed)
	}

	adv, err := o.AdvanceRun(ctx, run.RunID, "evidence")
	if err != nil {
		t.Fatalf("advance after reclaim: %v", err)
	}
	if adv.Action != ActionStarted {
		t.Fatalf("reclaimed step should start, got %s", adv.Action)
	}
}

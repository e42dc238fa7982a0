package queue

import (
	"testing"
	"time"

	"github.com/harrison/swarm/internal/models"
)

func mkTask(id string, deps ...string) models.Task {
	return models.Task{ID: id, Description: id, Type: models.TaskImplement, Complexity: 3, Dependencies: deps}
}

// S1: linear 3-wave pipeline.
func TestLinearThreeWavePipeline(t *testing.T) {
	q := New(DefaultConfig())
	tasks := []models.Task{
		mkTask("setup"),
		mkTask("impl-a", "setup"),
		mkTask("impl-b", "setup"),
		mkTask("integrate", "impl-a", "impl-b"),
	}
	if err := q.Load(tasks); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if q.MaxWave() != 3 {
		t.Fatalf("MaxWave() = %d, want 3", q.MaxWave())
	}

	for _, id := range []string{"setup", "impl-a", "impl-b", "integrate"} {
		if q.Get(id) == nil {
			t.Fatalf("missing task %s", id)
		}
	}

	complete := func(id string, output string) {
		if err := q.MarkDispatched(id); err != nil {
			t.Fatalf("MarkDispatched(%s): %v", id, err)
		}
		if err := q.MarkCompleted(id, models.TaskResult{Success: true, Output: output}); err != nil {
			t.Fatalf("MarkCompleted(%s): %v", id, err)
		}
	}

	complete("setup", "created scaffold")
	complete("impl-a", "wrote a.go")
	complete("impl-b", "wrote b.go")

	integrate := q.Get("integrate")
	if integrate.Status != models.StatusReady {
		t.Fatalf("integrate.Status = %s, want ready once both deps complete", integrate.Status)
	}
	complete("integrate", "done")

	completed, failed, skipped := 0, 0, 0
	for _, task := range q.All() {
		switch task.Status {
		case models.StatusCompleted:
			completed++
		case models.StatusFailed:
			failed++
		case models.StatusSkipped:
			skipped++
		}
	}
	if completed != 4 || failed != 0 || skipped != 0 {
		t.Fatalf("completed=%d failed=%d skipped=%d, want 4/0/0", completed, failed, skipped)
	}

	integrate = q.Get("integrate")
	if !containsSubstr(integrate.DependencyContext, "wrote a.go") || !containsSubstr(integrate.DependencyContext, "wrote b.go") {
		t.Errorf("integrate.DependencyContext missing dependency outputs: %q", integrate.DependencyContext)
	}
}

func containsSubstr(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (needle == "" || indexOf(haystack, needle) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// S3: strict cascade.
func TestStrictCascade(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialDependencyThreshold = 1.0
	q := New(cfg)
	tasks := []models.Task{
		mkTask("root"),
		mkTask("child", "root"),
		mkTask("grandchild", "child"),
	}
	if err := q.Load(tasks); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := q.MarkDispatched("root"); err != nil {
		t.Fatal(err)
	}
	// Fail root permanently (attempts already exceed retry limit).
	root := q.Get("root")
	root.Attempts = 99
	if err := q.MarkFailed("root", 0); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if q.Get("root").Status != models.StatusFailed {
		t.Errorf("root.Status = %s, want failed", q.Get("root").Status)
	}
	if q.Get("child").Status != models.StatusSkipped {
		t.Errorf("child.Status = %s, want skipped", q.Get("child").Status)
	}
	if q.Get("grandchild").Status != models.StatusSkipped {
		t.Errorf("grandchild.Status = %s, want skipped", q.Get("grandchild").Status)
	}
}

// S4: partial-merge rescue.
func TestPartialMergeRescue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialDependencyThreshold = 0.5
	q := New(cfg)
	tasks := []models.Task{
		mkTask("a"), mkTask("b"), mkTask("c"),
		mkTask("merge", "a", "b", "c"),
	}
	if err := q.Load(tasks); err != nil {
		t.Fatalf("Load: %v", err)
	}

	finishOK := func(id string) {
		q.MarkDispatched(id)
		q.MarkCompleted(id, models.TaskResult{Success: true, Output: "wrote " + id + ".go"})
	}
	finishOK("a")
	finishOK("b")

	q.MarkDispatched("c")
	cTask := q.Get("c")
	cTask.Attempts = 99
	if err := q.MarkFailed("c", 0); err != nil {
		t.Fatalf("MarkFailed(c): %v", err)
	}

	merge := q.Get("merge")
	if merge.Status != models.StatusReady {
		t.Fatalf("merge.Status = %s, want ready (partial rescue)", merge.Status)
	}
	if merge.PartialContext == nil {
		t.Fatal("expected merge.PartialContext to be set")
	}
	if len(merge.PartialContext.Succeeded) != 2 || len(merge.PartialContext.Failed) != 1 {
		t.Errorf("PartialContext = %+v, want 2 succeeded / 1 failed", merge.PartialContext)
	}
	wantRatio := 2.0 / 3.0
	if diff := merge.PartialContext.Ratio - wantRatio; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ratio = %v, want ~%v", merge.PartialContext.Ratio, wantRatio)
	}
	if !containsSubstr(merge.DependencyContext, "WARNING") {
		t.Error("expected degraded-input warning banner in dependencyContext")
	}
}

// P9: cascade timing — markFailedWithoutCascade defers, triggerCascadeSkip completes it.
func TestCascadeTiming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialDependencyThreshold = 1.0
	q := New(cfg)
	tasks := []models.Task{mkTask("root"), mkTask("child", "root")}
	if err := q.Load(tasks); err != nil {
		t.Fatal(err)
	}
	q.MarkDispatched("root")
	root := q.Get("root")
	root.Attempts = 99
	if err := q.MarkFailedWithoutCascade("root", 0); err != nil {
		t.Fatal(err)
	}
	if q.Get("child").Status == models.StatusSkipped {
		t.Fatal("child must not be skipped immediately after MarkFailedWithoutCascade")
	}
	q.TriggerCascadeSkip("root")
	if q.Get("child").Status != models.StatusSkipped {
		t.Fatal("child should be skipped after TriggerCascadeSkip")
	}
}

// P10: unSkipDependents restores exactly those whose deps are now satisfied.
func TestUnSkipDependents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PartialDependencyThreshold = 1.0
	q := New(cfg)
	tasks := []models.Task{
		mkTask("root"),
		mkTask("fixup-root"),
		mkTask("child", "root"),
	}
	if err := q.Load(tasks); err != nil {
		t.Fatal(err)
	}
	q.MarkDispatched("root")
	root := q.Get("root")
	root.Attempts = 99
	q.MarkFailed("root", 0)
	if q.Get("child").Status != models.StatusSkipped {
		t.Fatal("precondition: child should be skipped")
	}

	// Simulate a rescue: root is re-added as completed via a replacement task
	// referencing the same dependents (direct mutation here stands in for
	// the orchestrator's final rescue pass completing "root" afresh).
	q.Get("root").Status = models.StatusCompleted
	restored := q.UnSkipDependents("root")
	if len(restored) != 1 || restored[0] != "child" {
		t.Fatalf("UnSkipDependents = %v, want [child]", restored)
	}
	if q.Get("child").Status != models.StatusReady {
		t.Fatalf("child.Status = %s, want ready", q.Get("child").Status)
	}
}

func TestLoadRejectsCycles(t *testing.T) {
	q := New(DefaultConfig())
	tasks := []models.Task{mkTask("a", "b"), mkTask("b", "a")}
	if err := q.Load(tasks); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestLoadRejectsDanglingDependency(t *testing.T) {
	q := New(DefaultConfig())
	tasks := []models.Task{mkTask("a", "ghost")}
	if err := q.Load(tasks); err == nil {
		t.Fatal("expected dangling dependency error")
	}
}

func TestRetryThenSucceed(t *testing.T) {
	// S2
	q := New(DefaultConfig())
	tasks := []models.Task{mkTask("a"), mkTask("b")}
	if err := q.Load(tasks); err != nil {
		t.Fatal(err)
	}
	q.MarkDispatched("a")
	if err := q.MarkFailed("a", 2); err != nil {
		t.Fatal(err)
	}
	if q.Get("a").Status != models.StatusReady {
		t.Fatalf("a.Status = %s, want ready (retry path)", q.Get("a").Status)
	}
	q.MarkDispatched("a")
	q.MarkCompleted("a", models.TaskResult{Success: true})

	q.MarkDispatched("b")
	q.MarkCompleted("b", models.TaskResult{Success: true})

	if q.Get("a").Attempts != 2 {
		t.Errorf("a.Attempts = %d, want 2 (one retry)", q.Get("a").Attempts)
	}
}

func TestDispatchedIsSingleWriter(t *testing.T) {
	// P3
	q := New(DefaultConfig())
	q.Load([]models.Task{mkTask("a")})
	if err := q.MarkDispatched("a"); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkDispatched("a"); err == nil {
		t.Fatal("expected error dispatching an already-dispatched task")
	}
}

func TestReconcileStaleDispatched(t *testing.T) {
	q := New(DefaultConfig())
	q.Load([]models.Task{mkTask("a")})
	q.MarkDispatched("a")
	q.dispatchedAt["a"] = q.dispatchedAt["a"].Add(-time.Hour)

	stale := q.ReconcileStaleDispatched(1000, map[string]bool{}, 3)
	if len(stale) != 1 || stale[0] != "a" {
		t.Fatalf("ReconcileStaleDispatched = %v, want [a]", stale)
	}
	if q.Get("a").Status != models.StatusReady {
		t.Fatalf("a.Status = %s, want ready", q.Get("a").Status)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	// P8 (structural half — persistence mechanics are exercised via Store in checkpoint_test.go)
	q := New(DefaultConfig())
	q.Load([]models.Task{mkTask("setup"), mkTask("impl", "setup")})
	q.MarkDispatched("setup")
	q.MarkCompleted("setup", models.TaskResult{Success: true, Output: "ok"})

	snap := q.Snapshot()

	q2 := New(DefaultConfig())
	q2.RestoreFromCheckpoint(snap)

	if q2.Get("setup").Status != models.StatusCompleted {
		t.Errorf("restored setup.Status = %s, want completed", q2.Get("setup").Status)
	}
	if q2.Get("impl").Status != models.StatusReady {
		t.Errorf("restored impl.Status = %s, want ready", q2.Get("impl").Status)
	}
	if q2.MaxWave() != snap.Waves || q2.CurrentWave() != snap.CurrentWave {
		t.Error("restored wave bookkeeping does not match snapshot")
	}
}

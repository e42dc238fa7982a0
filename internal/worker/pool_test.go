package worker

import (
	"context"
	"testing"
	"time"

	"github.com/harrison/swarm/internal/agent"
	"github.com/harrison/swarm/internal/models"
)

type fakeSpawner struct {
	result models.SpawnResult
	err    error
	delay  time.Duration
}

func (f *fakeSpawner) Spawn(ctx context.Context, agentName, prompt string, opts SpawnOptions) (models.SpawnResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.SpawnResult{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func testParams() BudgetParams {
	p := DefaultBudgetParams()
	p.WorkerTimeout = 240 * time.Second // exercise the real floor in DeriveBudget
	return p
}

func TestDispatchDeliversSuccessfulCompletion(t *testing.T) {
	reg := agent.NewRegistry("")
	spawner := &fakeSpawner{result: models.SpawnResult{
		Success: true,
		Output:  "wrote main.go",
		Metrics: models.SpawnMetrics{Tokens: 100, ToolCalls: 2},
	}}
	pool := New(2, reg, nil, spawner, testParams())

	task := &models.Task{ID: "t1", Type: models.TaskImplement, Complexity: 3}
	if err := pool.Dispatch(context.Background(), task, "", "", nil, false, false); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	comp, err := pool.WaitForAny(context.Background())
	if err != nil {
		t.Fatalf("WaitForAny: %v", err)
	}
	if comp.TaskID != "t1" || !comp.Result.Success || comp.Result.ToolCalls != 2 {
		t.Fatalf("completion = %+v, want success with 2 tool calls", comp)
	}
}

func TestDispatchRejectsAtCapacity(t *testing.T) {
	reg := agent.NewRegistry("")
	spawner := &fakeSpawner{delay: 50 * time.Millisecond, result: models.SpawnResult{Success: true}}
	pool := New(1, reg, nil, spawner, testParams())

	t1 := &models.Task{ID: "t1", Type: models.TaskImplement, Complexity: 3}
	t2 := &models.Task{ID: "t2", Type: models.TaskImplement, Complexity: 3}

	if err := pool.Dispatch(context.Background(), t1, "", "", nil, false, false); err != nil {
		t.Fatalf("Dispatch(t1): %v", err)
	}
	if err := pool.Dispatch(context.Background(), t2, "", "", nil, false, false); err != ErrAtCapacity {
		t.Fatalf("Dispatch(t2) err = %v, want ErrAtCapacity", err)
	}
}

func TestDispatchUnregistersAgentAfterCompletion(t *testing.T) {
	reg := agent.NewRegistry("")
	reg.Register(&agent.Agent{Name: "worker-spec", Model: "m1", Capabilities: []string{"implement"}})
	spawner := &fakeSpawner{result: models.SpawnResult{Success: true}}
	pool := New(1, reg, nil, spawner, testParams())

	task := &models.Task{ID: "t1", Type: models.TaskImplement, Complexity: 3}
	pool.Dispatch(context.Background(), task, "", "", nil, false, false)
	pool.WaitForAny(context.Background())

	// Give the deferred cleanup goroutine a moment; WaitForAny only
	// guarantees the completion was sent, not that run()'s defers finished.
	time.Sleep(10 * time.Millisecond)

	if pool.Len() != 0 {
		t.Errorf("pool.Len() = %d, want 0 after completion", pool.Len())
	}
	if reg.Exists("t1-attempt-0") {
		t.Errorf("per-task agent t1-attempt-0 still registered after completion")
	}
}

func TestWaitForAnyRespectsContextCancellation(t *testing.T) {
	pool := New(1, agent.NewRegistry(""), nil, &fakeSpawner{}, testParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.WaitForAny(ctx); err == nil {
		t.Fatal("expected error from WaitForAny on cancelled context")
	}
}

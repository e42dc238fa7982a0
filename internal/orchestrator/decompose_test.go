package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harrison/swarm/internal/worker"
)

type fakeDecomposerProvider struct {
	replies []string
	calls   int
}

func (f *fakeDecomposerProvider) Chat(ctx context.Context, messages []worker.ChatMessage, opts worker.ChatOptions) (*worker.ChatResponse, error) {
	reply := f.replies[f.calls]
	f.calls++
	return &worker.ChatResponse{Content: reply}, nil
}

func TestDecomposeHappyPath(t *testing.T) {
	p := &fakeDecomposerProvider{replies: []string{`{
		"subtasks": [
			{"description": "design the API", "type": "design", "complexity": 3, "dependencies": []},
			{"description": "implement the API", "type": "implement", "complexity": 6, "dependencies": [0]}
		],
		"strategy": "sequential",
		"reasoning": "straightforward two-step plan"
	}`}}

	tasks, decision, err := decompose(context.Background(), p, "model", "build an API")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[1].Dependencies[0] != tasks[0].ID {
		t.Fatal("second task should depend on the first by resolved id")
	}
	if decision == "" {
		t.Fatal("expected a non-empty decision rationale")
	}
}

func TestDecomposeFallsBackToScaffoldOnBadJSON(t *testing.T) {
	p := &fakeDecomposerProvider{replies: []string{"not json", "still not json"}}

	tasks, decision, err := decompose(context.Background(), p, "model", "build something")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected emergency scaffold's 4 tasks, got %d", len(tasks))
	}
	if decision == "" {
		t.Fatal("expected scaffold rationale to be logged")
	}
}

func TestDecomposeFallsBackOnSingleSubtask(t *testing.T) {
	p := &fakeDecomposerProvider{replies: []string{
		`{"subtasks":[{"description":"do it all","type":"implement","complexity":5,"dependencies":[]}],"strategy":"sequential","reasoning":"one step"}`,
		`{"subtasks":[{"description":"do it all","type":"implement","complexity":5,"dependencies":[]}],"strategy":"sequential","reasoning":"one step"}`,
	}}
	tasks, _, err := decompose(context.Background(), p, "model", "do everything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected scaffold fallback for <2 subtasks, got %d tasks", len(tasks))
	}
}

func TestDecomposeRejectsCycle(t *testing.T) {
	p := &fakeDecomposerProvider{replies: []string{
		`{"subtasks":[{"description":"a","type":"implement","complexity":1,"dependencies":[1]},{"description":"b","type":"implement","complexity":1,"dependencies":[0]}],"strategy":"sequential","reasoning":"x"}`,
		`{"subtasks":[{"description":"a","type":"implement","complexity":1,"dependencies":[1]},{"description":"b","type":"implement","complexity":1,"dependencies":[0]}],"strategy":"sequential","reasoning":"x"}`,
	}}
	tasks, decision, err := decompose(context.Background(), p, "model", "cyclic objective")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected scaffold fallback on cycle rejection, got %d tasks", len(tasks))
	}
	if decision == "" {
		t.Fatal("expected rationale explaining the fallback")
	}
}

func TestEmergencyScaffoldShape(t *testing.T) {
	tasks := emergencyScaffold("do the thing")
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}
	if len(tasks[0].Dependencies) != 0 {
		t.Fatal("design task should have no dependencies")
	}
	for i := 1; i < len(tasks); i++ {
		if len(tasks[i].Dependencies) != 1 || tasks[i].Dependencies[0] != tasks[i-1].ID {
			t.Fatalf("task %d should depend on task %d", i, i-1)
		}
	}
}

func TestApplyScaffoldFirstOverride(t *testing.T) {
	dir := t.TempDir()
	tasks := emergencyScaffold("objective")
	tasks[0].Description = "bootstrap the project"
	applyScaffoldFirstOverride(tasks, dir)

	for i := 1; i < len(tasks); i++ {
		found := false
		for _, d := range tasks[i].Dependencies {
			if d == tasks[0].ID {
				found = true
			}
		}
		if !found {
			t.Fatalf("task %d should depend on the bootstrap task in an unscaffolded dir", i)
		}
	}
}

func TestApplyScaffoldFirstOverrideSkipsWhenScaffolded(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	tasks := emergencyScaffold("objective")
	tasks[0].Description = "bootstrap the project"
	before := len(tasks[1].Dependencies)

	applyScaffoldFirstOverride(tasks, dir)

	if len(tasks[1].Dependencies) != before {
		t.Fatal("scaffolded dir should not get the override applied")
	}
}

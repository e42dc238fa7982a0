package orchestrator

import (
	"context"
	"testing"

	"github.com/harrison/swarm/internal/agent"
	"github.com/harrison/swarm/internal/health"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/worker"
)

// fakeRunProvider answers each Chat call according to its system prompt: a
// fixed decomposition for the decomposer prompts and an empty/neutral reply
// for the planner, review and other manager prompts, so Run exercises decomposition, planning, wave review, and synthesis without
// depending on call order within those stages.
type fakeRunProvider struct {
	decomposerReply string
}

func (f *fakeRunProvider) Chat(ctx context.Context, messages []worker.ChatMessage, opts worker.ChatOptions) (*worker.ChatResponse, error) {
	if opts.SystemPrompt == decomposerSystemPrompt || opts.SystemPrompt == simplifiedDecomposerSystemPrompt {
		return &worker.ChatResponse{Content: f.decomposerReply}, nil
	}
	if opts.SystemPrompt == plannerSystemPrompt {
		return &worker.ChatResponse{Content: `{"criteria":{},"verificationSteps":[]}`}, nil
	}
	if opts.SystemPrompt == reviewSystemPrompt {
		return &worker.ChatResponse{Content: `{"subtasks":[],"strategy":"sequential","reasoning":"no fixups needed"}`}, nil
	}
	return &worker.ChatResponse{Content: "synthesis complete"}, nil
}

// fakeRunSpawner reports every spawn as a successful, non-hollow completion.
type fakeRunSpawner struct{}

func (f *fakeRunSpawner) Spawn(ctx context.Context, agentName, taskPrompt string, opts worker.SpawnOptions) (models.SpawnResult, error) {
	return models.SpawnResult{
		Success: true,
		Output:  "did the work, produced a concrete artifact",
		Metrics: models.SpawnMetrics{Tokens: 100, ToolCalls: 2},
	}, nil
}

func newTestOrchestrator(t *testing.T, decomposerReply string) *Orchestrator {
	t.Helper()
	registry := agent.NewRegistry("")
	registry.Register(&agent.Agent{Name: "generalist", Model: "test-model"})

	cfg := DefaultConfig()
	cfg.EnablePersistence = false
	cfg.ProbeModels = false
	cfg.QualityGatesEnabled = false // no judge model wired in this fake
	cfg.EnableVerification = false
	cfg.MaxConcurrency = 2
	cfg.DispatchStaggerMs = 0

	provider := &fakeRunProvider{decomposerReply: decomposerReply}
	tracker := health.NewTracker(1.5, 3)

	return New(cfg, registry, tracker, &fakeRunSpawner{}, provider, nil, nil, "test-session", t.TempDir())
}

func TestRunHappyPathCompletesAllTasks(t *testing.T) {
	o := newTestOrchestrator(t, `{
		"subtasks": [
			{"description": "design the feature", "type": "design", "complexity": 3, "dependencies": []},
			{"description": "implement the feature", "type": "implement", "complexity": 5, "dependencies": [0]}
		],
		"strategy": "sequential",
		"reasoning": "two-step plan"
	}`)

	result, err := o.Run(context.Background(), "build a small feature")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	for _, task := range result.Tasks {
		if task.Status != models.StatusCompleted {
			t.Fatalf("expected task %s to complete, got status %s", task.ID, task.Status)
		}
	}
	if result.SynthesisResult == "" {
		t.Fatal("expected a non-empty synthesis result")
	}
}

func TestRunFallsBackToEmergencyScaffoldOnBadDecomposition(t *testing.T) {
	o := newTestOrchestrator(t, "not valid json at all")

	result, err := o.Run(context.Background(), "build something")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Tasks) != 4 {
		t.Fatalf("expected the 4-task emergency scaffold, got %d tasks", len(result.Tasks))
	}
}

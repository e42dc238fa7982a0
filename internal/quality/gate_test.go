package quality

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/worker"
)

type fakeProvider struct {
	resp *worker.ChatResponse
	err  error
}

func (f *fakeProvider) Chat(ctx context.Context, messages []worker.ChatMessage, opts worker.ChatOptions) (*worker.ChatResponse, error) {
	return f.resp, f.err
}

func fakeReadFile(contents map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		if c, ok := contents[path]; ok {
			return []byte(c), nil
		}
		return nil, fmt.Errorf("no such file %s", path)
	}
}

func TestPreFlightActionTaskZeroToolCalls(t *testing.T) {
	g := New(DefaultConfig(), nil, "")
	task := &models.Task{Type: models.TaskImplement, Description: "implement the thing"}
	out := g.Evaluate(context.Background(), task, models.TaskResult{Success: true, ToolCalls: 0})
	if out.Passed || out.Score != 0 || !out.PreFlightReject {
		t.Fatalf("out = %+v, want score 0 pre-flight reject", out)
	}
}

func TestPreFlightMissingTargetFiles(t *testing.T) {
	g := New(DefaultConfig(), nil, "")
	task := &models.Task{Type: models.TaskDocument, TargetFiles: []string{filepath.Join(t.TempDir(), "nope.md")}}
	out := g.Evaluate(context.Background(), task, models.TaskResult{Success: true, ToolCalls: 1})
	if out.Passed || !out.ArtifactAutoFail {
		t.Fatalf("out = %+v, want artifactAutoFail", out)
	}
}

func TestPreFlightFailureAdmission(t *testing.T) {
	g := New(DefaultConfig(), nil, "")
	task := &models.Task{Type: models.TaskResearch, Description: "investigate"}
	out := g.Evaluate(context.Background(), task, models.TaskResult{
		Success: true, ToolCalls: 3, ClosureReport: "Budget exhausted before finishing the review.",
	})
	if out.Passed || out.Score != 1 {
		t.Fatalf("out = %+v, want score 1 fail", out)
	}
}

func TestConcreteChecksRejectsInvalidJSON(t *testing.T) {
	g := New(DefaultConfig(), nil, "")
	g.readFile = fakeReadFile(map[string]string{"out.json": "{not valid"})
	task := &models.Task{Type: models.TaskImplement, Description: "write config"}
	out := g.Evaluate(context.Background(), task, models.TaskResult{
		Success: true, ToolCalls: 1, FilesModified: []string{"out.json"},
	})
	if out.Passed {
		t.Fatalf("out = %+v, want reject for invalid JSON", out)
	}
}

func TestConcreteChecksAcceptsValidMarkdown(t *testing.T) {
	g := New(DefaultConfig(), &fakeProvider{resp: &worker.ChatResponse{Content: "SCORE: 4\nFEEDBACK: looks fine"}}, "judge-model")
	g.readFile = fakeReadFile(map[string]string{"out.md": "# Title\n\nSome content.\n"})
	task := &models.Task{Type: models.TaskImplement, Description: "write out.md"}
	out := g.Evaluate(context.Background(), task, models.TaskResult{
		Success: true, ToolCalls: 1, FilesModified: []string{"out.md"},
	})
	if !out.Passed || out.Score != 4 {
		t.Fatalf("out = %+v, want pass with score 4", out)
	}
}

func TestJudgeParsesScoreAndFeedback(t *testing.T) {
	g := New(DefaultConfig(), &fakeProvider{resp: &worker.ChatResponse{Content: "SCORE: 2\nFEEDBACK: missing edge case handling"}}, "judge-model")
	task := &models.Task{Type: models.TaskResearch, Description: "investigate"}
	out := g.Evaluate(context.Background(), task, models.TaskResult{Success: true, ToolCalls: 1, Output: "findings"})
	if out.Passed || out.Score != 2 || out.Feedback != "missing edge case handling" {
		t.Fatalf("out = %+v, want score 2 reject with parsed feedback", out)
	}
}

func TestJudgeDefaultsScoreOnMissingHeader(t *testing.T) {
	g := New(DefaultConfig(), &fakeProvider{resp: &worker.ChatResponse{Content: "This looks pretty good overall."}}, "judge-model")
	task := &models.Task{Type: models.TaskResearch, Description: "investigate"}
	out := g.Evaluate(context.Background(), task, models.TaskResult{Success: true, ToolCalls: 1, Output: "findings"})
	if out.Score != 3 {
		t.Fatalf("out.Score = %d, want default 3", out.Score)
	}
}

func TestJudgeFoundationTaskLowerThreshold(t *testing.T) {
	g := New(DefaultConfig(), &fakeProvider{resp: &worker.ChatResponse{Content: "SCORE: 2\nFEEDBACK: ok-ish"}}, "judge-model")
	task := &models.Task{Type: models.TaskResearch, Description: "investigate", IsFoundation: true}
	out := g.Evaluate(context.Background(), task, models.TaskResult{Success: true, ToolCalls: 1, Output: "findings"})
	if !out.Passed {
		t.Fatalf("out = %+v, want pass: foundation tasks use a relaxed threshold", out)
	}
}

func TestJudgeErrorIsSoftFail(t *testing.T) {
	g := New(DefaultConfig(), &fakeProvider{err: fmt.Errorf("connection reset")}, "judge-model")
	task := &models.Task{Type: models.TaskResearch, Description: "investigate"}
	out := g.Evaluate(context.Background(), task, models.TaskResult{Success: true, ToolCalls: 1, Output: "findings"})
	if out.Passed || !out.GateError || out.Score != 3 {
		t.Fatalf("out = %+v, want soft fail {score:3, passed:false, gateError:true}", out)
	}
}

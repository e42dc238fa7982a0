package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/worker"
)

const decomposerSystemPrompt = `You are a task decomposer. Break the given objective into an ordered set of subtasks forming a DAG. Reply with JSON matching the required schema exactly: no prose before or after.`

const simplifiedDecomposerSystemPrompt = `Break this objective into 2-6 simple sequential subtasks. Reply with JSON matching the required schema exactly.`

// decompose calls the decomposer (§4.7 step 2), retrying once with a
// simplified prompt on a parse failure, and falling back to an emergency
// scaffold when the result is unusable rather than aborting the run.
func decompose(ctx context.Context, provider worker.Provider, model, objective string) ([]models.Task, string, error) {
	decomposition, err := callDecomposer(ctx, provider, model, objective, decomposerSystemPrompt)
	if err != nil || len(decomposition.Subtasks) < 2 {
		decomposition, err = callDecomposer(ctx, provider, model, objective, simplifiedDecomposerSystemPrompt)
	}
	if err != nil || len(decomposition.Subtasks) < 2 {
		return emergencyScaffold(objective), "emergency-scaffold: decomposer produced fewer than 2 usable subtasks", nil
	}

	tasks, err := subtasksToTasks(decomposition.Subtasks)
	if err != nil {
		return emergencyScaffold(objective), "emergency-scaffold: " + err.Error(), nil
	}
	return tasks, "decomposed: " + decomposition.Reasoning, nil
}

// decomposeWithPrompt is decompose's variant for callers supplying their own
// system prompt and user content, used by the mid-swarm replan (§4.7.3)
// rather than the initial decomposition call.
func decomposeWithPrompt(ctx context.Context, provider worker.Provider, model, userContent, systemPrompt string) ([]models.Task, string, error) {
	decomposition, err := callDecomposer(ctx, provider, model, userContent, systemPrompt)
	if err != nil {
		return nil, "", fmt.Errorf("replan decomposer call failed: %w", err)
	}
	tasks, err := subtasksToTasks(decomposition.Subtasks)
	if err != nil {
		return nil, "", fmt.Errorf("replan decomposition is invalid: %w", err)
	}
	return tasks, "replanned: " + decomposition.Reasoning, nil
}

func callDecomposer(ctx context.Context, provider worker.Provider, model, objective, systemPrompt string) (models.Decomposition, error) {
	resp, err := provider.Chat(ctx, []worker.ChatMessage{
		{Role: "user", Content: objective},
	}, worker.ChatOptions{Model: model, SystemPrompt: systemPrompt, MaxTokens: 4096})
	if err != nil {
		return models.Decomposition{}, err
	}

	var decomposition models.Decomposition
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &decomposition); err != nil {
		return models.Decomposition{}, fmt.Errorf("decomposer reply is not valid JSON: %w", err)
	}
	return decomposition, nil
}

// extractJSON trims everything outside the first '{' ... last '}' pair,
// tolerating a model that wraps its JSON in prose or a markdown fence
// despite being told not to.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return content
	}
	return content[start : end+1]
}

// subtasksToTasks resolves index-based dependencies (§6) into stable ids
// and validates no cycles/dangling ids/minimum-2-tasks, per §4.7 step 2.
func subtasksToTasks(subtasks []models.SubtaskSpec) ([]models.Task, error) {
	if len(subtasks) < 2 {
		return nil, fmt.Errorf("decomposition has only %d subtask(s), need at least 2", len(subtasks))
	}

	ids := make([]string, len(subtasks))
	for i := range subtasks {
		ids[i] = uuid.NewString()
	}

	tasks := make([]models.Task, len(subtasks))
	for i, st := range subtasks {
		deps := make([]string, 0, len(st.Dependencies))
		for _, idx := range st.Dependencies {
			if idx < 0 || idx >= len(subtasks) {
				return nil, fmt.Errorf("subtask %d references out-of-range dependency index %d", i, idx)
			}
			deps = append(deps, ids[idx])
		}
		tasks[i] = models.Task{
			ID:           ids[i],
			Description:  st.Description,
			Type:         st.Type,
			Complexity:   st.Complexity,
			TargetFiles:  st.RelevantFiles,
			Dependencies: deps,
			Status:       models.InitialStatus(deps),
		}
	}

	if cyclePath := findCycle(tasks); cyclePath != "" {
		return nil, fmt.Errorf("decomposition contains a cycle: %s", cyclePath)
	}
	return tasks, nil
}

// findCycle does a plain DFS cycle check so subtasksToTasks can reject a
// malformed decomposition before it ever reaches internal/queue.Load (which
// performs its own independent check once the DAG is actually scheduled).
func findCycle(tasks []models.Task) string {
	byID := make(map[string]*models.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))

	var visit func(id string, path []string) string
	visit = func(id string, path []string) string {
		color[id] = gray
		path = append(path, id)
		for _, dep := range byID[id].Dependencies {
			switch color[dep] {
			case gray:
				return strings.Join(append(path, dep), " -> ")
			case white:
				if cyc := visit(dep, path); cyc != "" {
					return cyc
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, t := range tasks {
		if color[t.ID] == white {
			if cyc := visit(t.ID, nil); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

// emergencyScaffold synthesizes a design -> implement -> test -> integrate
// chain (§4.7 step 2) when the decomposer cannot be trusted.
func emergencyScaffold(objective string) []models.Task {
	design := uuid.NewString()
	implement := uuid.NewString()
	test := uuid.NewString()
	integrate := uuid.NewString()

	return []models.Task{
		{ID: design, Type: models.TaskDesign, Complexity: 3, Status: models.StatusReady,
			Description: "Design an approach for: " + objective},
		{ID: implement, Type: models.TaskImplement, Complexity: 6, Dependencies: []string{design},
			Status: models.StatusPending, Description: "Implement: " + objective},
		{ID: test, Type: models.TaskTest, Complexity: 4, Dependencies: []string{implement},
			Status: models.StatusPending, Description: "Test the implementation of: " + objective},
		{ID: integrate, Type: models.TaskIntegrate, Complexity: 3, Dependencies: []string{test},
			Status: models.StatusPending, Description: "Integrate and verify: " + objective},
	}
}

// isUnscaffolded reports whether dir looks like it has no project manifest
// and no source directories yet (§4.7 step 3).
func isUnscaffolded(dir string) bool {
	manifests := []string{"go.mod", "package.json", "Cargo.toml", "pyproject.toml", "pom.xml", "Gemfile"}
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
			return false
		}
	}
	sourceDirs := []string{"src", "internal", "cmd", "lib", "pkg"}
	for _, d := range sourceDirs {
		if info, err := os.Stat(filepath.Join(dir, d)); err == nil && info.IsDir() {
			return false
		}
	}
	return true
}

// applyScaffoldFirstOverride adds the bootstrap task (matched by a
// scaffold/bootstrap/setup keyword in its description) as a dependency of
// every other task, when the working directory looks unscaffolded.
func applyScaffoldFirstOverride(tasks []models.Task, dir string) {
	if !isUnscaffolded(dir) {
		return
	}
	bootstrapIdx := -1
	for i, t := range tasks {
		lower := strings.ToLower(t.Description)
		if strings.Contains(lower, "scaffold") || strings.Contains(lower, "bootstrap") || strings.Contains(lower, "setup") {
			bootstrapIdx = i
			break
		}
	}
	if bootstrapIdx == -1 {
		return
	}
	bootstrapID := tasks[bootstrapIdx].ID
	for i := range tasks {
		if i == bootstrapIdx {
			continue
		}
		already := false
		for _, d := range tasks[i].Dependencies {
			if d == bootstrapID {
				already = true
				break
			}
		}
		if !already {
			tasks[i].Dependencies = append(tasks[i].Dependencies, bootstrapID)
			tasks[i].Status = models.StatusPending
		}
	}
}

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harrison/swarm/internal/events"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/worker"
)

const plannerSystemPrompt = `You are the planning manager for a multi-agent swarm. Given a list of tasks ` +
	`(id, type, description), produce JSON: {"criteria": {"<taskId>": ["criterion", ...]}, ` +
	`"verificationSteps": [{"name":string,"command":string,"required":bool}]}. ` +
	`Acceptance criteria must reference concrete terms from each task's description. Reply with JSON only.`

// runPlanning implements §4.7 step 6: a manager-role LLM call producing
// per-task acceptance criteria and an integration verification plan. The
// caller runs this concurrently with wave execution.
func (o *Orchestrator) runPlanning(ctx context.Context) (*models.Plan, error) {
	tasks := o.q.All()
	if len(tasks) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- id=%s type=%s: %s\n", t.ID, t.Type, t.Description)
	}

	resp, err := o.provider.Chat(ctx, []worker.ChatMessage{
		{Role: "user", Content: sb.String()},
	}, worker.ChatOptions{Model: o.cfg.PlannerModel, SystemPrompt: plannerSystemPrompt, MaxTokens: 4096})
	if err != nil {
		return nil, fmt.Errorf("planner call failed: %w", err)
	}

	var raw struct {
		Criteria          map[string][]string `json:"criteria"`
		VerificationSteps []struct {
			Name     string `json:"name"`
			Command  string `json:"command"`
			Required bool   `json:"required"`
		} `json:"verificationSteps"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &raw); err != nil {
		return nil, fmt.Errorf("planner reply is not valid JSON: %w", err)
	}

	plan := &models.Plan{Criteria: make(map[string]models.AcceptanceCriteria, len(raw.Criteria))}
	for id, c := range raw.Criteria {
		plan.Criteria[id] = models.AcceptanceCriteria{TaskID: id, Criteria: c}
	}
	for _, s := range raw.VerificationSteps {
		plan.VerificationSteps = append(plan.VerificationSteps, models.VerificationStep{
			Name: s.Name, Command: s.Command, Required: s.Required,
		})
	}
	return plan, nil
}

const reviewSystemPrompt = `You are the wave-review manager. Given completed tasks, their acceptance criteria, ` +
	`and their output, identify any task whose output does not satisfy its criteria. Propose fix-up subtasks ` +
	`as JSON matching the decomposition schema ({"subtasks":[...],"strategy":...,"reasoning":...}). ` +
	`If everything satisfies its criteria, reply with {"subtasks":[],"strategy":"sequential","reasoning":"no fixups needed"}.`

// runWaveReview implements §4.7 step 7e: a manager LLM grades this wave's
// completed outputs against acceptance criteria and may emit fix-up tasks
// that join the current wave.
func (o *Orchestrator) runWaveReview(ctx context.Context, wave int) {
	if o.plan == nil {
		return
	}
	var reviewed []models.Task
	for _, t := range o.q.All() {
		if int(t.Wave) == wave && t.Status == models.StatusCompleted {
			reviewed = append(reviewed, t)
		}
	}
	if len(reviewed) == 0 {
		return
	}

	o.emit(events.KindReviewStart, map[string]interface{}{"wave": wave})

	var sb strings.Builder
	for _, t := range reviewed {
		criteria := o.plan.Criteria[t.ID]
		output := ""
		if t.Result != nil {
			output = trimOutput(t.Result.Output)
		}
		fmt.Fprintf(&sb, "Task %s (%s): %s\nAcceptance criteria: %s\nOutput: %s\n\n",
			t.ID, t.Type, t.Description, strings.Join(criteria.Criteria, "; "), output)
	}

	resp, err := o.provider.Chat(ctx, []worker.ChatMessage{
		{Role: "user", Content: sb.String()},
	}, worker.ChatOptions{Model: o.cfg.PlannerModel, SystemPrompt: reviewSystemPrompt, MaxTokens: 2048})
	if err != nil {
		o.recordError(err)
		o.emit(events.KindReviewComplete, map[string]interface{}{"wave": wave, "fixups": 0})
		return
	}

	var d models.Decomposition
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &d); err != nil || len(d.Subtasks) == 0 {
		o.emit(events.KindReviewComplete, map[string]interface{}{"wave": wave, "fixups": 0})
		return
	}

	fixups, err := subtasksToTasks(d.Subtasks)
	if err != nil {
		o.recordError(err)
		o.emit(events.KindReviewComplete, map[string]interface{}{"wave": wave, "fixups": 0})
		return
	}
	for i := range fixups {
		fixups[i].FixInstructions = "wave review"
	}
	if err := o.q.AddFixupTasks(fixups); err != nil {
		o.recordError(err)
		return
	}
	o.emit(events.KindFixupSpawned, map[string]interface{}{"count": len(fixups), "source": "wave-review"})
	o.emit(events.KindReviewComplete, map[string]interface{}{"wave": wave, "fixups": len(fixups)})
}

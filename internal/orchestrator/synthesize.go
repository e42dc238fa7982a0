package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/worker"
)

const synthesizerSystemPrompt = `You are the synthesis manager for a multi-agent swarm. Given each ` +
	`completed task's description and output, write a concise summary of what was accomplished overall. ` +
	`Reply with plain prose, no JSON.`

// synthesize implements §4.7 step 10: combine completed outputs via an LLM
// synthesizer, falling back to deterministic concatenation when the call
// fails or returns nothing usable.
func (o *Orchestrator) synthesize(ctx context.Context) string {
	tasks := o.q.All()

	var sb strings.Builder
	completed := 0
	for _, t := range tasks {
		if t.Status != models.StatusCompleted || t.Result == nil {
			continue
		}
		completed++
		fmt.Fprintf(&sb, "- %s (%s): %s\n", t.ID, t.Type, trimOutput(t.Result.Output))
	}
	if completed == 0 {
		return "no tasks completed"
	}

	fallback := sb.String()
	if o.provider == nil {
		return fallback
	}

	resp, err := o.provider.Chat(ctx, []worker.ChatMessage{
		{Role: "user", Content: fallback},
	}, worker.ChatOptions{Model: o.cfg.PlannerModel, SystemPrompt: synthesizerSystemPrompt, MaxTokens: 2048})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		return fallback
	}
	return resp.Content
}

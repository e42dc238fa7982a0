package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/harrison/swarm/internal/events"
	"github.com/harrison/swarm/internal/models"
)

// shouldReplan implements §4.7.3's stall detection: true once at least
// ReplanMinAttempted tasks have been attempted and the stuck (failed or
// skipped) fraction of those is at or above ReplanStuckRatio.
func (o *Orchestrator) shouldReplan() bool {
	attempted, stuck := o.attemptedAndStuck()
	if attempted < o.cfg.ReplanMinAttempted {
		return false
	}
	return float64(stuck)/float64(attempted) >= o.cfg.ReplanStuckRatio
}

func (o *Orchestrator) attemptedAndStuck() (attempted, stuck int) {
	for _, t := range o.q.All() {
		switch t.Status {
		case models.StatusCompleted:
			attempted++
		case models.StatusFailed, models.StatusSkipped:
			attempted++
			stuck++
		}
	}
	return attempted, stuck
}

const replanSystemPrompt = `You are a task decomposer handling a stalled multi-agent swarm. Given the ` +
	`original objective and a summary of what has completed so far, propose a fresh set of subtasks to ` +
	`finish the objective from here. Reply with JSON matching the required schema exactly: no prose before ` +
	`or after.`

// runReplan implements §4.7.3: issue exactly one mid-swarm replan, calling
// the decomposer again with a progress summary and adding the result as
// replan tasks joining the current wave.
func (o *Orchestrator) runReplan(ctx context.Context) {
	_, stuck := o.attemptedAndStuck()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Original objective: %s\n\nProgress so far:\n", o.objective)
	for _, t := range o.q.All() {
		switch t.Status {
		case models.StatusCompleted:
			fmt.Fprintf(&sb, "- DONE %s: %s\n", t.ID, t.Description)
		case models.StatusFailed, models.StatusSkipped:
			fmt.Fprintf(&sb, "- STUCK %s: %s\n", t.ID, t.Description)
		}
	}

	tasks, decision, err := decomposeWithPrompt(ctx, o.provider, o.cfg.OrchestratorModel, sb.String(), replanSystemPrompt)
	if err != nil {
		o.recordError(err)
		return
	}
	o.decide("replan", decision)

	if err := o.q.AddReplanTasks(tasks); err != nil {
		o.recordError(err)
		return
	}
	o.hasReplanned = true
	o.emit(events.KindReplan, map[string]interface{}{"oldStuck": stuck, "newTasks": len(tasks)})
}

package orchestrator

import (
	"strings"

	"github.com/harrison/swarm/internal/models"
)

// failureAdmissionPhrases mirrors quality.DefaultConfig's list: a worker
// that reports success but admits defeat in its own closure report is
// hollow by the same signal the quality gate's pre-flight layer uses.
var failureAdmissionPhrases = []string{
	"budget exhausted", "unable to complete", "could not complete",
	"ran out of", "giving up", "unable to finish",
}

// isHollow implements §4.7.1: a "successful" SpawnResult is hollow iff any
// of its listed conditions hold. A timeout (toolCalls == -1) is a distinct
// signal and is never hollow.
func isHollow(t *models.Task, r models.TaskResult) (bool, string) {
	if r.TimedOut() {
		return false, ""
	}
	if r.ToolCalls == 0 && len(strings.TrimSpace(r.Output)) < 50 {
		return true, "zero tool calls and minimal output"
	}
	if r.Success && containsAnyFold(r.ClosureReport, failureAdmissionPhrases...) {
		return true, "closure report admits failure despite success flag"
	}
	if t.Type.IsActionType() && r.ToolCalls == 0 {
		return true, "action task made zero tool calls"
	}
	return false, ""
}

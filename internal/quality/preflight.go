package quality

import (
	"os"
	"strings"

	"github.com/harrison/swarm/internal/models"
)

// preFlight implements §4.6 layer 1: checks that require no LLM call and no
// file parsing beyond an existence/size stat.
func (g *Gate) preFlight(t *models.Task, result models.TaskResult) (Outcome, bool) {
	if len(t.TargetFiles) > 0 && allMissingOrEmpty(t.TargetFiles) {
		return g.fail(1, "all target files are missing or empty", true, true), true
	}

	if t.Type.IsActionType() && result.ToolCalls == 0 {
		return g.fail(0, "action task made zero tool calls", true, false), true
	}

	if mentionsArtifact(t.Description) && len(result.FilesModified) == 0 && result.ToolCalls == 0 {
		return g.fail(1, "task description names an artifact but no file was modified and no tool was called", true, true), true
	}

	if containsAny(result.ClosureReport, g.cfg.FailureAdmissionPhrases) {
		return g.fail(1, "worker's closure report admits failure: "+result.ClosureReport, true, false), true
	}

	return Outcome{}, false
}

func allMissingOrEmpty(paths []string) bool {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err == nil && info.Size() > 0 {
			return false
		}
	}
	return true
}

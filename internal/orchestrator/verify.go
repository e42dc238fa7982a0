package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/harrison/swarm/internal/events"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/worker"
)

const verificationStepTimeout = 2 * time.Minute

// runVerification implements §4.7 step 8: run the plan's integration
// verification steps as read-only shell commands in the working directory.
// A failing required step spawns fix-up tasks from the decomposer and the
// wave loop is re-entered to drain them, up to MaxVerificationRetries times.
func (o *Orchestrator) runVerification(ctx context.Context) {
	if o.plan == nil || len(o.plan.VerificationSteps) == 0 {
		return
	}

	for attempt := 0; attempt <= o.cfg.MaxVerificationRetries; attempt++ {
		o.emit(events.KindVerifyStart, map[string]interface{}{"attempt": attempt})

		var failures []models.VerificationStep
		var failureDetail []string
		for _, step := range o.plan.VerificationSteps {
			ok, output := o.runVerificationStep(ctx, step)
			o.emit(events.KindVerifyStep, map[string]interface{}{"name": step.Name, "passed": ok})
			if !ok && step.Required {
				failures = append(failures, step)
				failureDetail = append(failureDetail, fmt.Sprintf("%s: %s", step.Name, trimOutput(output)))
			}
		}

		if len(failures) == 0 {
			o.emit(events.KindVerifyComplete, map[string]interface{}{"attempt": attempt, "passed": true})
			return
		}

		o.emit(events.KindVerifyComplete, map[string]interface{}{"attempt": attempt, "passed": false, "failures": len(failures)})
		if attempt == o.cfg.MaxVerificationRetries {
			return
		}

		fixups, err := o.requestVerificationFixups(ctx, failureDetail)
		if err != nil || len(fixups) == 0 {
			o.recordError(err)
			return
		}
		for i := range fixups {
			fixups[i].FixInstructions = "verification failure"
		}
		if err := o.q.AddFixupTasks(fixups); err != nil {
			o.recordError(err)
			return
		}
		o.emit(events.KindFixupSpawned, map[string]interface{}{"count": len(fixups), "source": "verification"})

		if err := o.executeWaves(ctx); err != nil {
			o.recordError(err)
			return
		}
	}
}

// runVerificationStep runs one bash-runnable verification command (§6's
// decomposer-adjacent verification plan), capturing combined output.
func (o *Orchestrator) runVerificationStep(ctx context.Context, step models.VerificationStep) (bool, string) {
	stepCtx, cancel := context.WithTimeout(ctx, verificationStepTimeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, "bash", "-c", step.Command)
	cmd.Dir = o.workingDir
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return err == nil, buf.String()
}

const verificationFixupSystemPrompt = `You are the verification-fixup manager. Given a list of failed ` +
	`verification commands and their output, propose fix-up subtasks as JSON matching the decomposition ` +
	`schema ({"subtasks":[...],"strategy":...,"reasoning":...}) that would make the commands pass.`

func (o *Orchestrator) requestVerificationFixups(ctx context.Context, failureDetail []string) ([]models.Task, error) {
	var sb bytes.Buffer
	for _, f := range failureDetail {
		fmt.Fprintf(&sb, "- %s\n", f)
	}
	resp, err := o.provider.Chat(ctx, []worker.ChatMessage{
		{Role: "user", Content: sb.String()},
	}, worker.ChatOptions{Model: o.cfg.PlannerModel, SystemPrompt: verificationFixupSystemPrompt, MaxTokens: 2048})
	if err != nil {
		return nil, err
	}
	var d models.Decomposition
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &d); err != nil || len(d.Subtasks) == 0 {
		return nil, fmt.Errorf("verification fixup reply unusable: %w", err)
	}
	return subtasksToTasks(d.Subtasks)
}

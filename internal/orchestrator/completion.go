package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/harrison/swarm/internal/events"
	"github.com/harrison/swarm/internal/health"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/quality"
	"github.com/harrison/swarm/internal/worker"
)

const trimLength = 2000

func trimOutput(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > trimLength {
		return s[:trimLength] + "…"
	}
	return s
}

func healthKindFor(kind ErrorKind) health.FailureKind {
	switch kind {
	case ErrRateLimited:
		return health.FailureRateLimit
	case ErrSpendLimited:
		return health.FailureSpendLimit
	default:
		return health.FailureOther
	}
}

// attemptFailover chooses an alternative worker spec supporting the task's
// capability that is currently healthy, per §4.7's completion-handling
// text. Reuses worker.SelectAgent rather than duplicating its
// capability/health matching: the only new behavior here is refusing a
// no-op "failover" to the same model and emitting the event.
func (o *Orchestrator) attemptFailover(task *models.Task, currentModel, reason string) string {
	if !o.cfg.EnableModelFailover || o.registry == nil {
		return ""
	}
	alt := worker.SelectAgent(task, o.registry, o.health)
	if alt == nil || alt.Model == "" || alt.Model == currentModel {
		return ""
	}
	o.emit(events.KindModelFailover, map[string]interface{}{
		"taskId": task.ID, "from": currentModel, "to": alt.Model, "reason": reason,
	})
	return alt.Model
}

// handleTaskCompletion implements §4.7's handleTaskCompletion: updates model
// health, classifies and retries on failure, checks for hollow completion,
// runs the QualityGate, and finalizes the task's terminal or retried state.
// Returns true iff this completion counted as a failure for the wave's
// all-failed detection.
func (o *Orchestrator) handleTaskCompletion(ctx context.Context, c worker.Completion) bool {
	task := o.q.Get(c.TaskID)
	if task == nil {
		o.recordError(newSwarmError(ErrInternalInvariantViolation, c.TaskID, "completion for unknown task id", c.Err))
		return true
	}

	if c.Err != nil {
		o.health.RecordFailure(task.AssignedModel, health.FailureOther)
		task.RetryContext = &models.RetryContext{
			Attempt: int(task.Attempts) + 1, Reason: "infrastructure-error",
			PreviousFeedback: c.Err.Error(), CreatedAt: time.Now(),
		}
		_ = o.q.MarkFailed(task.ID, o.q.RetryLimitFor(task, false))
		o.emit(events.KindTaskFailed, map[string]interface{}{"taskId": task.ID, "reason": "infrastructure-error"})
		return true
	}

	result := c.Result
	model := task.AssignedModel
	if model == "" {
		model = result.Model
	}

	o.stats.TotalTokens += result.TokensUsed
	o.stats.TotalCost += result.CostUsed
	if o.budgetPool != nil {
		o.budgetPool.Record(result.TokensUsed, result.CostUsed)
	}
	o.emit(events.KindBudgetUpdate, map[string]interface{}{"totalTokens": o.stats.TotalTokens, "totalCost": o.stats.TotalCost})

	if !result.Success {
		kind := classifyProviderError(result.Output + " " + result.ClosureReport)
		rateLimited := kind == ErrRateLimited
		o.health.RecordFailure(model, healthKindFor(kind))
		if rateLimited {
			now := time.Now()
			o.rateBreaker.RecordRateLimit(now)
			if o.rateBreaker.Open(now) {
				o.emit(events.KindCircuitOpen, map[string]interface{}{"breaker": "rate-limit", "recentCount": o.cfg.RateLimitTrip, "pauseMs": o.cfg.RateLimitCooldown.Milliseconds()})
			}
		}

		reason := "other"
		feedback := trimOutput(result.Output)
		switch {
		case result.TimedOut():
			reason = "timeout"
			feedback = "previous attempt timed out; work faster and prioritize the core requirement first"
		case kind != "":
			reason = string(kind)
		}

		newModel := o.attemptFailover(task, model, reason)
		task.RetryContext = &models.RetryContext{
			Attempt: int(task.Attempts) + 1, Reason: reason, PreviousFeedback: feedback,
			PreviousOutput: trimOutput(result.Output), PreviousFiles: result.FilesModified, CreatedAt: time.Now(),
		}
		if newModel != "" {
			task.AssignedModel = newModel
		}

		o.stats.Retries++
		_ = o.q.MarkFailed(task.ID, o.q.RetryLimitFor(task, rateLimited))
		if rateLimited {
			at := o.q.NextRetryAfter(task.Attempts)
			task.RetryAfter = &at
		}
		o.emit(events.KindTaskFailed, map[string]interface{}{"taskId": task.ID, "reason": reason})
		return true
	}

	if hollow, why := isHollow(task, result); hollow {
		o.health.MarkUnhealthy(model)
		newModel := o.attemptFailover(task, model, "hollow-completion")
		task.RetryContext = &models.RetryContext{
			Attempt: int(task.Attempts) + 1, Reason: "hollow-completion", PreviousFeedback: why,
			PreviousOutput: trimOutput(result.Output), MustCallTool: true, CreatedAt: time.Now(),
		}
		if newModel != "" {
			task.AssignedModel = newModel
		}
		_ = o.q.MarkFailed(task.ID, o.q.RetryLimitFor(task, false))
		o.emit(events.KindTaskFailed, map[string]interface{}{"taskId": task.ID, "reason": "hollow-completion"})
		return true
	}

	o.health.RecordSuccess(model, result.DurationMs)

	lastAttempt := int(task.Attempts) >= o.q.RetryLimitFor(task, false)+1
	skipJudge := !o.cfg.QualityGatesEnabled || o.qualityBreaker.Open() || o.rateBreaker.Open(time.Now()) || lastAttempt

	var outcome quality.Outcome
	if skipJudge {
		outcome = quality.Outcome{Passed: true}
	} else {
		outcome = o.gate.Evaluate(ctx, task, result)
	}

	if outcome.Passed {
		if !skipJudge {
			o.qualityBreaker.RecordPass()
		}
		result.QualityScore = outcome.Score
		result.QualityFeedback = outcome.Feedback
		_ = o.q.MarkCompleted(task.ID, result)
		o.board.Publish(task.ID, result.Findings)
		o.emit(events.KindTaskCompleted, map[string]interface{}{
			"taskId":        task.ID,
			"tokensUsed":    result.TokensUsed,
			"costUsed":      result.CostUsed,
			"toolCalls":     result.ToolCalls,
			"filesModified": len(result.FilesModified),
		})
		return false
	}

	if !outcome.PreFlightReject {
		o.qualityBreaker.RecordRejection()
		o.stats.QualityRejections++
		if o.qualityBreaker.Open() {
			o.emit(events.KindCircuitOpen, map[string]interface{}{"breaker": "quality", "trip": o.cfg.QualityBreakerTrip})
		}
	}
	o.emit(events.KindQualityRejected, map[string]interface{}{"taskId": task.ID, "score": outcome.Score, "feedback": outcome.Feedback})

	newModel := ""
	if outcome.Score <= 1 && !outcome.ArtifactAutoFail {
		newModel = o.attemptFailover(task, model, "quality-rejection")
	}
	task.RetryContext = &models.RetryContext{
		Attempt: int(task.Attempts) + 1, Reason: "quality-rejection", PreviousFeedback: outcome.Feedback,
		PreviousScore: outcome.Score, PreviousOutput: trimOutput(result.Output), PreviousFiles: result.FilesModified,
		CreatedAt: time.Now(),
	}
	if newModel != "" {
		task.AssignedModel = newModel
	}
	_ = o.q.MarkFailed(task.ID, o.q.RetryLimitFor(task, false))
	o.emit(events.KindTaskFailed, map[string]interface{}{"taskId": task.ID, "reason": "quality-rejection"})
	return true
}

package orchestrator

import (
	"context"
	"time"

	"github.com/harrison/swarm/internal/events"
	"github.com/harrison/swarm/internal/models"
)

// runRescuePass implements §4.7 step 9: for each remaining failed/skipped
// task whose dependencies are now satisfied and which still has retry
// budget, reset to ready with an escalated retry context and re-dispatch
// once, outside the normal wave loop.
func (o *Orchestrator) runRescuePass(ctx context.Context) {
	rescued := 0
	for _, t := range o.q.All() {
		if t.Status != models.StatusFailed && t.Status != models.StatusSkipped {
			continue
		}
		live := o.q.Get(t.ID)
		if live == nil || !o.dependenciesCompleted(live) {
			continue
		}
		if int(live.Attempts) > o.q.RetryLimitFor(live, false) {
			continue
		}
		live.Status = models.StatusReady
		live.RetryContext = &models.RetryContext{
			Attempt:          int(live.Attempts) + 1,
			Reason:           "rescue",
			PreviousFeedback: "final rescue pass: dependencies are now satisfied, try once more",
			CreatedAt:        time.Now(),
		}
		rescued++
	}
	if rescued == 0 {
		return
	}
	o.emit(events.KindTaskResilience, map[string]interface{}{"phase": "rescue", "count": rescued})
	o.drainReadyOutsideWaves(ctx)
}

// dependenciesCompleted reports whether every dependency of t has reached
// StatusCompleted, since internal/queue does not export its own readiness
// check and the rescue pass runs outside the normal refreshReadiness path.
func (o *Orchestrator) dependenciesCompleted(t *models.Task) bool {
	for _, depID := range t.Dependencies {
		dep := o.q.Get(depID)
		if dep == nil || dep.Status != models.StatusCompleted {
			return false
		}
	}
	return true
}

// drainReadyOutsideWaves dispatches every currently-ready task (regardless
// of wave number) and drains completions until no ready task and no
// in-flight dispatch remain. Used by the rescue pass, which runs after the
// normal wave loop has already advanced past MaxWave.
func (o *Orchestrator) drainReadyOutsideWaves(ctx context.Context) {
	inFlight := make(map[string]bool)

	dispatchOne := func() bool {
		if o.rateBreaker.Open(time.Now()) || !o.pool.HasCapacity() {
			return false
		}
		if o.budgetPool != nil && !o.budgetPool.HasCapacity(0, 0, 0) {
			return false
		}
		for _, candidate := range o.q.GetAllReadyTasks() {
			if inFlight[candidate.ID] {
				continue
			}
			if err := o.q.MarkDispatched(candidate.ID); err != nil {
				continue
			}
			live := o.q.Get(candidate.ID)
			if err := o.pool.Dispatch(ctx, live, o.persona(), o.environmentFacts(), o.board.Snapshot(),
				isLightweightModel(live.AssignedModel), isVeryWeakModel(live.AssignedModel)); err != nil {
				continue
			}
			inFlight[candidate.ID] = true
			o.emit(events.KindTaskDispatched, map[string]interface{}{"taskId": live.ID, "phase": "rescue"})
			return true
		}
		return false
	}

	for dispatchOne() {
		select {
		case <-time.After(o.stagger):
		case <-ctx.Done():
			return
		}
	}

	for len(inFlight) > 0 {
		completion, err := o.pool.WaitForAny(ctx)
		if err != nil {
			o.recordError(err)
			return
		}
		delete(inFlight, completion.TaskID)
		o.handleTaskCompletion(ctx, completion)
		for dispatchOne() {
			select {
			case <-time.After(o.stagger):
			case <-ctx.Done():
				return
			}
		}
	}
}

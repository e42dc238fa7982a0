package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harrison/swarm/internal/events"
	"github.com/harrison/swarm/internal/models"
)

var waveTracer = otel.Tracer("github.com/harrison/swarm/internal/orchestrator")

// executeWaves implements §4.7 step 7: dispatch ready tasks up to
// maxConcurrency staggered by dispatchStaggerMs, honor the circuit breaker,
// refill opportunistically from later waves, requeue an all-failed wave,
// run the optional wave review, checkpoint, and advance.
func (o *Orchestrator) executeWaves(ctx context.Context) error {
	for o.q.CurrentWave() <= o.q.MaxWave() {
		wave := o.q.CurrentWave()
		if err := o.runOneWave(ctx, wave); err != nil {
			return err
		}
		o.q.AdvanceWave()
	}
	return nil
}

// runOneWave executes a single wave inside its own otel span, so each
// wave boundary is a traceable unit independent of how many waves the
// run ends up taking (§4.7 step 7's tracing requirement).
func (o *Orchestrator) runOneWave(parent context.Context, wave int) error {
	ctx, span := waveTracer.Start(parent, fmt.Sprintf("wave-%02d", wave))
	defer span.End()
	span.SetAttributes(attribute.Int("swarm.wave", wave), attribute.String("swarm.session", o.sessionID))

	o.qualityBreaker.ResetOnWave()
	o.emit(events.KindWaveStart, map[string]interface{}{"wave": wave})

	inFlight := make(map[string]bool)
	attempted, failed := 0, 0

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
				// Pool rejected despite HasCapacity (race with another
				// dispatcher); leave the task dispatched and let the
				// stale-reconciliation pass recover it on resume.
				continue
			}
			inFlight[candidate.ID] = true
			attempted++
			o.emit(events.KindTaskDispatched, map[string]interface{}{"taskId": live.ID, "wave": wave})
			return true
		}
		return false
	}

	fillSlots := func() {
		for dispatchOne() {
			select {
			case <-time.After(o.stagger):
			case <-ctx.Done():
				return
			}
		}
	}

	fillSlots()
	for len(inFlight) > 0 {
		completion, err := o.pool.WaitForAny(ctx)
		if err != nil {
			return err
		}
		delete(inFlight, completion.TaskID)
		if o.handleTaskCompletion(ctx, completion) {
			failed++
		}
		fillSlots()
	}

	if attempted > 0 && failed == attempted {
		o.requeueAllFailed(wave)
		o.emit(events.KindWaveAllFailed, map[string]interface{}{"wave": wave, "count": failed})
	}

	if o.cfg.EnableWaveReview {
		o.runWaveReview(ctx, wave)
	}

	o.checkpoint(ctx, fmt.Sprintf("wave-%02d", wave))
	o.emit(events.KindWaveComplete, map[string]interface{}{"wave": wave})

	if !o.hasReplanned && o.shouldReplan() {
		o.runReplan(ctx)
	}
	return nil
}

// requeueAllFailed resets every failed task of this wave back to ready with
// an "all-failed" retry context nudging a fundamentally different approach,
// budget permitting (retries remaining per RetryLimitFor).
func (o *Orchestrator) requeueAllFailed(wave int) {
	for _, t := range o.q.All() {
		if int(t.Wave) != wave || t.Status != models.StatusFailed {
			continue
		}
		live := o.q.Get(t.ID)
		if live == nil {
			continue
		}
		if int(live.Attempts) > o.q.RetryLimitFor(live, false) {
			continue // out of retries, leave terminally failed
		}
		live.Status = models.StatusReady
		live.RetryContext = &models.RetryContext{
			Attempt:          int(live.Attempts) + 1,
			Reason:           "all-failed",
			PreviousFeedback: "every task in this wave failed; try a fundamentally different approach",
			CreatedAt:        time.Now(),
		}
	}
}

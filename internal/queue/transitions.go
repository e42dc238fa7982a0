package queue

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/harrison/swarm/internal/models"
)

// ErrUnknownTask is returned by any operation referencing an id the queue
// doesn't hold.
type ErrUnknownTask struct{ ID string }

func (e *ErrUnknownTask) Error() string { return fmt.Sprintf("unknown task id %q", e.ID) }

// MarkDispatched transitions a ready task to dispatched. §3's invariant that
// "at most one worker per id" is enforced here: dispatching an already-
// dispatched task is a caller bug and returns an error rather than silently
// clobbering ownership.
func (q *Queue) MarkDispatched(id string) error {
	t := q.tasks[id]
	if t == nil {
		return &ErrUnknownTask{ID: id}
	}
	if t.Status == models.StatusDispatched {
		return fmt.Errorf("task %s is already dispatched", id)
	}
	t.Status = models.StatusDispatched
	t.Attempts++
	q.dispatchedAt[id] = time.Now()
	return nil
}

// MarkCompleted transitions a dispatched task to completed and stores its
// result. Per §3, completed implies result.Success and (quality-gate pass or
// bypass) — callers must only call this once that's already established.
func (q *Queue) MarkCompleted(id string, result models.TaskResult) error {
	t := q.tasks[id]
	if t == nil {
		return &ErrUnknownTask{ID: id}
	}
	t.Status = models.StatusCompleted
	t.Result = &result
	delete(q.dispatchedAt, id)
	q.refreshReadiness(id)
	return nil
}

// FailureDisposition controls whether MarkFailed performs the cascade-skip
// walk immediately or leaves a recovery window open — the two-phase pattern
// §9 asks to be modeled as an explicit enum rather than parallel methods.
type FailureDisposition int

const (
	// CascadeImmediately performs the dependent walk as part of this call.
	CascadeImmediately FailureDisposition = iota
	// DeferCascade marks the task failed/retryable but leaves dependents
	// untouched; the caller must later call TriggerCascadeSkip(id) or
	// retry the task back to ready.
	DeferCascade
)

// markFailed is the shared implementation behind MarkFailed and
// MarkFailedWithoutCascade.
func (q *Queue) markFailed(id string, maxRetries int, disposition FailureDisposition) error {
	t := q.tasks[id]
	if t == nil {
		return &ErrUnknownTask{ID: id}
	}
	delete(q.dispatchedAt, id)

	if int(t.Attempts) <= maxRetries {
		t.Status = models.StatusReady
		return nil
	}

	t.Status = models.StatusFailed
	if disposition == CascadeImmediately {
		q.TriggerCascadeSkip(id)
	}
	return nil
}

// MarkFailed marks a dispatched task failed. If attempts are still within
// maxRetries it is returned to ready instead. If not retryable, it performs
// the cascade-skip walk over its transitive dependents immediately.
func (q *Queue) MarkFailed(id string, maxRetries int) error {
	return q.markFailed(id, maxRetries, CascadeImmediately)
}

// MarkFailedWithoutCascade is the same as MarkFailed but defers the cascade
// walk, giving the orchestrator a recovery window (e.g. a rescue retry)
// before dependents are invalidated. P9 requires that no dependent be
// skipped immediately after this call returns.
func (q *Queue) MarkFailedWithoutCascade(id string, maxRetries int) error {
	return q.markFailed(id, maxRetries, DeferCascade)
}

// TriggerCascadeSkip walks forward from a terminally-failed task and skips
// every transitive dependent, unless the partial-dependency policy saves it.
// Already-terminal dependents (completed/failed/skipped) are left alone.
func (q *Queue) TriggerCascadeSkip(id string) {
	visited := make(map[string]bool)
	var walk func(string)
	walk = func(failedID string) {
		for _, depID := range q.dependents[failedID] {
			if visited[depID] {
				continue
			}
			visited[depID] = true

			dep := q.tasks[depID]
			if dep == nil || dep.IsTerminal() {
				continue
			}

			if q.evaluatePartialRescue(dep) {
				// Saved by partial-dependency policy: stays eligible, does
				// not cascade further through it. A pending task is promoted
				// to ready, as refreshReadiness does for a rescue.
				if dep.Status == models.StatusPending {
					dep.Status = models.StatusReady
				}
				continue
			}

			dep.Status = models.StatusSkipped
			walk(depID)
		}
	}
	walk(id)
}

// evaluatePartialRescue computes satisfiedRatio for a ready-candidate with
// at least one failed/skipped dependency. If the ratio clears the
// configured threshold, it attaches partialContext/dependencyContext and
// returns true (task remains eligible). It never changes the task's status;
// that is left to the caller.
func (q *Queue) evaluatePartialRescue(t *models.Task) bool {
	if len(t.Dependencies) == 0 {
		return false
	}

	var succeeded, failed []string
	for _, dep := range t.Dependencies {
		dt := q.tasks[dep]
		if dt == nil {
			continue
		}
		switch dt.Status {
		case models.StatusCompleted, models.StatusDecomposed:
			succeeded = append(succeeded, dep)
		case models.StatusFailed, models.StatusSkipped:
			failed = append(failed, dep)
		}
	}

	if len(failed) == 0 {
		return false // nothing to rescue from; not this policy's business
	}

	total := len(succeeded) + len(failed)
	ratio := 0.0
	if total > 0 {
		ratio = float64(len(succeeded)) / float64(total)
	}

	if ratio < q.cfg.PartialDependencyThreshold {
		return false
	}

	t.PartialContext = &models.PartialContext{
		Succeeded: succeeded,
		Failed:    failed,
		Ratio:     ratio,
	}
	t.DependencyContext = q.buildDependencyContext(succeeded, true)
	return true
}

// buildDependencyContext concatenates completed dependency outputs,
// truncated to DependencyContextMaxLength, preferring lines that mention
// files or creation verbs (the "what got produced" signal a downstream
// task's prompt actually needs). When degraded is true a warning banner is
// prepended per the partial-dependency rescue contract.
func (q *Queue) buildDependencyContext(depIDs []string, degraded bool) string {
	var b strings.Builder
	if degraded {
		b.WriteString("WARNING: one or more dependencies did not complete successfully; proceeding with partial context.\n\n")
	}
	for _, id := range depIDs {
		dep := q.tasks[id]
		if dep == nil || dep.Result == nil {
			continue
		}
		b.WriteString(fmt.Sprintf("=== %s ===\n", id))
		b.WriteString(truncatePreferFileLines(dep.Result.Output, q.cfg.DependencyContextMaxLength))
		b.WriteString("\n")
	}
	return b.String()
}

var fileMentionVerbs = []string{"wrote", "created", "modified", "updated", "deleted", "generated", "added", "file", "files"}

// truncatePreferFileLines truncates s to maxLen, keeping lines that mention
// files or creation verbs when a hard cut would otherwise drop them.
func truncatePreferFileLines(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	lines := strings.Split(s, "\n")
	var kept []string
	budget := maxLen
	// First pass: keep file-mention lines.
	for _, line := range lines {
		lower := strings.ToLower(line)
		mentions := false
		for _, v := range fileMentionVerbs {
			if strings.Contains(lower, v) {
				mentions = true
				break
			}
		}
		if mentions && budget > 0 {
			l := line
			if len(l) > budget {
				l = l[:budget]
			}
			kept = append(kept, l)
			budget -= len(l)
		}
	}
	joined := strings.Join(kept, "\n")
	if len(joined) >= maxLen || len(kept) > 0 {
		if len(joined) > maxLen {
			joined = joined[:maxLen]
		}
		return joined
	}
	// Fallback: no file-mention lines found, just hard-truncate.
	return s[:maxLen]
}

// refreshReadiness is called after a dependency completes/terminates: it
// walks the dependents of id and promotes any whose full dependency set is
// now satisfied (completed/decomposed) from pending to ready, and evaluates
// partial rescue for any whose dependency set includes a failure.
func (q *Queue) refreshReadiness(completedID string) {
	for _, depID := range q.dependents[completedID] {
		t := q.tasks[depID]
		if t == nil || t.Status != models.StatusPending {
			continue
		}
		if q.allDepsSatisfied(t) {
			t.Status = models.StatusReady
			t.DependencyContext = q.buildDependencyContext(t.Dependencies, false)
			continue
		}
		if q.hasTerminalFailure(t) && q.evaluatePartialRescue(t) {
			t.Status = models.StatusReady
		}
	}
}

func (q *Queue) allDepsSatisfied(t *models.Task) bool {
	for _, dep := range t.Dependencies {
		dt := q.tasks[dep]
		if dt == nil {
			return false
		}
		if dt.Status != models.StatusCompleted && dt.Status != models.StatusDecomposed {
			return false
		}
	}
	return true
}

func (q *Queue) hasTerminalFailure(t *models.Task) bool {
	for _, dep := range t.Dependencies {
		dt := q.tasks[dep]
		if dt != nil && (dt.Status == models.StatusFailed || dt.Status == models.StatusSkipped) {
			return true
		}
	}
	return false
}

// UnSkipDependents walks forward from id and restores any skipped task all
// of whose dependencies are now in {completed, decomposed}, per P10. It does
// not look at partial-dependency eligibility — that's evaluated separately
// when a task is still pending, not once it's already been skipped.
func (q *Queue) UnSkipDependents(id string) []string {
	var restored []string
	visited := make(map[string]bool)
	var walk func(string)
	walk = func(from string) {
		for _, depID := range q.dependents[from] {
			if visited[depID] {
				continue
			}
			visited[depID] = true
			t := q.tasks[depID]
			if t == nil || t.Status != models.StatusSkipped {
				continue
			}
			if q.allDepsSatisfied(t) {
				t.Status = models.StatusReady
				restored = append(restored, depID)
				walk(depID)
			}
		}
	}
	walk(id)
	return restored
}

// RetryLimitFor computes the retry budget for a task per §4.4's policy:
// rate-limit causes get RateLimitRetries, foundation tasks get
// WorkerRetries+1, fixups get FixupRetries, everything else gets
// WorkerRetries.
func (q *Queue) RetryLimitFor(t *models.Task, rateLimited bool) int {
	switch {
	case rateLimited:
		return q.cfg.RateLimitRetries
	case t.IsFixupOrReplan():
		return q.cfg.FixupRetries
	case t.IsFoundation:
		return q.cfg.WorkerRetries + 1
	default:
		return q.cfg.WorkerRetries
	}
}

// NextRetryAfter computes the non-blocking retryAfter timestamp for a
// rate-limited retry: min(30s, baseDelay * 2^(attempts-1)).
func (q *Queue) NextRetryAfter(attempts uint32) time.Time {
	exp := math.Pow(2, float64(attempts)-1)
	delayMs := float64(q.cfg.RetryBaseDelayMs) * exp
	if delayMs > 30_000 {
		delayMs = 30_000
	}
	return time.Now().Add(time.Duration(delayMs) * time.Millisecond)
}

// ReconcileStaleDispatched returns the ids of tasks that have been dispatched
// longer than staleAfterMs without a live worker reference (i.e. not present
// in activeTaskIds), resetting each to ready and preserving at most
// workerRetries-1 of their attempts so the next dispatch still has budget.
func (q *Queue) ReconcileStaleDispatched(staleAfterMs int64, activeTaskIds map[string]bool, workerRetries int) []string {
	var stale []string
	cutoff := time.Duration(staleAfterMs) * time.Millisecond
	now := time.Now()

	for id, dispatchedAt := range q.dispatchedAt {
		if activeTaskIds[id] {
			continue
		}
		t := q.tasks[id]
		if t == nil || t.Status != models.StatusDispatched {
			continue
		}
		if now.Sub(dispatchedAt) < cutoff {
			continue
		}
		maxKeep := uint32(workerRetries - 1)
		if workerRetries <= 0 {
			maxKeep = 0
		}
		if t.Attempts > maxKeep {
			t.Attempts = maxKeep
		}
		t.Status = models.StatusReady
		delete(q.dispatchedAt, id)
		stale = append(stale, id)
	}
	return stale
}

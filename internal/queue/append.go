package queue

import (
	"fmt"

	"github.com/harrison/swarm/internal/models"
)

// AddFixupTasks appends fixup tasks produced by a wave review or quality
// rejection. Per §3, fixup tasks join the current wave rather than being
// placed one wave past their dependency, since they're meant to run
// alongside the wave whose output they're repairing.
func (q *Queue) AddFixupTasks(tasks []models.Task) error {
	return q.appendJoiningCurrentWave(tasks)
}

// AddReplanTasks appends tasks produced by a mid-swarm replan (§4.7.3).
// Their dependencies must reference already-completed ids (or other tasks
// of the same batch); they too join the current wave.
func (q *Queue) AddReplanTasks(tasks []models.Task) error {
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			dt := q.tasks[dep]
			if dt != nil && dt.Status != models.StatusCompleted && dt.Status != models.StatusDecomposed {
				return fmt.Errorf("replan task %s depends on %s, which is %s, not completed", t.ID, dep, dt.Status)
			}
			// An id not yet in the queue is taken as a reference to another
			// task of this same replan batch.
		}
	}
	return q.appendJoiningCurrentWave(tasks)
}

func (q *Queue) appendJoiningCurrentWave(tasks []models.Task) error {
	for i := range tasks {
		t := tasks[i]
		if _, exists := q.tasks[t.ID]; exists {
			return &errDuplicateTaskID{ID: t.ID}
		}
		if t.Status == "" {
			t.Status = models.InitialStatus(t.Dependencies)
		}
		t.Wave = uint32(q.currentWave)
		tp := t
		q.tasks[t.ID] = &tp
		q.order = append(q.order, t.ID)
		for _, dep := range t.Dependencies {
			q.dependents[dep] = append(q.dependents[dep], t.ID)
		}
	}
	if q.currentWave > q.maxWave {
		q.maxWave = q.currentWave
	}
	// Newly appended tasks may already have all dependencies satisfied
	// (replan tasks depending on already-completed work): promote them.
	for i := range tasks {
		t := q.tasks[tasks[i].ID]
		if t.Status == models.StatusPending && q.allDepsSatisfied(t) {
			t.Status = models.StatusReady
		}
	}
	return nil
}

type errDuplicateTaskID struct{ ID string }

func (e *errDuplicateTaskID) Error() string { return "duplicate task id: " + e.ID }

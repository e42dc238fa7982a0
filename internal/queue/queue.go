// Package queue implements the DAG scheduler: wave assignment, the per-task
// state machine, cascade-skip, partial-dependency rescue, retry bookkeeping,
// and checkpoint/restore. It is the spec's TaskQueue (§4.4).
package queue

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harrison/swarm/internal/models"
)

// Config holds the policy knobs §4.4 and §6 name explicitly.
type Config struct {
	WorkerRetries               int     // default retry budget for a regular task
	RateLimitRetries            int     // default 3
	FixupRetries                int     // default 2
	RetryBaseDelayMs            int64   // default delay for exponential rate-limit backoff
	PartialDependencyThreshold  float64 // eligibility ratio for partial rescue
	DependencyContextMaxLength  int     // per-dependency truncation length
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		WorkerRetries:              2,
		RateLimitRetries:           3,
		FixupRetries:               2,
		RetryBaseDelayMs:           1000,
		PartialDependencyThreshold: 0.5,
		DependencyContextMaxLength: 2000,
	}
}

// Queue is the spec's TaskQueue. All mutation happens from a single owner
// (the orchestrator's loop) — no internal locking is provided, matching the
// single-threaded cooperative scheduling model of §5.
type Queue struct {
	cfg Config

	tasks map[string]*models.Task
	// order preserves load/append order so ready-task iteration is FIFO,
	// per §5's ordering guarantee.
	order []string

	// dependents[id] holds the ids of tasks that directly depend on id —
	// the reverse edge set used by cascade-skip and unSkipDependents.
	dependents map[string][]string

	dispatchedAt map[string]time.Time

	currentWave int
	maxWave     int
}

// New creates an empty Queue. Load populates it.
func New(cfg Config) *Queue {
	return &Queue{
		cfg:          cfg,
		tasks:        make(map[string]*models.Task),
		dependents:   make(map[string][]string),
		dispatchedAt: make(map[string]time.Time),
		currentWave:  1,
	}
}

// ErrCycle is returned by Load when the task set contains a dependency cycle.
type ErrCycle struct{ Path []string }

func (e *ErrCycle) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}

// ErrDanglingDependency is returned when a task depends on an id not present
// in the loaded set.
type ErrDanglingDependency struct {
	TaskID string
	DepID  string
}

func (e *ErrDanglingDependency) Error() string {
	return fmt.Sprintf("task %s depends on non-existent task %s", e.TaskID, e.DepID)
}

// Load populates the queue from a freshly-decomposed task set: validates
// there are no cycles or dangling dependencies, assigns initial status, and
// computes wave layering by longest path from the roots.
func (q *Queue) Load(tasks []models.Task) error {
	q.tasks = make(map[string]*models.Task, len(tasks))
	q.dependents = make(map[string][]string)
	q.order = q.order[:0]

	for i := range tasks {
		t := tasks[i]
		if t.Status == "" {
			t.Status = models.InitialStatus(t.Dependencies)
		}
		q.tasks[t.ID] = &t
		q.order = append(q.order, t.ID)
	}

	for _, t := range q.tasks {
		for _, dep := range t.Dependencies {
			if _, ok := q.tasks[dep]; !ok {
				return &ErrDanglingDependency{TaskID: t.ID, DepID: dep}
			}
			q.dependents[dep] = append(q.dependents[dep], t.ID)
		}
	}

	if cyclePath := findCycle(q.tasks); cyclePath != nil {
		return &ErrCycle{Path: cyclePath}
	}

	q.assignWaves()
	return nil
}

// findCycle runs a DFS cycle check and returns the offending path, or nil.
func findCycle(tasks map[string]*models.Task) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		for _, dep := range tasks[id].Dependencies {
			switch color[dep] {
			case gray:
				return append(append([]string{}, path...), dep)
			case white:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for id := range tasks {
		if color[id] == white {
			if cyc := visit(id); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// assignWaves computes wave = 1 + max(wave of each dependency) via
// longest-path layering from the roots, skipping fixup/replan tasks which
// join the current wave instead (handled by AddFixupTasks/AddReplanTasks).
func (q *Queue) assignWaves() {
	memo := make(map[string]uint32, len(q.tasks))
	var wave func(id string) uint32
	wave = func(id string) uint32 {
		if w, ok := memo[id]; ok {
			return w
		}
		t := q.tasks[id]
		if len(t.Dependencies) == 0 {
			memo[id] = 1
			return 1
		}
		var max uint32
		for _, dep := range t.Dependencies {
			if w := wave(dep); w > max {
				max = w
			}
		}
		w := max + 1
		memo[id] = w
		return w
	}

	q.maxWave = 0
	for id, t := range q.tasks {
		if t.IsFixupOrReplan() {
			continue
		}
		t.Wave = wave(id)
		if int(t.Wave) > q.maxWave {
			q.maxWave = int(t.Wave)
		}
	}
}

// Get returns the task by id, or nil if not present.
func (q *Queue) Get(id string) *models.Task {
	return q.tasks[id]
}

// All returns every task in load/append order.
func (q *Queue) All() []models.Task {
	out := make([]models.Task, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.tasks[id])
	}
	return out
}

// CurrentWave returns the wave the orchestrator is currently executing.
func (q *Queue) CurrentWave() int { return q.currentWave }

// MaxWave returns the highest wave number assigned during Load.
func (q *Queue) MaxWave() int { return q.maxWave }

// AdvanceWave moves currentWave forward by one. The orchestrator calls this
// only once no ready task remains in earlier waves (§3's wave-assignment
// invariant).
func (q *Queue) AdvanceWave() {
	q.currentWave++
}

// GetReadyTasksInWave returns ready tasks whose wave equals the given wave,
// in FIFO load order.
func (q *Queue) GetReadyTasksInWave(wave int) []models.Task {
	var out []models.Task
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status == models.StatusReady && int(t.Wave) == wave {
			out = append(out, *t)
		}
	}
	return out
}

// GetAllReadyTasks returns every ready task irrespective of wave, letting
// the orchestrator fill dispatch slots from later waves opportunistically.
func (q *Queue) GetAllReadyTasks() []models.Task {
	var out []models.Task
	for _, id := range q.order {
		t := q.tasks[id]
		if t.Status == models.StatusReady {
			out = append(out, *t)
		}
	}
	// Earlier waves take priority when the caller caps how many it drains.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Wave < out[j].Wave })
	return out
}

// Package models defines the core data types shared across the swarm:
// tasks, their dependency graph, results, and the wire shapes exchanged
// with the decomposer and worker agents.
package models

import "time"

// TaskType classifies what kind of work a task represents. The set is open:
// callers may use values outside this list for domain-specific task types.
type TaskType string

const (
	TaskResearch  TaskType = "research"
	TaskAnalysis  TaskType = "analysis"
	TaskDesign    TaskType = "design"
	TaskImplement TaskType = "implement"
	TaskTest      TaskType = "test"
	TaskRefactor  TaskType = "refactor"
	TaskReview    TaskType = "review"
	TaskDocument  TaskType = "document"
	TaskIntegrate TaskType = "integrate"
	TaskDeploy    TaskType = "deploy"
	TaskMerge     TaskType = "merge"
)

// IsActionType returns true for task types whose completion should be backed
// by at least one tool call — used by the hollow-completion and pre-flight
// checks in the quality gate.
func (t TaskType) IsActionType() bool {
	switch t {
	case TaskImplement, TaskTest, TaskRefactor, TaskIntegrate, TaskDeploy:
		return true
	default:
		return false
	}
}

// Status is the task's position in the state machine owned by internal/queue.
// Transitions are enforced by the queue, not by this type.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusDispatched Status = "dispatched"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusDecomposed Status = "decomposed"
)

// RetryContext is an immutable record of what a worker should know about a
// prior attempt. Each retry produces a new RetryContext rather than mutating
// the previous one, so the history of an escalating retry remains inspectable.
type RetryContext struct {
	Attempt          int       // attempt number this context was produced for (1-indexed)
	Reason           string    // "timeout", "hollow-completion", "quality-rejection", "all-failed", "rescue", ...
	PreviousFeedback string    // quality feedback or failure summary from the prior attempt
	PreviousScore    int       // quality score from the prior attempt, 0 if not judged
	PreviousOutput   string    // trimmed output from the prior attempt, for context
	PreviousFiles    []string  // files touched on the prior attempt
	MustCallTool     bool      // true when the prior attempt was hollow; prompt must demand an immediate tool call
	CreatedAt        time.Time
}

// PartialContext records why a task was admitted to dispatch despite one or
// more failed/skipped dependencies (the partial-dependency rescue policy).
type PartialContext struct {
	Succeeded []string // dependency ids that completed
	Failed    []string // dependency ids that failed or were skipped
	Ratio     float64  // len(Succeeded) / (len(Succeeded)+len(Failed))
}

// Task is a single node in the DAG.
type Task struct {
	ID           string
	Description  string
	Type         TaskType
	Complexity   int // 1..10
	TargetFiles  []string
	ReadFiles    []string
	Dependencies []string

	Status Status
	Wave   uint32

	Attempts      uint32
	AssignedModel string
	RetryAfter    *time.Time
	RetryContext  *RetryContext
	IsFoundation  bool

	Result            *TaskResult
	DependencyContext string
	PartialContext    *PartialContext
	RescueContext     string

	// FixesTaskID/FixInstructions are set on fixup/replan-spawned tasks.
	FixesTaskID     string
	FixInstructions string
}

// InitialStatus returns the status a freshly-loaded task should start in:
// ready if it has no dependencies, pending otherwise.
func InitialStatus(deps []string) Status {
	if len(deps) == 0 {
		return StatusReady
	}
	return StatusPending
}

// IsFixupOrReplan reports whether this task was synthesized by the recovery
// subsystem rather than the original decomposition.
func (t *Task) IsFixupOrReplan() bool {
	return t.FixesTaskID != "" || t.FixInstructions != ""
}

// IsTerminal reports whether the task's status is one from which no further
// scheduler-driven transition occurs (unSkipDependents excepted).
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

package models

import "time"

// TaskResult is what the orchestrator records against a task once a worker
// future resolves, win or lose.
type TaskResult struct {
	Success  bool
	Output   string
	TokensUsed int64
	CostUsed   float64
	DurationMs int64
	Model      string

	// ToolCalls is the number of tool invocations the worker made.
	// -1 is a sentinel meaning "timed out" — it must never be confused with
	// a genuine zero, since zero tool calls on an action task is exactly the
	// hollow-completion signal.
	ToolCalls int

	FilesModified []string
	Findings      []string

	QualityScore      int  // 0 if not yet judged
	QualityFeedback   string
	ClosureReport     string // worker's own account of why/how it stopped
	BudgetUtilization float64
}

// TimedOut reports whether this result represents the outer-timeout sentinel.
func (r *TaskResult) TimedOut() bool {
	return r != nil && r.ToolCalls == -1
}

// StructuredOutput is the optional structured payload a worker may return
// alongside its free-text output, per the spawn contract.
type StructuredOutput struct {
	Findings          []string
	ActionsTaken      []string
	Failures          []string
	RemainingWork     []string
	ExitReason        string
	SuggestedNextSteps []string
}

// SpawnMetrics is the metrics sub-object of a SpawnResult.
type SpawnMetrics struct {
	Tokens    int64
	Duration  time.Duration
	ToolCalls int
}

// SpawnResult is what the external spawnAgent black box returns. It is
// consumed, never produced, by this repository (§6 of the spec); the worker
// pool translates it into a TaskResult.
type SpawnResult struct {
	Success       bool
	Output        string
	Metrics       SpawnMetrics
	Structured    *StructuredOutput
	FilesModified []string
}

package models

import "time"

// Checkpoint is the serializable view of a session persisted by
// internal/queue and restored by internal/orchestrator on resume.
// Persistence layout beyond this shape is opaque to the core (§6).
type Checkpoint struct {
	SessionID      string
	Timestamp      time.Time
	Phase          string
	Plan           *Plan
	TaskStates     map[string]Task
	Waves          int
	CurrentWave    int
	Stats          CheckpointStats
	ModelHealth    []HealthSnapshot
	Decisions      []Decision
	Errors         []string
	OriginalPrompt string
	SharedContext  []string
}

// CheckpointStats is the `stats` sub-object of a checkpoint.
type CheckpointStats struct {
	TotalTokens       int64
	TotalCost         float64
	QualityRejections int
	Retries           int
}

// HealthSnapshot is a serializable per-model health record, decoupled from
// internal/health's live tracker so checkpoints don't import it.
type HealthSnapshot struct {
	Model            string
	Successes        int
	Failures         int
	RateLimits       int
	AverageLatencyMs int64
	Healthy          bool
}

// Decision records a logged orchestrator decision point (e.g. "emergency
// scaffold", "quality-circuit-breaker", "replan") for post-hoc inspection.
type Decision struct {
	At     time.Time
	Kind   string
	Detail string
}

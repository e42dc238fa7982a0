// Package orchestrator implements the swarm's top-level pipeline (§4.7):
// resume, decompose, scaffold, foundation detection, model probing,
// planning, wave execution, verification, rescue, synthesis, and the final
// checkpoint/event emission.
package orchestrator

import "time"

// ProbeFailureStrategy governs what happens when every worker model fails
// its capability probe (§4.7 step 5).
type ProbeFailureStrategy string

const (
	ProbeFailureAbort      ProbeFailureStrategy = "abort"
	ProbeFailureWarnAndTry ProbeFailureStrategy = "warn-and-try"
)

// ToolAccessMode controls which tools a worker may invoke.
type ToolAccessMode string

const (
	ToolAccessAll       ToolAccessMode = "all"
	ToolAccessWhitelist ToolAccessMode = "whitelist"
)

// Config is the recognized configuration surface of §6, trimmed to the
// fields this package's pipeline actually consumes; worker-local budget
// shaping lives in worker.BudgetParams, not here.
type Config struct {
	MaxConcurrency    int `yaml:"max_concurrency"`
	TotalBudgetTokens int64
	MaxCostUSD        float64
	WorkerTimeout     time.Duration

	WorkerRetries    int
	RateLimitRetries int
	RetryBaseDelayMs int64

	PartialDependencyThreshold float64

	QualityGatesEnabled bool
	QualityThreshold    int

	EnablePlanning      bool
	EnableWaveReview    bool
	EnableVerification  bool
	MaxVerificationRetries int

	EnableModelFailover bool

	EnablePersistence bool
	StateDir          string
	ResumeSessionID   string

	DispatchStaggerMs      int64
	WorkerStuckThresholdMs int64

	OrchestratorReserveRatio float64

	ProbeModels          bool
	ProbeTimeout         time.Duration
	ProbeFailureStrategy ProbeFailureStrategy

	OrchestratorModel string
	PlannerModel      string
	QualityGateModel  string

	Workers []WorkerSpecConfig

	GlobalDeniedTools []string
	ToolAccessMode    ToolAccessMode

	// RateLimitWindow/RateLimitTrip/RateLimitCooldown shape the rate-limit
	// circuit breaker (§4.7.2).
	RateLimitWindow   time.Duration
	RateLimitTrip     int
	RateLimitCooldown time.Duration

	// QualityBreakerTrip is the consecutive non-pre-flight rejection count
	// that opens the quality-gate breaker for the remainder of a wave.
	QualityBreakerTrip int

	// ReplanStuckRatio/ReplanMinAttempted gate the mid-swarm replan trigger
	// (§4.7.3): at least MinAttempted tasks attempted, and stuck-ratio at or
	// above StuckRatio.
	ReplanStuckRatio    float64
	ReplanMinAttempted  int

	// SuccessRatio/PartialSuccessFloor classify the final outcome (§4.7
	// step 11): success if >= SuccessRatio, partial if > PartialSuccessFloor.
	SuccessRatio        float64
	PartialSuccessFloor float64
}

// WorkerSpecConfig is one entry of the configured `workers[]` list.
type WorkerSpecConfig struct {
	Name         string
	Model        string
	Capabilities []string
}

// DefaultConfig returns the spec's stated defaults for every tunable this
// package reads directly.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:             4,
		WorkerTimeout:              5 * time.Minute,
		WorkerRetries:              2,
		RateLimitRetries:           3,
		RetryBaseDelayMs:           1000,
		PartialDependencyThreshold: 0.5,
		QualityGatesEnabled:        true,
		QualityThreshold:           3,
		EnablePlanning:             true,
		EnableWaveReview:           true,
		EnableVerification:         true,
		MaxVerificationRetries:     2,
		EnableModelFailover:        true,
		EnablePersistence:          true,
		DispatchStaggerMs:          200,
		WorkerStuckThresholdMs:     int64(10 * time.Minute / time.Millisecond),
		OrchestratorReserveRatio:   0.15,
		ProbeModels:                true,
		ProbeTimeout:               10 * time.Second,
		ProbeFailureStrategy:       ProbeFailureWarnAndTry,
		RateLimitWindow:            30 * time.Second,
		RateLimitTrip:              3,
		RateLimitCooldown:          15 * time.Second,
		QualityBreakerTrip:         8,
		ReplanStuckRatio:           0.4,
		ReplanMinAttempted:         3,
		SuccessRatio:               0.7,
		PartialSuccessFloor:        0,
	}
}

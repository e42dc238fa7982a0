// Package worker implements the spec's WorkerPool (§4.5): capability-based
// dispatch, per-task budget/timeout/prompt-tier derivation, and the
// waitForAny completion demultiplexer over a bounded set of active workers.
package worker

import (
	"time"

	"github.com/harrison/swarm/internal/models"
)

// retryMultipliers maps attempt count (0-indexed) to the token/iteration/
// timeout scaling factor: 1.0, 1.3, 1.6, 2.0 for attempts 0/1/2/>=3.
var retryMultipliers = [...]float64{1.0, 1.3, 1.6, 2.0}

func retryMultiplier(attempts uint32) float64 {
	if int(attempts) >= len(retryMultipliers) {
		return retryMultipliers[len(retryMultipliers)-1]
	}
	return retryMultipliers[attempts]
}

// complexityMultiplier scales linearly from complexity 1 (0.52x) to 10 (1.6x),
// 0.4 plus 0.12 per point, so a trivial task doesn't pay for a foundation-sized budget.
func complexityMultiplier(complexity int) float64 {
	if complexity < 1 {
		complexity = 1
	}
	if complexity > 10 {
		complexity = 10
	}
	return 0.4 + float64(complexity)*0.12
}

// TokenBudgetRange is the configured [min, max] clamp for a single worker
// dispatch's token budget.
type TokenBudgetRange struct {
	Min int64
	Max int64
}

// BudgetParams holds the pool-wide knobs §4.5 and §6 name: the token budget
// range, base iteration count, and worker timeout.
type BudgetParams struct {
	TokenBudgetRange TokenBudgetRange
	BaseIterations    int
	WorkerTimeout     time.Duration
}

// DefaultBudgetParams returns the spec's stated defaults.
func DefaultBudgetParams() BudgetParams {
	return BudgetParams{
		TokenBudgetRange: TokenBudgetRange{Min: 4096, Max: 32768},
		BaseIterations:    15,
		WorkerTimeout:     240 * time.Second,
	}
}

// DispatchBudget is what dispatch derives for a single task attempt.
type DispatchBudget struct {
	TokenBudget     int64
	IterationBudget int
	Timeout         time.Duration
	OuterBackstop   time.Duration
	PromptTier      PromptTier
}

// PromptTier controls how much scaffolding the prompt builder includes.
type PromptTier string

const (
	PromptFull    PromptTier = "full"
	PromptReduced PromptTier = "reduced"
	PromptMinimal PromptTier = "minimal"
)

const outerBackstop = 60 * time.Second

// DeriveBudget computes the token/iteration/timeout budget and prompt tier
// for a task attempt, per §4.5. lightweightModel/veryWeakModel let the caller
// report model-tier facts the budget math itself doesn't know about.
func DeriveBudget(t *models.Task, params BudgetParams, lightweightModel, veryWeakModel bool) DispatchBudget {
	retryMult := retryMultiplier(t.Attempts)
	compMult := complexityMultiplier(t.Complexity)

	var tokenBudget int64
	if t.IsFoundation {
		tokenBudget = params.TokenBudgetRange.Max
	} else {
		tokenBudget = int64(float64(params.TokenBudgetRange.Min) +
			(float64(params.TokenBudgetRange.Max-params.TokenBudgetRange.Min))*
				(compMult-0.4)/(1.6-0.4))
		tokenBudget = int64(float64(tokenBudget) * retryMult)
	}
	tokenBudget = clampInt64(tokenBudget, params.TokenBudgetRange.Min, params.TokenBudgetRange.Max)

	iterMult := 1.0
	if t.Attempts >= 2 {
		iterMult = 1.5
	}
	iterationBudget := int(float64(params.BaseIterations) * compMult * retryMult * iterMult)
	if iterationBudget < 1 {
		iterationBudget = 1
	}

	timeout := params.WorkerTimeout
	if timeout < 240*time.Second {
		timeout = 240 * time.Second
	}
	if t.IsFoundation {
		timeout = time.Duration(float64(timeout) * 2.5)
	}
	timeout = time.Duration(float64(timeout) * compMult * retryMult)

	tier := PromptFull
	switch {
	case veryWeakModel:
		tier = PromptMinimal
	case t.Attempts >= 1 || lightweightModel:
		tier = PromptReduced
	}

	return DispatchBudget{
		TokenBudget:     tokenBudget,
		IterationBudget: iterationBudget,
		Timeout:         timeout,
		OuterBackstop:   timeout + outerBackstop,
		PromptTier:      tier,
	}
}

func clampInt64(v, min, max int64) int64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

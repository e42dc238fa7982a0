package budget

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Limits is the `{tokensUsed, costUsed, tokensCap, costCap}` view of §3,
// with the reserved slice for orchestrator-internal calls broken out.
type Limits struct {
	TokensUsed int64
	CostUsed   float64
	TokensCap  int64
	CostCap    float64

	// ReservedTokens/ReservedCost are carved out of the caps for
	// orchestrator-internal LLM calls (decomposition, planning, review,
	// verification, judging) and are not available to worker dispatch.
	ReservedTokens int64
	ReservedCost   float64
}

// Available returns the tokens/cost a worker dispatch may still draw from,
// after setting aside the orchestrator-internal reserve.
func (l Limits) Available() (tokens int64, cost float64) {
	tokens = l.TokensCap - l.ReservedTokens - l.TokensUsed
	if tokens < 0 {
		tokens = 0
	}
	cost = l.CostCap - l.ReservedCost - l.CostUsed
	if cost < 0 {
		cost = 0
	}
	return tokens, cost
}

// reserveRatio returns 5% plus 1% per subtask, clamped to [0.05, 0.4],
// per §3 ("default reserve ratio scales with subtask count up to 40%").
func reserveRatio(subtaskCount int) float64 {
	ratio := 0.05 + float64(subtaskCount)*0.01
	if ratio > 0.40 {
		ratio = 0.40
	}
	if ratio < 0.05 {
		ratio = 0.05
	}
	return ratio
}

// Pool tracks aggregate token/cost usage against configured ceilings and
// gates admission for new dispatches. It is the spec's BudgetPool (§4.2).
type Pool struct {
	mu sync.Mutex

	tokensCap int64
	costCap   float64

	tokensUsed int64
	costUsed   float64

	reservedTokens int64
	reservedCost   float64

	tokensGauge prometheus.Gauge
	costGauge   prometheus.Gauge
}

// NewPool creates a Pool with the given caps and a reserve sized for
// subtaskCount subtasks, per the §3 reserve-ratio rule.
func NewPool(tokensCap int64, costCap float64, subtaskCount int) *Pool {
	ratio := reserveRatio(subtaskCount)
	p := &Pool{
		tokensCap:      tokensCap,
		costCap:        costCap,
		reservedTokens: int64(float64(tokensCap) * ratio),
		reservedCost:   costCap * ratio,
	}
	p.tokensGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_budget_tokens_used",
		Help: "Aggregate tokens consumed by the swarm session.",
	})
	p.costGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_budget_cost_used_usd",
		Help: "Aggregate cost consumed by the swarm session, in USD.",
	})
	return p
}

// Collectors returns the Prometheus collectors this pool exposes, for the
// caller to register with its registry exactly once.
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.tokensGauge, p.costGauge}
}

// ClampProjectedOutput implements §4.2's projected-output clamp:
// clamp(512, 4096, 0.1 · remaining).
func (p *Pool) ClampProjectedOutput() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	remaining := p.tokensCap - p.reservedTokens - p.tokensUsed
	if remaining < 0 {
		remaining = 0
	}
	projected := int64(float64(remaining) * 0.1)
	if projected < 512 {
		projected = 512
	}
	if projected > 4096 {
		projected = 4096
	}
	return projected
}

// HasCapacity reports whether admitting a dispatch projected to use
// projectedInput+projectedOutput tokens (and projectedCost dollars) would
// stay within the worker-available budget (cap minus reserve minus used).
func (p *Pool) HasCapacity(projectedInputTokens, projectedOutputTokens int64, projectedCost float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	projectedTotal := p.tokensUsed + projectedInputTokens + projectedOutputTokens
	if projectedTotal > p.tokensCap-p.reservedTokens {
		return false
	}
	if p.costUsed+projectedCost > p.costCap-p.reservedCost {
		return false
	}
	return true
}

// HasInternalCapacity is the same admission check but drawn against the
// reserved slice, for orchestrator-internal calls.
func (p *Pool) HasInternalCapacity(projectedTokens int64, projectedCost float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return projectedTokens <= p.reservedTokens && projectedCost <= p.reservedCost
}

// Record adds consumed tokens/cost to the running total. It never blocks and
// never refuses — overshoot is tolerated per P6 ("modulo a single in-flight
// overshoot"); HasCapacity is what prevents the next dispatch.
func (p *Pool) Record(tokens int64, cost float64) {
	p.mu.Lock()
	p.tokensUsed += tokens
	p.costUsed += cost
	used, spent := p.tokensUsed, p.costUsed
	p.mu.Unlock()

	if p.tokensGauge != nil {
		p.tokensGauge.Set(float64(used))
	}
	if p.costGauge != nil {
		p.costGauge.Set(spent)
	}
}

// Limits returns a snapshot of current usage and caps.
func (p *Pool) Limits() Limits {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Limits{
		TokensUsed:     p.tokensUsed,
		CostUsed:       p.costUsed,
		TokensCap:      p.tokensCap,
		CostCap:        p.costCap,
		ReservedTokens: p.reservedTokens,
		ReservedCost:   p.reservedCost,
	}
}

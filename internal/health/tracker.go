// Package health tracks per-model success/failure/rate-limit counts for the
// swarm, flipping a healthy bit that the worker pool consults when choosing
// which model to dispatch a task to.
package health

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harrison/swarm/internal/models"
)

// FailureKind classifies why a model call failed, matching §4.3.
type FailureKind string

const (
	FailureRateLimit  FailureKind = "rate-429"
	FailureSpendLimit FailureKind = "spend-402"
	FailureOther      FailureKind = "other"
)

// record is one model's running tally. Not exported: callers only ever see
// a Snapshot, grounded on the teacher's running-threshold confidence
// adjustment in internal/pattern/intelligence.go applied to call outcomes
// instead of pattern matches.
type record struct {
	successes  int
	failures   int
	rateLimits int

	// consecutiveSuccesses counts the run of successes since the last
	// failure; N of these restore healthy=true after an unhealthy mark.
	consecutiveSuccesses int

	lastRateLimit *time.Time
	latencySumMs  int64
	latencyCount  int64
	healthy       bool
	markedDown    bool // explicit markUnhealthy call, independent of the ratio
}

// Snapshot is an immutable, caller-safe view of one model's health record.
type Snapshot struct {
	Model            string
	Successes        int
	Failures         int
	RateLimits       int
	LastRateLimit    *time.Time
	AverageLatencyMs int64
	Healthy          bool
}

// Tracker is the spec's HealthTracker (§4.3).
type Tracker struct {
	mu sync.Mutex

	// unhealthyRatio is how far failures may outpace successes (as a
	// ratio) before the model flips unhealthy.
	unhealthyRatio float64
	// recoverAfter is how many consecutive successes restore healthy=true.
	recoverAfter int

	records map[string]*record
	gauges  map[string]prometheus.Gauge
	factory *prometheus.GaugeVec
}

// NewTracker creates a Tracker with the given unhealthy-ratio threshold and
// recovery streak length. Sensible defaults: ratio 1.5 (50% more failures
// than successes trips it), recoverAfter 3.
func NewTracker(unhealthyRatio float64, recoverAfter int) *Tracker {
	if unhealthyRatio <= 0 {
		unhealthyRatio = 1.5
	}
	if recoverAfter <= 0 {
		recoverAfter = 3
	}
	return &Tracker{
		unhealthyRatio: unhealthyRatio,
		recoverAfter:   recoverAfter,
		records:        make(map[string]*record),
		factory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "swarm_model_healthy",
			Help: "1 if the model is currently considered healthy, else 0.",
		}, []string{"model"}),
	}
}

// Collector returns the GaugeVec this tracker exposes, for registration.
func (t *Tracker) Collector() prometheus.Collector {
	return t.factory
}

func (t *Tracker) get(model string) *record {
	r, ok := t.records[model]
	if !ok {
		r = &record{healthy: true}
		t.records[model] = r
	}
	return r
}

// RecordSuccess logs a successful call and its latency, and may restore a
// previously-unhealthy model once the recovery streak is reached.
func (t *Tracker) RecordSuccess(model string, latencyMs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.get(model)
	r.successes++
	r.latencySumMs += latencyMs
	r.latencyCount++
	r.consecutiveSuccesses++

	if !r.healthy && r.consecutiveSuccesses >= t.recoverAfter {
		r.healthy = true
		r.markedDown = false
	}
	t.updateGauge(model, r.healthy)
}

// RecordFailure logs a failed call of the given kind, resets the recovery
// streak, and flips the model unhealthy once failures outpace successes by
// more than unhealthyRatio.
func (t *Tracker) RecordFailure(model string, kind FailureKind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.get(model)
	r.failures++
	r.consecutiveSuccesses = 0
	if kind == FailureRateLimit {
		r.rateLimits++
		now := time.Now()
		r.lastRateLimit = &now
	}

	if r.successes == 0 || float64(r.failures)/float64(r.successes) > t.unhealthyRatio {
		r.healthy = false
	}
	t.updateGauge(model, r.healthy)
}

// MarkUnhealthy forces a model unhealthy regardless of its ratio, e.g. after
// a failed capability probe.
func (t *Tracker) MarkUnhealthy(model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.get(model)
	r.healthy = false
	r.markedDown = true
	r.consecutiveSuccesses = 0
	t.updateGauge(model, false)
}

// IsHealthy reports the model's current healthy bit. Unknown models are
// assumed healthy until proven otherwise.
func (t *Tracker) IsHealthy(model string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[model]
	if !ok {
		return true
	}
	return r.healthy
}

// GetAllRecords returns a snapshot of every tracked model, for checkpointing.
func (t *Tracker) GetAllRecords() []Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Snapshot, 0, len(t.records))
	for model, r := range t.records {
		var avgLatency int64
		if r.latencyCount > 0 {
			avgLatency = r.latencySumMs / r.latencyCount
		}
		out = append(out, Snapshot{
			Model:            model,
			Successes:        r.successes,
			Failures:         r.failures,
			RateLimits:       r.rateLimits,
			LastRateLimit:    r.lastRateLimit,
			AverageLatencyMs: avgLatency,
			Healthy:          r.healthy,
		})
	}
	return out
}

// Restore replaces the tracker's state with the given snapshots, e.g. on
// checkpoint resume.
func (t *Tracker) Restore(snapshots []models.HealthSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[string]*record, len(snapshots))
	for _, s := range snapshots {
		r := &record{
			successes:  s.Successes,
			failures:   s.Failures,
			rateLimits: s.RateLimits,
			healthy:    s.Healthy,
		}
		r.latencySumMs = s.AverageLatencyMs
		if s.AverageLatencyMs > 0 {
			r.latencyCount = 1
		}
		t.records[s.Model] = r
		t.updateGauge(s.Model, s.Healthy)
	}
}

// Snapshot returns the checkpoint-serializable form of all records.
func (t *Tracker) Snapshot() []models.HealthSnapshot {
	in := t.GetAllRecords()
	out := make([]models.HealthSnapshot, 0, len(in))
	for _, s := range in {
		out = append(out, models.HealthSnapshot{
			Model:            s.Model,
			Successes:        s.Successes,
			Failures:         s.Failures,
			RateLimits:       s.RateLimits,
			AverageLatencyMs: s.AverageLatencyMs,
			Healthy:          s.Healthy,
		})
	}
	return out
}

func (t *Tracker) updateGauge(model string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	t.factory.WithLabelValues(model).Set(v)
}

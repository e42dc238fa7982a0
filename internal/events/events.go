// Package events implements the swarm's produced event stream (§6): a
// tagged record per significant orchestrator occurrence, published to an
// in-process bus and optionally mirrored onto NATS for external observers.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Kind is one of the event tags listed in §6's event stream.
type Kind string

const (
	KindStart              Kind = "swarm.start"
	KindTasksLoaded        Kind = "swarm.tasks.loaded"
	KindWaveStart          Kind = "swarm.wave.start"
	KindWaveComplete       Kind = "swarm.wave.complete"
	KindWaveAllFailed      Kind = "swarm.wave.allFailed"
	KindTaskDispatched     Kind = "swarm.task.dispatched"
	KindTaskCompleted      Kind = "swarm.task.completed"
	KindTaskFailed         Kind = "swarm.task.failed"
	KindTaskSkipped        Kind = "swarm.task.skipped"
	KindTaskAttempt        Kind = "swarm.task.attempt"
	KindTaskResilience     Kind = "swarm.task.resilience"
	KindQualityRejected    Kind = "swarm.quality.rejected"
	KindBudgetUpdate       Kind = "swarm.budget.update"
	KindStatus             Kind = "swarm.status"
	KindPlanComplete       Kind = "swarm.plan.complete"
	KindReviewStart        Kind = "swarm.review.start"
	KindReviewComplete     Kind = "swarm.review.complete"
	KindVerifyStart        Kind = "swarm.verify.start"
	KindVerifyStep         Kind = "swarm.verify.step"
	KindVerifyComplete     Kind = "swarm.verify.complete"
	KindModelFailover      Kind = "swarm.model.failover"
	KindModelHealth        Kind = "swarm.model.health"
	KindStateCheckpoint    Kind = "swarm.state.checkpoint"
	KindStateResume        Kind = "swarm.state.resume"
	KindOrchestratorDecision Kind = "swarm.orchestrator.decision"
	KindOrchestratorLLM    Kind = "swarm.orchestrator.llm"
	KindFixupSpawned       Kind = "swarm.fixup.spawned"
	KindCircuitOpen        Kind = "swarm.circuit.open"
	KindCircuitClosed      Kind = "swarm.circuit.closed"
	KindRoleAction         Kind = "swarm.role.action"
	KindPhaseProgress      Kind = "swarm.phase.progress"
	KindAbort              Kind = "swarm.abort"
	KindReplan             Kind = "swarm.replan"
	KindStall              Kind = "swarm.stall"
	KindComplete           Kind = "swarm.complete"
	KindError              Kind = "swarm.error"
)

// Event is one tagged record in the produced stream. Fields is a free-form
// payload whose shape is documented per event kind in spec.md §8's
// scenarios, not enforced by this package.
type Event struct {
	Kind      Kind
	SessionID string
	At        time.Time
	Fields    map[string]interface{}
}

// MarshalJSON renders the event as a flat object with "kind"/"sessionId"/
// "at" plus the Fields keys, matching the shape an external NATS consumer
// expects rather than a nested envelope.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["kind"] = e.Kind
	out["sessionId"] = e.SessionID
	out["at"] = e.At
	return json.Marshal(out)
}

// Sink receives published events. Listener exceptions never propagate back
// to the publisher (§7): Publish returns nothing, so a sink's own failure
// stays inside the sink.
type Sink interface {
	Publish(e Event)
}

// Bus fans one Publish call out to every registered Sink. It is the
// orchestrator's only handle onto the event stream; NATS, logging, or a
// test recorder are all just Sinks registered on it.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Register adds a Sink. Not safe to call concurrently with Publish on the
// same Bus from goroutines that expect to observe the new sink immediately,
// which is never required here: sinks are registered once at startup.
func (b *Bus) Register(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish fans the event out to every registered sink, recovering from any
// sink panic so one bad listener never corrupts the orchestrator's own
// control flow.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		publishSafely(s, e)
	}
}

func publishSafely(s Sink, e Event) {
	defer func() { _ = recover() }()
	s.Publish(e)
}

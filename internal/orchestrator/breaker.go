package orchestrator

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

var errQualityRejection = errors.New("quality rejection")

// rateLimitBreaker implements §4.7.2's rate-limit breaker: a sliding window
// of recent rate-limit timestamps. Tripping needs a specific short window,
// not gobreaker's ratio-based ReadyToTrip, so this stays a small
// container/list deque in the same style as internal/throttle's FIFO.
type rateLimitBreaker struct {
	mu     sync.Mutex
	window time.Duration
	trip   int
	cooldown time.Duration

	hits   *list.List // of time.Time
	openUntil time.Time
}

func newRateLimitBreaker(window time.Duration, trip int, cooldown time.Duration) *rateLimitBreaker {
	return &rateLimitBreaker{window: window, trip: trip, cooldown: cooldown, hits: list.New()}
}

// RecordRateLimit registers a rate-limit occurrence and opens the breaker if
// the trip threshold is reached within the window.
func (b *rateLimitBreaker) RecordRateLimit(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.hits.PushBack(now)
	b.evict(now)

	if b.hits.Len() >= b.trip {
		b.openUntil = now.Add(b.cooldown)
	}
}

// Open reports whether dispatch is currently suppressed. Closes on the
// first check after the deadline, per spec wording.
func (b *rateLimitBreaker) Open(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evict(now)
	return now.Before(b.openUntil)
}

func (b *rateLimitBreaker) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	for e := b.hits.Front(); e != nil; {
		next := e.Next()
		if e.Value.(time.Time).Before(cutoff) {
			b.hits.Remove(e)
		}
		e = next
	}
}

// qualityBreaker wraps gobreaker to implement §4.7.2's quality-gate
// breaker: after N consecutive non-pre-flight rejections within a wave,
// judging is bypassed for the rest of the wave. gobreaker's
// ConsecutiveFailures counter is exactly this shape; ResetOnWave below
// forces it closed at the wave boundary rather than waiting on its own
// timeout, since the spec resets per-wave, not on a timer.
type qualityBreaker struct {
	cb       *gobreaker.CircuitBreaker
	settings gobreaker.Settings
}

func newQualityBreaker(trip int) *qualityBreaker {
	settings := gobreaker.Settings{
		Name:        "quality-gate",
		MaxRequests: 1,
		Interval:    0,                     // never auto-reset the closed-state counters on a timer; wave boundary does it explicitly
		Timeout:     365 * 24 * time.Hour, // effectively never auto-half-open; ResetOnWave closes it again
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(trip)
		},
	}
	return &qualityBreaker{cb: gobreaker.NewCircuitBreaker(settings), settings: settings}
}

// RecordRejection registers a non-pre-flight quality rejection.
func (b *qualityBreaker) RecordRejection() {
	_, _ = b.cb.Execute(func() (interface{}, error) { return nil, errQualityRejection })
}

// RecordPass registers a quality pass, resetting the consecutive counter.
func (b *qualityBreaker) RecordPass() {
	_, _ = b.cb.Execute(func() (interface{}, error) { return nil, nil })
}

// Open reports whether judging should be bypassed for the rest of the wave.
func (b *qualityBreaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// ResetOnWave forces the breaker closed at a wave boundary, per spec.
func (b *qualityBreaker) ResetOnWave() {
	b.cb = gobreaker.NewCircuitBreaker(b.settings)
}

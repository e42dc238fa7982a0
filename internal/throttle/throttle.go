// Package throttle provides a single front door for every LLM call issued
// through a shared provider: a token bucket for capacity, a FIFO wait-list
// for fairness, and a minimum-spacing gate, all of which narrow and widen in
// response to rate-limit signals from the provider itself.
package throttle

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	maxBackoffLevels = 3
	backoffCooldown  = 10 * time.Second
	maxMinSpacing    = 5 * time.Second
	minRefillRate    = 0.1
)

// RateLimitInfo is fed back into the throttle after any provider response
// that carries rate-limit headers, letting it narrow its limits
// preemptively rather than waiting for a 429.
type RateLimitInfo struct {
	RemainingRequests int
	RemainingTokens   int
	ResetSeconds      int
}

// Config seeds the throttle's original (un-backed-off) configuration.
type Config struct {
	MaxConcurrent       int
	RefillRatePerSecond float64
	MinSpacing          time.Duration
}

// Throttle is the spec's Throttle (§4.1). Its only suspension point is
// Acquire; there is no Release — the natural delay of the downstream LLM
// call is what frees the slot, which keeps the model simple and starvation
// -free given the FIFO wait-list.
type Throttle struct {
	mu sync.Mutex

	original Config

	limiter    *rate.Limiter
	minSpacing time.Duration
	lastConsume time.Time

	waiters *list.List // of chan struct{}, in FIFO arrival order

	backoffLevel int
	lastBackoff  time.Time
	curve        *backoff.ExponentialBackOff
}

// New constructs a Throttle from the given configuration.
func New(cfg Config) *Throttle {
	if cfg.RefillRatePerSecond <= 0 {
		cfg.RefillRatePerSecond = 1
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	curve := backoff.NewExponentialBackOff()
	curve.InitialInterval = cfg.MinSpacing
	if curve.InitialInterval <= 0 {
		curve.InitialInterval = 100 * time.Millisecond
	}
	curve.Multiplier = 2
	curve.MaxInterval = maxMinSpacing

	return &Throttle{
		original:   cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RefillRatePerSecond), cfg.MaxConcurrent),
		minSpacing: cfg.MinSpacing,
		waiters:    list.New(),
		curve:      curve,
	}
}

// Acquire blocks until a virtual token is available under all three of
// §4.1's constraints: capacity, FIFO order, and minimum spacing. It is the
// only suspension point this type exposes.
func (t *Throttle) Acquire(ctx context.Context) error {
	// Join the FIFO line first: if anyone is already waiting, queue behind
	// them even if the limiter would otherwise let us through immediately.
	elem, mySlot := t.enqueue()
	defer t.dequeue(elem)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-mySlot:
		}

		if t.isFront(elem) {
			break
		}
		// Woken out of order (shouldn't happen under correct FIFO signalling,
		// but re-wait defensively rather than jump the line).
		mySlot = t.resignal(elem)
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}

	if err := t.waitSpacing(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	t.lastConsume = time.Now()
	t.mu.Unlock()

	t.advanceFIFO()
	return nil
}

func (t *Throttle) enqueue() (*list.Element, chan struct{}) {
	slot := make(chan struct{}, 1)
	t.mu.Lock()
	elem := t.waiters.PushBack(slot)
	front := t.waiters.Front() == elem
	t.mu.Unlock()
	if front {
		slot <- struct{}{}
	}
	return elem, slot
}

func (t *Throttle) dequeue(elem *list.Element) {
	t.mu.Lock()
	t.waiters.Remove(elem)
	t.mu.Unlock()
}

func (t *Throttle) isFront(elem *list.Element) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waiters.Front() == elem
}

func (t *Throttle) resignal(elem *list.Element) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.waiters.Front() == elem {
		ch := elem.Value.(chan struct{})
		select {
		case ch <- struct{}{}:
		default:
		}
		return ch
	}
	return elem.Value.(chan struct{})
}

// advanceFIFO signals the next waiter in line, if any.
func (t *Throttle) advanceFIFO() {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := t.waiters.Front()
	if next == nil {
		return
	}
	ch := next.Value.(chan struct{})
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (t *Throttle) waitSpacing(ctx context.Context) error {
	t.mu.Lock()
	spacing := t.minSpacing
	elapsed := time.Since(t.lastConsume)
	t.mu.Unlock()

	if spacing <= 0 || elapsed >= spacing {
		return nil
	}
	select {
	case <-time.After(spacing - elapsed):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FeedRateLimitInfo narrows the throttle's limits preemptively from a
// provider response's rate-limit headers, without waiting for a 429.
func (t *Throttle) FeedRateLimitInfo(info RateLimitInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if info.RemainingRequests > 0 && info.RemainingRequests < t.limiter.Burst() {
		t.limiter.SetBurst(info.RemainingRequests)
	}
	if info.ResetSeconds > 0 && info.RemainingTokens >= 0 {
		// Narrow the refill rate so the remaining budget lasts until reset.
		impliedRate := float64(info.RemainingTokens) / float64(info.ResetSeconds)
		if impliedRate > 0 && impliedRate < float64(t.limiter.Limit()) {
			t.limiter.SetLimit(rate.Limit(impliedRate))
		}
	}
}

// Backoff is called on a 429/402 from the provider. It cuts maxConcurrent in
// half (min 1), doubles minSpacing (cap 5s; a zero spacing starts from the
// curve's initial interval), and halves the refill rate (min 0.1 req/s), up
// to three levels.
func (t *Throttle) Backoff() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.backoffLevel >= maxBackoffLevels {
		t.lastBackoff = time.Now()
		return
	}
	t.backoffLevel++
	t.lastBackoff = time.Now()

	newBurst := t.limiter.Burst() / 2
	if newBurst < 1 {
		newBurst = 1
	}
	t.limiter.SetBurst(newBurst)

	newSpacing := t.minSpacing * 2
	if newSpacing <= 0 {
		newSpacing = t.curve.InitialInterval
	}
	if newSpacing > maxMinSpacing {
		newSpacing = maxMinSpacing
	}
	t.minSpacing = newSpacing

	newRate := float64(t.limiter.Limit()) / 2
	if newRate < minRefillRate {
		newRate = minRefillRate
	}
	t.limiter.SetLimit(rate.Limit(newRate))
}

// Recover is called on a successful call. After a 10s cooldown since the
// last backoff, it partially restores configuration toward the original,
// proportional to the remaining backoff level.
func (t *Throttle) Recover() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.backoffLevel == 0 {
		return
	}
	if time.Since(t.lastBackoff) < backoffCooldown {
		return
	}

	t.backoffLevel--
	fraction := 1.0 - float64(t.backoffLevel)/float64(maxBackoffLevels)

	restoredBurst := int(float64(t.original.MaxConcurrent) * fraction)
	if restoredBurst < 1 {
		restoredBurst = 1
	}
	if restoredBurst > t.limiter.Burst() {
		t.limiter.SetBurst(restoredBurst)
	}

	restoredSpacing := t.original.MinSpacing << uint(t.backoffLevel)
	if restoredSpacing < t.minSpacing {
		t.minSpacing = restoredSpacing
	}

	restoredRate := t.original.RefillRatePerSecond * fraction
	if restoredRate > float64(t.limiter.Limit()) {
		t.limiter.SetLimit(rate.Limit(restoredRate))
	}

	t.lastBackoff = time.Now()
}

// BackoffLevel returns the current backoff level, 0..3, for observability
// and tests.
func (t *Throttle) BackoffLevel() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.backoffLevel
}

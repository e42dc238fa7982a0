package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/swarm/internal/agent"
	"github.com/harrison/swarm/internal/health"
	"github.com/harrison/swarm/internal/models"
)

// Completion is what waitForAny yields: the task id and the result, with err
// set only for a genuine infrastructure failure (the spawner returning an
// error before any timeout; a timeout yields the ToolCalls=-1 result) —
// a hollow completion or a worker-reported failure are still a nil err here,
// carried inside the TaskResult for the orchestrator's completion handler.
type Completion struct {
	TaskID string
	Result models.TaskResult
	Err    error
}

// inFlight tracks one active dispatch.
type inFlight struct {
	cancel context.CancelFunc
}

// Pool is the spec's WorkerPool (§4.5): maintains activeWorkers with
// len <= maxConcurrency, derives per-task budgets, and demultiplexes
// completions through a single channel so a rejected future never poisons
// the aggregate wait.
type Pool struct {
	mu            sync.Mutex
	active        map[string]*inFlight
	maxConcurrency int

	registry *agent.Registry
	health   *health.Tracker
	spawner  Spawner
	params   BudgetParams

	completions chan Completion
}

// New constructs a Pool. registry and health may be nil (capability
// selection then returns nil and health checks default to healthy).
func New(maxConcurrency int, registry *agent.Registry, tracker *health.Tracker, spawner Spawner, params BudgetParams) *Pool {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Pool{
		active:         make(map[string]*inFlight),
		maxConcurrency: maxConcurrency,
		registry:       registry,
		health:         tracker,
		spawner:        spawner,
		params:         params,
		completions:    make(chan Completion, maxConcurrency),
	}
}

// Len returns the number of currently active dispatches.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// HasCapacity reports whether another task may be dispatched without
// exceeding maxConcurrency.
func (p *Pool) HasCapacity() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active) < p.maxConcurrency
}

// ErrAtCapacity is returned by Dispatch when the pool is already full.
var ErrAtCapacity = fmt.Errorf("worker pool at capacity")

// Dispatch selects a worker spec for t, derives its budget, registers a
// unique per-task agent name, and starts the spawn in a goroutine racing the
// derived timeout. The result (or a synthetic timeout failure with
// ToolCalls=-1) is delivered asynchronously through Completions().
func (p *Pool) Dispatch(ctx context.Context, t *models.Task, persona, environmentFacts string, learningSnippets []string, lightweightModel, veryWeakModel bool) error {
	p.mu.Lock()
	if len(p.active) >= p.maxConcurrency {
		p.mu.Unlock()
		return ErrAtCapacity
	}
	if _, exists := p.active[t.ID]; exists {
		p.mu.Unlock()
		return fmt.Errorf("task %s is already dispatched in this pool", t.ID)
	}
	p.mu.Unlock()

	spec := SelectAgent(t, p.registry, p.health)
	budgetDerived := DeriveBudget(t, p.params, lightweightModel, veryWeakModel)
	prompt := BuildPrompt(t, budgetDerived.PromptTier, persona, environmentFacts, learningSnippets)

	model := ""
	agentName := fmt.Sprintf("%s-attempt-%d", t.ID, t.Attempts)
	if spec != nil {
		model = spec.Model
		registered := *spec
		registered.Name = agentName
		if p.registry != nil {
			p.registry.Register(&registered)
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, budgetDerived.OuterBackstop)
	p.mu.Lock()
	p.active[t.ID] = &inFlight{cancel: cancel}
	p.mu.Unlock()

	go p.run(dispatchCtx, cancel, t.ID, agentName, prompt, SpawnOptions{
		TokenBudget:     budgetDerived.TokenBudget,
		IterationBudget: budgetDerived.IterationBudget,
		Model:           model,
	}, budgetDerived.Timeout)

	return nil
}

func (p *Pool) run(ctx context.Context, cancel context.CancelFunc, taskID, agentName, prompt string, opts SpawnOptions, innerTimeout time.Duration) {
	defer cancel()
	defer func() {
		p.mu.Lock()
		delete(p.active, taskID)
		p.mu.Unlock()
		if p.registry != nil {
			p.registry.Unregister(agentName)
		}
	}()

	innerCtx, innerCancel := context.WithTimeout(ctx, innerTimeout)
	defer innerCancel()

	start := time.Now()
	spawnResult, err := p.spawner.Spawn(innerCtx, agentName, prompt, opts)
	elapsed := time.Since(start)

	if err != nil && innerCtx.Err() != nil {
		// Inner graceful timeout or outer backstop: synthesize the
		// toolCalls=-1 timeout sentinel rather than an error result, so
		// the orchestrator's hollow-completion check never confuses this
		// with a genuine zero-tool-call completion.
		p.completions <- Completion{
			TaskID: taskID,
			Result: models.TaskResult{
				Success:    false,
				ToolCalls:  -1,
				DurationMs: elapsed.Milliseconds(),
				Model:      opts.Model,
			},
		}
		return
	}
	if err != nil {
		p.completions <- Completion{TaskID: taskID, Err: err}
		return
	}

	p.completions <- Completion{
		TaskID: taskID,
		Result: models.TaskResult{
			Success:       spawnResult.Success,
			Output:        spawnResult.Output,
			TokensUsed:    spawnResult.Metrics.Tokens,
			DurationMs:    elapsed.Milliseconds(),
			Model:         opts.Model,
			ToolCalls:     spawnResult.Metrics.ToolCalls,
			FilesModified: spawnResult.FilesModified,
		},
	}
}

// WaitForAny blocks until at least one dispatch completes (successfully,
// with a worker-level failure, or with an infrastructure error) and returns
// that completion. It returns ctx.Err() if ctx is cancelled first.
func (p *Pool) WaitForAny(ctx context.Context) (Completion, error) {
	select {
	case c := <-p.completions:
		return c, nil
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
}

// Cancel requests cancellation of a specific in-flight dispatch, e.g. when
// its task is rendered moot by a cascade-skip while still running.
func (p *Pool) Cancel(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.active[taskID]; ok {
		w.cancel()
	}
}

// CancelAll requests cancellation of every in-flight dispatch, used by the
// orchestrator's grace-window shutdown.
func (p *Pool) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.active {
		w.cancel()
	}
}

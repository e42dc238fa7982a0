package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/swarm/internal/agent"
	"github.com/harrison/swarm/internal/blackboard"
	"github.com/harrison/swarm/internal/budget"
	"github.com/harrison/swarm/internal/events"
	"github.com/harrison/swarm/internal/health"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/queue"
	"github.com/harrison/swarm/internal/quality"
	"github.com/harrison/swarm/internal/validation/rubric"
	"github.com/harrison/swarm/internal/worker"
)

// Orchestrator drives the full pipeline of §4.7: resume, decompose, scaffold,
// foundation detection, model probing, planning, wave execution,
// verification, rescue, synthesis, and the final checkpoint/event emission.
// It owns the TaskQueue exclusively — workers never touch it (§5).
type Orchestrator struct {
	cfg Config

	q        *queue.Queue
	pool     *worker.Pool
	gate     *quality.Gate
	registry *agent.Registry
	health   *health.Tracker
	bus      *events.Bus
	board    *blackboard.Blackboard
	provider worker.Provider
	store    *queue.Store

	rateBreaker    *rateLimitBreaker
	qualityBreaker *qualityBreaker
	budgetPool     *budget.Pool

	sessionID  string
	workingDir string
	objective  string

	stagger time.Duration

	stats        models.CheckpointStats
	decisions    []models.Decision
	errorsLog    []string
	plan         *models.Plan
	hasReplanned bool
}

// persona is the fixed system framing given to every worker dispatch.
func (o *Orchestrator) persona() string {
	return "You are one worker in a swarm of agents collaborating on a single objective. Stay scoped to your assigned task."
}

// environmentFacts summarizes the working directory for the prompt builder.
func (o *Orchestrator) environmentFacts() string {
	if o.workingDir == "" {
		return ""
	}
	return "Working directory: " + o.workingDir
}

// New constructs an Orchestrator. registry/tracker may be nil (no worker
// specs configured, health checks default to healthy). store may be nil when
// persistence is disabled.
func New(cfg Config, registry *agent.Registry, tracker *health.Tracker, spawner worker.Spawner, provider worker.Provider, bus *events.Bus, store *queue.Store, sessionID, workingDir string) *Orchestrator {
	if tracker == nil {
		tracker = health.NewTracker(1.5, 3)
	}
	if bus == nil {
		bus = events.NewBus()
	}

	qcfg := queue.DefaultConfig()
	qcfg.WorkerRetries = cfg.WorkerRetries
	qcfg.RateLimitRetries = cfg.RateLimitRetries
	qcfg.RetryBaseDelayMs = cfg.RetryBaseDelayMs
	qcfg.PartialDependencyThreshold = cfg.PartialDependencyThreshold

	bparams := worker.DefaultBudgetParams()
	bparams.WorkerTimeout = cfg.WorkerTimeout

	gcfg := quality.DefaultConfig()
	gcfg.PassThreshold = cfg.QualityThreshold

	return &Orchestrator{
		cfg:            cfg,
		q:              queue.New(qcfg),
		pool:           worker.New(cfg.MaxConcurrency, registry, tracker, spawner, bparams),
		gate:           quality.New(gcfg, provider, cfg.QualityGateModel),
		registry:       registry,
		health:         tracker,
		bus:            bus,
		board:          blackboard.New(),
		provider:       provider,
		store:          store,
		rateBreaker:    newRateLimitBreaker(cfg.RateLimitWindow, cfg.RateLimitTrip, cfg.RateLimitCooldown),
		qualityBreaker: newQualityBreaker(cfg.QualityBreakerTrip),
		sessionID:      sessionID,
		workingDir:     workingDir,
		stagger:        time.Duration(cfg.DispatchStaggerMs) * time.Millisecond,
	}
}

// Result is the user-visible outcome of a Run, matching §7's outcome fields.
type Result struct {
	Success         bool
	PartialSuccess  bool
	PartialFailure  bool
	Summary         string
	SynthesisResult string
	Tasks           []models.Task
	Stats           models.CheckpointStats
	Errors          []string
}

func (o *Orchestrator) emit(kind events.Kind, fields map[string]interface{}) {
	o.bus.Publish(events.Event{Kind: kind, SessionID: o.sessionID, At: time.Now(), Fields: fields})
}

func (o *Orchestrator) decide(kind, detail string) {
	o.decisions = append(o.decisions, models.Decision{At: time.Now(), Kind: kind, Detail: detail})
}

func (o *Orchestrator) recordError(err error) {
	if err == nil {
		return
	}
	o.errorsLog = append(o.errorsLog, err.Error())
}

// Run executes the full pipeline against objective in workingDir.
func (o *Orchestrator) Run(ctx context.Context, objective string) (*Result, error) {
	o.objective = objective
	o.emit(events.KindStart, map[string]interface{}{"objective": objective})

	// Step 1: resume.
	resumed, err := o.resume(ctx)
	if err != nil {
		return nil, newSwarmError(ErrInternalInvariantViolation, "", "resume failed", err)
	}

	if !resumed {
		tasks, decomposeDecision, err := decompose(ctx, o.provider, o.cfg.OrchestratorModel, objective)
		if err != nil {
			return nil, newSwarmError(ErrDecompositionInvalid, "", "decomposition failed", err)
		}
		o.decide("decompose", decomposeDecision)

		applyScaffoldFirstOverride(tasks, o.workingDir)
		detectFoundationTasks(tasks)

		if err := o.q.Load(tasks); err != nil {
			return nil, newSwarmError(ErrDecompositionInvalid, "", "loaded decomposition is invalid", err)
		}
		o.emit(events.KindTasksLoaded, map[string]interface{}{"count": len(tasks)})
	}

	// BudgetPool (§4.2) gates dispatch admission once a cap is configured;
	// an unset cap (0) means unlimited, matching Config's zero-value default.
	if o.cfg.TotalBudgetTokens > 0 || o.cfg.MaxCostUSD > 0 {
		o.budgetPool = budget.NewPool(o.cfg.TotalBudgetTokens, o.cfg.MaxCostUSD, len(o.q.All()))
	}

	// Step 5: probe models.
	if o.cfg.ProbeModels {
		allFailed, err := probeModels(ctx, o.provider, o.health, o.configuredModels(), o.cfg.ProbeTimeout)
		if err != nil {
			o.recordError(err)
		}
		if allFailed {
			o.decide("probe-failure", string(o.cfg.ProbeFailureStrategy))
			if o.cfg.ProbeFailureStrategy == ProbeFailureAbort {
				return nil, newSwarmError(ErrCatastrophicProbeFailure, "", "every worker model failed its capability probe", nil)
			}
			o.emit(events.KindStatus, map[string]interface{}{"warning": "all models failed probe, continuing degraded"})
		}
	}

	// Step 6: planning, concurrent with execution.
	var planCh chan *models.Plan
	if o.cfg.EnablePlanning && !resumed {
		planCh = make(chan *models.Plan, 1)
		go func() {
			plan, err := o.runPlanning(ctx)
			if err != nil {
				o.recordError(err)
				planCh <- nil
				return
			}
			planCh <- plan
		}()
	}

	// Step 7: execute waves.
	if err := o.executeWaves(ctx); err != nil {
		return nil, err
	}

	if planCh != nil {
		select {
		case p := <-planCh:
			o.plan = p
			if o.plan != nil {
				o.emit(events.KindPlanComplete, map[string]interface{}{"tasks": len(o.plan.Criteria)})
				if verr := rubric.ValidatePlan(o.q.All(), o.plan); verr != nil {
					o.recordError(verr)
				}
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Step 8: verification.
	if o.cfg.EnableVerification && o.plan != nil {
		o.runVerification(ctx)
	}

	// Step 9: final rescue pass.
	o.runRescuePass(ctx)

	// Step 10: synthesize.
	synthesis := o.synthesize(ctx)

	// Step 11: final checkpoint + completion event.
	o.checkpoint(ctx, "final")

	result := o.buildResult(synthesis)
	o.emit(events.KindComplete, map[string]interface{}{
		"success": result.Success, "partialSuccess": result.PartialSuccess, "summary": result.Summary,
	})
	return result, nil
}

// resume loads the most recent checkpoint for sessionID, if persistence is
// enabled and one exists. Returns true iff a checkpoint was restored.
func (o *Orchestrator) resume(ctx context.Context) (bool, error) {
	if !o.cfg.EnablePersistence || o.store == nil || o.sessionID == "" {
		return false, nil
	}
	cp, err := o.store.Load(o.sessionID, "")
	if err != nil {
		return false, nil // no checkpoint yet is not an error
	}
	tasks := make([]models.Task, 0, len(cp.TaskStates))
	for _, t := range cp.TaskStates {
		tasks = append(tasks, t)
	}
	o.q.RestoreFromCheckpoint(queue.CheckpointView{TaskStates: cp.TaskStates, Waves: cp.Waves, CurrentWave: cp.CurrentWave})
	o.plan = cp.Plan
	o.stats = cp.Stats
	o.health.Restore(cp.ModelHealth)
	o.errorsLog = append(o.errorsLog, cp.Errors...)
	o.objective = cp.OriginalPrompt

	stale := o.q.ReconcileStaleDispatched(o.cfg.WorkerStuckThresholdMs, nil, o.cfg.WorkerRetries)
	o.emit(events.KindStateResume, map[string]interface{}{"phase": cp.Phase, "tasks": len(tasks), "reconciledStale": len(stale)})
	return true, nil
}

func (o *Orchestrator) checkpoint(ctx context.Context, phase string) {
	if !o.cfg.EnablePersistence || o.store == nil {
		return
	}
	view := o.q.Snapshot()
	cp := models.Checkpoint{
		SessionID:      o.sessionID,
		Timestamp:      time.Now(),
		Phase:          phase,
		Plan:           o.plan,
		TaskStates:     view.TaskStates,
		Waves:          view.Waves,
		CurrentWave:    view.CurrentWave,
		Stats:          o.stats,
		ModelHealth:    o.health.Snapshot(),
		Decisions:      o.decisions,
		Errors:         o.errorsLog,
		OriginalPrompt: o.objective,
		SharedContext:  o.board.SharedContext(),
	}
	if err := o.store.Save(o.sessionID, phase, cp); err != nil {
		o.recordError(fmt.Errorf("checkpoint save: %w", err))
		return
	}
	o.emit(events.KindStateCheckpoint, map[string]interface{}{"phase": phase})
}

// configuredModels returns the distinct set of models named by the
// configured worker specs, for the model-health probe.
func (o *Orchestrator) configuredModels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range o.cfg.Workers {
		if w.Model == "" || seen[w.Model] {
			continue
		}
		seen[w.Model] = true
		out = append(out, w.Model)
	}
	return out
}

func isLightweightModel(model string) bool {
	lower := strings.ToLower(model)
	return strings.Contains(lower, "haiku") || strings.Contains(lower, "mini") || strings.Contains(lower, "lite")
}

func isVeryWeakModel(model string) bool {
	lower := strings.ToLower(model)
	return strings.Contains(lower, "instant") || model == ""
}

// buildResult classifies the final outcome per §4.7 step 11 and assembles
// the §7 user-visible outcome shape.
func (o *Orchestrator) buildResult(synthesis string) *Result {
	tasks := o.q.All()
	var completed, total int
	for _, t := range tasks {
		total++
		if t.Status == models.StatusCompleted {
			completed++
		}
	}

	var ratio float64
	if total > 0 {
		ratio = float64(completed) / float64(total)
	}

	res := &Result{
		Tasks:           tasks,
		Stats:           o.stats,
		Errors:          append([]string(nil), o.errorsLog...),
		SynthesisResult: synthesis,
	}
	switch {
	case ratio >= o.cfg.SuccessRatio:
		res.Success = true
		res.Summary = fmt.Sprintf("completed %d/%d tasks (%.0f%%)", completed, total, ratio*100)
	case ratio > o.cfg.PartialSuccessFloor:
		res.PartialSuccess = true
		res.Summary = fmt.Sprintf("partial success: %d/%d tasks completed (%.0f%%)", completed, total, ratio*100)
	default:
		res.PartialFailure = true
		res.Summary = fmt.Sprintf("failed: %d/%d tasks completed (%.0f%%)", completed, total, ratio*100)
	}
	return res
}

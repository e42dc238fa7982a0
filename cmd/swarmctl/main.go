// Command swarmctl is the swarm's process entrypoint: a thin cobra CLI that
// loads configuration, wires the orchestrator's dependencies (agent
// registry, health tracker, throttled provider, worker spawner, event bus,
// checkpoint store), and drives one run of the §4.7 pipeline to completion.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/harrison/swarm/internal/agent"
	swarmconfig "github.com/harrison/swarm/internal/config"
	"github.com/harrison/swarm/internal/display"
	"github.com/harrison/swarm/internal/events"
	"github.com/harrison/swarm/internal/health"
	"github.com/harrison/swarm/internal/logger"
	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/orchestrator"
	"github.com/harrison/swarm/internal/queue"
	"github.com/harrison/swarm/internal/throttle"
	"github.com/harrison/swarm/internal/worker"
)

var (
	configPath     string
	objectiveFlag  string
	workingDirFlag string
	concurrency    int
	totalBudget    int64
	maxCostUSD     float64
	workerTimeout  time.Duration
	stateDirFlag   string
	resumeSession  string
	noColor        bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "swarmctl",
		Short: "Run a wave-scheduled swarm of LLM workers against an objective",
		RunE:  runSwarm,
	}

	cmd.Flags().StringVar(&configPath, "config", "swarm.yaml", "path to the YAML configuration file")
	cmd.Flags().StringVar(&objectiveFlag, "objective", "", "objective to decompose and execute (overrides config)")
	cmd.Flags().StringVar(&workingDirFlag, "working-dir", "", "working directory for worker dispatch (overrides config)")
	cmd.Flags().IntVar(&concurrency, "max-concurrency", 0, "max concurrent workers (0 = use config)")
	cmd.Flags().Int64Var(&totalBudget, "total-budget-tokens", 0, "total token budget across the run (0 = use config)")
	cmd.Flags().Float64Var(&maxCostUSD, "max-cost-usd", 0, "max spend in USD across the run (0 = use config)")
	cmd.Flags().DurationVar(&workerTimeout, "worker-timeout", 0, "per-dispatch worker timeout (0 = use config)")
	cmd.Flags().StringVar(&stateDirFlag, "state-dir", "", "checkpoint state directory (overrides config)")
	cmd.Flags().StringVar(&resumeSession, "resume", "", "resume a previously checkpointed session ID")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored console output")

	return cmd
}

func runSwarm(cmd *cobra.Command, args []string) error {
	cfg, err := swarmconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := swarmconfig.Flags{}
	if objectiveFlag != "" {
		flags.Objective = &objectiveFlag
	}
	if workingDirFlag != "" {
		flags.WorkingDir = &workingDirFlag
	}
	if concurrency > 0 {
		flags.MaxConcurrency = &concurrency
	}
	if totalBudget > 0 {
		flags.TotalBudget = &totalBudget
	}
	if maxCostUSD > 0 {
		flags.MaxCostUSD = &maxCostUSD
	}
	if workerTimeout > 0 {
		flags.Timeout = &workerTimeout
	}
	if stateDirFlag != "" {
		flags.StateDir = &stateDirFlag
	}
	if resumeSession != "" {
		flags.ResumeSession = &resumeSession
	}
	cfg.MergeWithFlags(flags)
	if noColor {
		cfg.Logging.EnableColor = false
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := agent.NewRegistry(cfg.AgentsDir)
	if _, err := registry.Discover(); err != nil {
		return fmt.Errorf("discover agents: %w", err)
	}

	tracker := health.NewTracker(1.5, 3)

	var provider worker.Provider
	switch cfg.Provider.Kind {
	case "cli":
		provider = worker.NewCLIProvider(cfg.Provider.ClaudePath)
	default:
		provider = worker.NewAnthropicProvider(cfg.Provider.APIKey)
	}
	throttled := worker.NewThrottledProvider(provider, throttle.New(throttle.Config{
		MaxConcurrent:       cfg.Throttle.MaxConcurrent,
		RefillRatePerSecond: cfg.Throttle.RefillRatePerSecond,
		MinSpacing:          time.Duration(cfg.Throttle.MinSpacingMs) * time.Millisecond,
	}))

	spawner := worker.NewCLISpawner(cfg.Provider.ClaudePath, cfg.WorkingDir, func(agentName string) (string, []string, error) {
		a, ok := registry.Get(agentName)
		if !ok {
			return "", nil, fmt.Errorf("unknown agent %q", agentName)
		}
		return a.Description, []string(a.Tools), nil
	})

	bus := events.NewBus()
	bus.Register(display.NewWaveProgress(os.Stdout, 0, true))

	consoleLogger := logger.NewConsoleLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.EnableColor)
	bus.Register(consoleLogger)
	if cfg.Logging.Dir != "" {
		fileLogger, err := logger.NewFileLogger(cfg.Logging.Dir, cfg.Logging.JSON)
		if err != nil {
			return fmt.Errorf("open log directory: %w", err)
		}
		defer fileLogger.Close()
		bus.Register(fileLogger)
	}
	if cfg.Events.NATSURL != "" {
		sink, err := events.NewNATSSink(cfg.Events.NATSURL, cfg.Events.NATSPrefix)
		if err != nil {
			return fmt.Errorf("connect nats sink: %w", err)
		}
		defer sink.Close()
		bus.Register(sink)
	}

	var store *queue.Store
	if cfg.Orchestrator.EnablePersistence {
		if err := os.MkdirAll(cfg.Orchestrator.StateDir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
		store, err = queue.OpenStore(filepath.Join(cfg.Orchestrator.StateDir, "checkpoints.db"))
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		defer store.Close()
	}

	sessionID := cfg.Orchestrator.ResumeSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	orch := orchestrator.New(cfg.Orchestrator, registry, tracker, spawner, throttled, bus, store, sessionID, cfg.WorkingDir)

	result, err := orch.Run(ctx, cfg.Objective)
	if err != nil {
		return fmt.Errorf("run swarm: %w", err)
	}

	if !result.Success {
		warning := display.WarnStuckTasks("Swarm finished without full success", unfinishedTaskIDs(result))
		warning.Message = result.Summary
		warning.Display(os.Stderr)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, result.Summary)
	return nil
}

func unfinishedTaskIDs(result *orchestrator.Result) []string {
	var ids []string
	for _, t := range result.Tasks {
		if t.Status != models.StatusCompleted {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

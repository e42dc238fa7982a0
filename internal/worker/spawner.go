package worker

import (
	"context"

	"github.com/harrison/swarm/internal/models"
)

// SpawnOptions carries the per-dispatch budget derived by the pool, for the
// spawnAgent black box to honor.
type SpawnOptions struct {
	TokenBudget     int64
	IterationBudget int
	Model           string
}

// Spawner is the spec's spawnAgent contract (§6). This repository ships one
// implementation, CLISpawner (cli_spawner.go); a deployment may supply its
// own (a harness that actually runs an agentic loop with tools); tests
// supply a fake.
type Spawner interface {
	Spawn(ctx context.Context, agentName, taskPrompt string, opts SpawnOptions) (models.SpawnResult, error)
}

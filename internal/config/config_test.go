package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Orchestrator.MaxConcurrency)
	assert.Equal(t, "anthropic", cfg.Provider.Kind)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
objective: build a thing
logging:
  level: debug
orchestrator:
  max_concurrency: 8
provider:
  kind: cli
  claude_path: /usr/local/bin/claude
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "build a thing", cfg.Objective)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 8, cfg.Orchestrator.MaxConcurrency)
	assert.Equal(t, "cli", cfg.Provider.Kind)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Provider.ClaudePath)
	// Untouched orchestrator fields keep their defaults.
	assert.Equal(t, 0.7, cfg.Orchestrator.SuccessRatio)
}

func TestMergeWithFlagsOnlyAppliesNonNil(t *testing.T) {
	cfg := DefaultConfig()
	n := 12
	cfg.MergeWithFlags(Flags{MaxConcurrency: &n})
	assert.Equal(t, 12, cfg.Orchestrator.MaxConcurrency)
	assert.Equal(t, 12, cfg.Throttle.MaxConcurrent)
	assert.Equal(t, ".", cfg.WorkingDir) // untouched
}

func TestValidateRejectsEmptyObjective(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider.APIKey = "sk-test"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "objective")
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Objective = "x"
	cfg.Provider.APIKey = "sk-test"
	cfg.Logging.Level = "verbose"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "logging.level")
}

func TestValidateRejectsMissingAPIKeyForAnthropicProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Objective = "x"
	os.Unsetenv("ANTHROPIC_API_KEY")
	err := cfg.Validate()
	assert.ErrorContains(t, err, "provider.api_key")
}

func TestValidateAcceptsCLIProviderWithoutAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Objective = "x"
	cfg.Provider.Kind = "cli"
	assert.NoError(t, cfg.Validate())
}

// Package config loads the swarm's YAML configuration file, adapted from
// the teacher's config loader: defaults first, then file overrides, then
// environment overrides, then CLI flags, following the same precedence
// order and the same non-zero-value merge discipline.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/swarm/internal/orchestrator"
)

// LoggingConfig controls the ambient logger, independent of the orchestrator
// pipeline itself.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Dir         string `yaml:"dir"`
	EnableColor bool   `yaml:"enable_color"`
	JSON        bool   `yaml:"json"`
}

// ProviderConfig selects and configures the LLM backend used for every
// orchestrator-internal call (decompose/plan/review/verify/judge).
type ProviderConfig struct {
	// Kind is "anthropic" (direct Messages API) or "cli" (shell to the
	// `claude` binary). Anything else is a config error.
	Kind       string `yaml:"kind"`
	APIKey     string `yaml:"api_key"`
	ClaudePath string `yaml:"claude_path"`
}

// ThrottleConfig mirrors throttle.Config's fields for YAML/env loading.
type ThrottleConfig struct {
	MaxConcurrent       int     `yaml:"max_concurrent"`
	RefillRatePerSecond float64 `yaml:"refill_rate_per_second"`
	MinSpacingMs        int64   `yaml:"min_spacing_ms"`
}

// EventsConfig configures the optional NATS mirror of the in-process event
// bus (§6's event stream, "additive to the default in-process sink").
type EventsConfig struct {
	NATSURL    string `yaml:"nats_url"`
	NATSPrefix string `yaml:"nats_prefix"`
}

// Config is the full recognized configuration surface: the ambient
// logging/provider/throttle knobs this package owns, plus the orchestrator's
// own Config embedded verbatim so one YAML document configures the whole
// pipeline.
type Config struct {
	Objective  string `yaml:"objective"`
	WorkingDir string `yaml:"working_dir"`
	AgentsDir  string `yaml:"agents_dir"`

	Logging  LoggingConfig  `yaml:"logging"`
	Provider ProviderConfig `yaml:"provider"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Events   EventsConfig   `yaml:"events"`

	Orchestrator orchestrator.Config `yaml:"orchestrator"`
}

// DefaultLoggingConfig returns sensible defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:       "info",
		Dir:         ".swarm/logs",
		EnableColor: true,
	}
}

// DefaultThrottleConfig returns sensible defaults, independent of
// throttle.Config so this package doesn't need to import throttle just to
// mirror its zero values.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		MaxConcurrent:       4,
		RefillRatePerSecond: 1.0,
		MinSpacingMs:        250,
	}
}

// DefaultConfig returns a Config seeded with the orchestrator's own stated
// defaults plus this package's ambient defaults.
func DefaultConfig() *Config {
	return &Config{
		WorkingDir:   ".",
		AgentsDir:    ".swarm/agents",
		Logging:      DefaultLoggingConfig(),
		Provider:     ProviderConfig{Kind: "anthropic"},
		Throttle:     DefaultThrottleConfig(),
		Orchestrator: orchestrator.DefaultConfig(),
	}
}

// applyEnvOverrides applies the recognized SWARM_* environment variables,
// which take precedence over file values but not over explicit CLI flags.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SWARM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SWARM_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("SWARM_LOG_COLOR"); v != "" {
		cfg.Logging.EnableColor = v == "true" || v == "1"
	}
	if v := os.Getenv("SWARM_PROVIDER"); v != "" {
		cfg.Provider.Kind = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("SWARM_STATE_DIR"); v != "" {
		cfg.Orchestrator.StateDir = v
	}
	if v := os.Getenv("SWARM_MAX_CONCURRENCY"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.Orchestrator.MaxConcurrency = n
			cfg.Throttle.MaxConcurrent = n
		}
	}
	if v := os.Getenv("SWARM_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
}

// Load reads path and merges it onto DefaultConfig's values; a missing file
// is not an error (a fresh deployment runs on defaults plus env overrides).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Unmarshal onto the already-defaulted struct so a YAML document only
	// needs to mention the fields it wants to override; yaml.v3 leaves
	// untouched fields at their existing (default) value.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Flags carries the CLI flag overrides recognized by cmd/swarmctl, applied
// last (highest precedence), following the teacher's MergeWithFlags pattern
// of "nil means not set, leave the config value alone."
type Flags struct {
	Objective      *string
	WorkingDir     *string
	MaxConcurrency *int
	TotalBudget    *int64
	MaxCostUSD     *float64
	Timeout        *time.Duration
	StateDir       *string
	ResumeSession  *string
}

// MergeWithFlags applies any non-nil flag value onto c.
func (c *Config) MergeWithFlags(f Flags) {
	if f.Objective != nil {
		c.Objective = *f.Objective
	}
	if f.WorkingDir != nil {
		c.WorkingDir = *f.WorkingDir
	}
	if f.MaxConcurrency != nil {
		c.Orchestrator.MaxConcurrency = *f.MaxConcurrency
		c.Throttle.MaxConcurrent = *f.MaxConcurrency
	}
	if f.TotalBudget != nil {
		c.Orchestrator.TotalBudgetTokens = *f.TotalBudget
	}
	if f.MaxCostUSD != nil {
		c.Orchestrator.MaxCostUSD = *f.MaxCostUSD
	}
	if f.Timeout != nil {
		c.Orchestrator.WorkerTimeout = *f.Timeout
	}
	if f.StateDir != nil {
		c.Orchestrator.StateDir = *f.StateDir
	}
	if f.ResumeSession != nil {
		c.Orchestrator.ResumeSessionID = *f.ResumeSession
	}
}

var validLevels = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}

// Validate checks the merged configuration for values the rest of the
// pipeline assumes are already sane, following the teacher's "fail fast at
// load time, not mid-run" convention.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Objective) == "" {
		return fmt.Errorf("objective must not be empty")
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level %q, must be one of: trace, debug, info, warn, error", c.Logging.Level)
	}
	if c.Orchestrator.MaxConcurrency < 1 {
		return fmt.Errorf("orchestrator.max_concurrency must be >= 1, got %d", c.Orchestrator.MaxConcurrency)
	}
	switch c.Provider.Kind {
	case "anthropic", "cli":
	default:
		return fmt.Errorf("provider.kind must be one of: anthropic, cli; got %q", c.Provider.Kind)
	}
	if c.Provider.Kind == "anthropic" && c.Provider.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		return fmt.Errorf("provider.api_key not set and ANTHROPIC_API_KEY is empty")
	}
	if c.Throttle.MaxConcurrent < 1 {
		return fmt.Errorf("throttle.max_concurrent must be >= 1, got %d", c.Throttle.MaxConcurrent)
	}
	if c.Throttle.RefillRatePerSecond <= 0 {
		return fmt.Errorf("throttle.refill_rate_per_second must be > 0, got %v", c.Throttle.RefillRatePerSecond)
	}
	return nil
}

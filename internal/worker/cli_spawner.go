package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harrison/swarm/internal/budget"
	"github.com/harrison/swarm/internal/claude"
	"github.com/harrison/swarm/internal/models"
)

// CLISpawner implements Spawner by shelling to the `claude` CLI with full
// tool access, adapted from the teacher's agent-dispatch invocation: each
// call runs one non-interactive `claude -p` session scoped to a single
// agent/task pair and parses its JSON trailer for usage and tool-call
// counts. This is the one concrete answer to Spawner's black-box contract
// (§6) this repository ships; a deployment that spawns agents some other
// way (a different harness, a remote sandbox) supplies its own.
type CLISpawner struct {
	ClaudePath string
	WorkingDir string

	// AgentPrompt resolves agentName to the system prompt that
	// characterizes it. Callers normally pass agent.Registry.Get(name)'s
	// SystemPrompt through this func; it exists as a func rather than a
	// direct Registry dependency so tests can stub it.
	AgentPrompt func(agentName string) (string, []string, error)
}

// NewCLISpawner constructs a CLISpawner. claudePath defaults to "claude" on
// PATH when empty.
func NewCLISpawner(claudePath, workingDir string, agentPrompt func(string) (string, []string, error)) *CLISpawner {
	if claudePath == "" {
		claudePath = "claude"
	}
	return &CLISpawner{ClaudePath: claudePath, WorkingDir: workingDir, AgentPrompt: agentPrompt}
}

type cliSpawnOutput struct {
	Result    string `json:"result"`
	Content   string `json:"content"`
	Error     string `json:"error"`
	IsError   bool   `json:"is_error"`
	NumTurns  int    `json:"num_turns"`
	SessionID string `json:"session_id"`
	Usage     struct {
		InputTokens            int64 `json:"input_tokens"`
		OutputTokens           int64 `json:"output_tokens"`
		CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
		CacheReadInputTokens   int64 `json:"cache_read_input_tokens"`
	} `json:"usage"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// Spawn runs the agent's system prompt plus the wave-dispatched task prompt
// through one `claude -p` invocation, with the agent's declared tool
// whitelist (or every tool, when empty) and opts.Model/IterationBudget
// steering the CLI's own turn and tool budget.
func (s *CLISpawner) Spawn(ctx context.Context, agentName, taskPrompt string, opts SpawnOptions) (models.SpawnResult, error) {
	systemPrompt, allowedTools, err := s.AgentPrompt(agentName)
	if err != nil {
		return models.SpawnResult{}, fmt.Errorf("resolve agent %q: %w", agentName, err)
	}

	args := []string{"-p", "--output-format", "json", "--permission-mode", "bypassPermissions"}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.IterationBudget > 0 {
		args = append(args, "--max-turns", fmt.Sprintf("%d", opts.IterationBudget))
	}
	if systemPrompt != "" {
		args = append(args, "--append-system-prompt", systemPrompt)
	}
	if len(allowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(allowedTools, ","))
	}
	args = append(args, taskPrompt)

	cmd := exec.CommandContext(ctx, s.ClaudePath, args...)
	cmd.Dir = s.WorkingDir
	claude.SetCleanEnv(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	raw := stdout.String()
	if runErr != nil {
		if info := budget.ParseRateLimitFromOutput(raw); info != nil {
			return models.SpawnResult{}, fmt.Errorf("rate limit: %s", raw)
		}
		if ctx.Err() != nil {
			return models.SpawnResult{Metrics: models.SpawnMetrics{Duration: elapsed}}, ctx.Err()
		}
		return models.SpawnResult{}, fmt.Errorf("claude CLI exited with error after %s: %w (stderr: %s)", elapsed, runErr, stderr.String())
	}

	out, parsed := parseCLISpawnOutput(raw)
	if !parsed {
		return models.SpawnResult{
			Success: true,
			Output:  raw,
			Metrics: models.SpawnMetrics{Duration: elapsed},
		}, nil
	}
	if out.IsError || out.Error != "" {
		msg := out.Error
		if msg == "" {
			msg = out.Result
		}
		return models.SpawnResult{
			Success: false,
			Output:  msg,
			Metrics: models.SpawnMetrics{Duration: elapsed, ToolCalls: out.NumTurns},
		}, nil
	}

	content := out.Result
	if content == "" {
		content = out.Content
	}
	return models.SpawnResult{
		Success: true,
		Output:  content,
		Metrics: models.SpawnMetrics{
			Tokens:    out.Usage.InputTokens + out.Usage.OutputTokens + out.Usage.CacheReadInputTokens,
			Duration:  elapsed,
			ToolCalls: out.NumTurns,
		},
	}, nil
}

func parseCLISpawnOutput(raw string) (cliSpawnOutput, bool) {
	var out cliSpawnOutput
	if err := json.Unmarshal([]byte(raw), &out); err == nil {
		return out, true
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return out, false
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return out, false
	}
	return out, true
}

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
)

// CLIProvider shells out to the `claude` CLI in non-interactive print mode,
// adapted from the teacher's claude.Invoker: same JSON-output parsing and
// rate-limit detection, but answering the provider-agnostic Chat contract
// instead of building agent-registry flags for a specific task shape. Useful
// as a drop-in alternative backend to AnthropicProvider when a deployment
// already authenticates through the CLI rather than a raw API key.
type CLIProvider struct {
	ClaudePath string
}

// NewCLIProvider constructs a CLIProvider invoking the given binary (default
// "claude" if empty).
func NewCLIProvider(claudePath string) *CLIProvider {
	if claudePath == "" {
		claudePath = "claude"
	}
	return &CLIProvider{ClaudePath: claudePath}
}

type cliOutput struct {
	Content   string `json:"content"`
	Result    string `json:"result"`
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

// Chat flattens messages into a single prompt (the CLI has no multi-turn
// message array, only -p plus --system-prompt) and parses its JSON
// output, falling back to raw text when the CLI doesn't emit valid JSON.
func (c *CLIProvider) Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatResponse, error) {
	var prompt strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&prompt, "[%s]\n%s\n\n", m.Role, m.Content)
	}

	args := []string{"-p", "--output-format", "json", "--permission-mode", "bypassPermissions"}
	if opts.SystemPrompt != "" {
		args = append(args, "--system-prompt", opts.SystemPrompt)
	}
	args = append(args, prompt.String())

	cmd := exec.CommandContext(ctx, c.ClaudePath, args...)
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
			return nil, fmt.Errorf("rate limit: %s", raw)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("claude CLI exited with error after %s: %w (stderr: %s)", elapsed, runErr, stderr.String())
	}

	out, parsed := parseCLIOutput(raw)
	if !parsed {
		return &ChatResponse{Content: raw}, nil
	}
	if out.Error != "" {
		return nil, fmt.Errorf("claude CLI reported error: %s", out.Error)
	}
	content := out.Content
	if content == "" {
		content = out.Result
	}
	return &ChatResponse{Content: content}, nil
}

// parseCLIOutput parses the CLI's JSON wrapper, tolerating leading/trailing
// prose the CLI occasionally emits around the JSON object.
func parseCLIOutput(raw string) (cliOutput, bool) {
	var out cliOutput
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

package quality

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/worker"
)

const maxGroundTruthFiles = 10
const groundTruthCharsPerFile = 2000

var scoreRegex = regexp.MustCompile(`(?i)SCORE:\s*(\d+)`)
var feedbackRegex = regexp.MustCompile(`(?is)FEEDBACK:\s*(.*)`)

// judge implements §4.6 layer 3: an LLM call asked to reply with a SCORE
// line and a FEEDBACK line, clamped and defaulted per the spec's tolerance
// for a malformed reply (a missing header is a soft default, not a reject).
func (g *Gate) judge(ctx context.Context, t *models.Task, result models.TaskResult) Outcome {
	prompt := g.buildJudgePrompt(t, result)

	resp, err := g.provider.Chat(ctx, []worker.ChatMessage{{Role: "user", Content: prompt}}, worker.ChatOptions{
		Model:     g.judgeModel,
		MaxTokens: 1024,
	})
	if err != nil {
		return Outcome{Score: 3, Passed: false, GateError: true, Feedback: "judge call failed: " + err.Error()}
	}

	score := 3
	if m := scoreRegex.FindStringSubmatch(resp.Content); len(m) == 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			score = v
		}
	}
	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}

	feedback := strings.TrimSpace(resp.Content)
	if m := feedbackRegex.FindStringSubmatch(resp.Content); len(m) == 2 {
		feedback = strings.TrimSpace(m[1])
	}

	return Outcome{
		Score:    score,
		Passed:   score >= g.threshold(t),
		Feedback: feedback,
	}
}

func (g *Gate) buildJudgePrompt(t *models.Task, result models.TaskResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task type: %s\nTask description: %s\n\n", t.Type, t.Description)
	fmt.Fprintf(&b, "Worker output:\n%s\n\n", result.Output)
	if result.ClosureReport != "" {
		fmt.Fprintf(&b, "Closure report:\n%s\n\n", result.ClosureReport)
	}

	files := groundTruthTargets(t, result)
	for i, path := range files {
		if i >= maxGroundTruthFiles {
			break
		}
		data, err := g.readFile(path)
		if err != nil {
			continue
		}
		content := string(data)
		if len(content) > groundTruthCharsPerFile {
			content = content[:groundTruthCharsPerFile]
		}
		fmt.Fprintf(&b, "=== %s (ground truth) ===\n%s\n\n", path, content)
	}

	b.WriteString("Reply with exactly two lines:\nSCORE: <1-5>\nFEEDBACK: <your reasoning>\n")
	return b.String()
}

// groundTruthTargets merges target and worker-reported files, deduplicated,
// target files first since they're the task's stated intent.
func groundTruthTargets(t *models.Task, result models.TaskResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append(append([]string{}, t.TargetFiles...), result.FilesModified...) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

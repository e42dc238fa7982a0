// Package quality implements the spec's QualityGate (§4.6): a three-layer
// pipeline of pre-flight checks, concrete syntactic checks, and an LLM
// judge, run in that order so cheap and certain rejections never pay for a
// judge call.
package quality

import (
	"context"
	"os"
	"strings"

	"github.com/harrison/swarm/internal/models"
	"github.com/harrison/swarm/internal/worker"
)

// Outcome is the gate's verdict for one task attempt.
type Outcome struct {
	Score            int
	Passed           bool
	Feedback         string
	PreFlightReject  bool
	ArtifactAutoFail bool
	GateError        bool
}

// Config holds the gate's tunable thresholds.
type Config struct {
	PassThreshold           int // default 3
	FoundationPassThreshold int // default max(2, PassThreshold-1)
	FailureAdmissionPhrases []string
}

// DefaultConfig returns the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		PassThreshold:           3,
		FoundationPassThreshold: 2,
		FailureAdmissionPhrases: []string{
			"budget exhausted", "unable to complete", "could not complete",
			"ran out of", "giving up", "unable to finish",
		},
	}
}

// Gate runs the three-layer pipeline against a task and its worker result.
type Gate struct {
	cfg      Config
	provider worker.Provider
	judgeModel string
	readFile func(path string) ([]byte, error)
}

// New constructs a Gate. provider is used for the LLM judge stage only;
// readFile is set to os.ReadFile (tests in this package replace it with a
// fake).
func New(cfg Config, provider worker.Provider, judgeModel string) *Gate {
	return &Gate{cfg: cfg, provider: provider, judgeModel: judgeModel, readFile: os.ReadFile}
}

// Evaluate runs pre-flight, then concrete checks, then the LLM judge,
// short-circuiting at the first layer that reaches a verdict.
func (g *Gate) Evaluate(ctx context.Context, t *models.Task, result models.TaskResult) Outcome {
	if out, ok := g.preFlight(t, result); ok {
		return out
	}
	if out, ok := g.concreteChecks(t, result); ok {
		return out
	}
	return g.judge(ctx, t, result)
}

func (g *Gate) threshold(t *models.Task) int {
	if t.IsFoundation {
		th := g.cfg.PassThreshold - 1
		if th < g.cfg.FoundationPassThreshold {
			th = g.cfg.FoundationPassThreshold
		}
		return th
	}
	return g.cfg.PassThreshold
}

func containsAny(haystack string, needles []string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func mentionsArtifact(description string) bool {
	lower := strings.ToLower(description)
	markers := []string{".md", ".txt", ".json", ".yaml", ".yml", "write ", "document", "report"}
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (g *Gate) fail(score int, feedback string, preFlight, artifactAutoFail bool) Outcome {
	return Outcome{
		Score:            score,
		Passed:           false,
		Feedback:         feedback,
		PreFlightReject:  preFlight,
		ArtifactAutoFail: artifactAutoFail,
	}
}

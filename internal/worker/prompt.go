package worker

import (
	"fmt"
	"strings"

	"github.com/harrison/swarm/internal/agent"
	"github.com/harrison/swarm/internal/models"
)

// taskTypeRules gives each task type its own short rule block, reused from
// reduced to full tiers alike since these are cheap and task-defining.
var taskTypeRules = map[models.TaskType]string{
	models.TaskResearch:  "Investigate and report findings. Do not modify files unless asked.",
	models.TaskAnalysis:  "Analyze the indicated code or data and report conclusions with evidence.",
	models.TaskDesign:    "Produce a design document or interface sketch. Prefer clarity over completeness.",
	models.TaskImplement: "Implement the change directly. Your first action should be a tool call, not prose.",
	models.TaskTest:      "Write or run tests covering the described behavior. Report pass/fail counts.",
	models.TaskRefactor:  "Change structure without changing externally observable behavior.",
	models.TaskReview:    "Review the indicated work and report concrete issues, not general praise.",
	models.TaskDocument:  "Write or update documentation. State which files you touched.",
	models.TaskIntegrate: "Wire the named components together; verify they compile/run as a unit.",
	models.TaskDeploy:    "Perform the deployment step described; report the resulting state.",
	models.TaskMerge:     "Reconcile the named branches of work into one coherent result.",
}

// BuildPrompt assembles the worker prompt for a task attempt, varying detail
// by tier. persona and environmentFacts are supplied by the caller
// (orchestrator) so this package stays free of filesystem/environment
// probing concerns.
func BuildPrompt(t *models.Task, tier PromptTier, persona, environmentFacts string, learningSnippets []string) string {
	var b strings.Builder

	if persona != "" {
		b.WriteString(agent.XMLSection("persona", persona))
		b.WriteString("\n\n")
	}

	if environmentFacts != "" {
		facts := environmentFacts
		if tier != PromptFull {
			facts = compactEnvironmentFacts(facts)
		}
		b.WriteString(agent.XMLSection("environment", facts))
		b.WriteString("\n\n")
	}

	b.WriteString(agent.XMLSection("task", t.Description))
	b.WriteString("\n\n")

	if rule, ok := taskTypeRules[t.Type]; ok {
		b.WriteString(agent.XMLSection("task_type_rules", rule))
		b.WriteString("\n\n")
	}

	if len(t.TargetFiles) > 0 {
		b.WriteString(agent.XMLList("target_files", t.TargetFiles))
		b.WriteString("\n\n")
	}

	if t.DependencyContext != "" {
		b.WriteString(agent.XMLSection("dependency_context", t.DependencyContext))
		b.WriteString("\n\n")
	}

	if t.RetryContext != nil {
		b.WriteString(buildRetrySection(t.RetryContext))
		b.WriteString("\n\n")
	}

	if tier == PromptFull && len(learningSnippets) > 0 {
		b.WriteString(agent.XMLList("lessons_from_other_workers", learningSnippets))
		b.WriteString("\n\n")
	}

	if tier == PromptFull {
		return agent.EnhancePromptForClaude4(strings.TrimSpace(b.String()))
	}
	return strings.TrimSpace(b.String())
}

func buildRetrySection(rc *models.RetryContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "This is attempt %d. Reason for the previous attempt's failure: %s.\n", rc.Attempt, rc.Reason)
	if rc.PreviousFeedback != "" {
		fmt.Fprintf(&sb, "Previous feedback: %s\n", rc.PreviousFeedback)
	}
	if rc.PreviousScore > 0 {
		fmt.Fprintf(&sb, "Previous quality score: %d/5\n", rc.PreviousScore)
	}
	if rc.PreviousOutput != "" {
		fmt.Fprintf(&sb, "Previous output (trimmed): %s\n", rc.PreviousOutput)
	}
	if len(rc.PreviousFiles) > 0 {
		fmt.Fprintf(&sb, "Files touched previously: %s\n", strings.Join(rc.PreviousFiles, ", "))
	}
	if rc.MustCallTool {
		sb.WriteString("CRITICAL: your previous attempt made no tool calls. Your very first action this time must be a tool call.\n")
	}
	return agent.XMLSection("retry_context", sb.String())
}

// compactEnvironmentFacts keeps only the first few lines, for reduced/minimal
// tiers where prompt size matters more than completeness.
func compactEnvironmentFacts(facts string) string {
	lines := strings.Split(facts, "\n")
	if len(lines) > 5 {
		lines = lines[:5]
	}
	return strings.Join(lines, "\n")
}

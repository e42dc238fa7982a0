// Package rubric validates a decomposed task graph and its accompanying
// plan (§4.7 step 6's acceptance criteria and verification steps) before
// the swarm starts dispatching waves. It catches structural mistakes a
// decomposer or planner LLM call can make that would otherwise surface
// much later as a confusing quality-gate rejection or a stuck DAG.
package rubric

import (
	"fmt"
	"strings"

	"github.com/harrison/swarm/internal/models"
)

// ValidationError is a single rubric violation tied to one task.
type ValidationError struct {
	TaskID  string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("task %s (%s): %s", e.TaskID, e.Field, e.Message)
}

// ValidationResult aggregates every violation found across a plan.
type ValidationResult struct {
	Errors []ValidationError
}

func (r *ValidationResult) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "rubric validation failed with %d error(s):\n", len(r.Errors))
	for _, e := range r.Errors {
		fmt.Fprintf(&sb, "  - %s\n", e.Error())
	}
	return sb.String()
}

// HasErrors reports whether any violation was recorded.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// ValidatePlan checks a decomposed task graph against its plan. It never
// consults the scheduler: cycle and dangling-dependency detection belong to
// internal/queue.Load, which runs independently of this package.
func ValidatePlan(tasks []models.Task, plan *models.Plan) error {
	result := &ValidationResult{}

	byID := make(map[string]*models.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	for i := range tasks {
		validateTask(&tasks[i], plan, result)
	}

	if result.HasErrors() {
		return result
	}
	return nil
}

func validateTask(task *models.Task, plan *models.Plan, result *ValidationResult) {
	validateTaskTypeConstraints(task, result)
	validateDocumentationTarget(task, result)

	if plan == nil {
		return
	}
	criteria, ok := plan.Criteria[task.ID]
	if !ok || len(criteria.Criteria) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			TaskID: task.ID, Field: "acceptance_criteria",
			Message: "task has no acceptance criteria in the plan",
		})
		return
	}
	validateTerminologyAlignment(task, criteria, result)
}

// validateTaskTypeConstraints enforces the one structural rule every task
// type implies on its own dependency shape: a merge task exists to reconcile
// at least two upstream branches, so one with fewer than two dependencies is
// almost certainly a decomposer mistake rather than an intentional merge.
func validateTaskTypeConstraints(task *models.Task, result *ValidationResult) {
	if task.Type == models.TaskMerge && len(task.Dependencies) < 2 {
		result.Errors = append(result.Errors, ValidationError{
			TaskID: task.ID, Field: "dependencies",
			Message: fmt.Sprintf("merge task has %d dependencies, expected at least 2", len(task.Dependencies)),
		})
	}
}

// validateDocumentationTarget requires that a document task names at least
// one target file; a documentation task with nothing to write is a no-op
// the quality gate would reject anyway, but catching it here is cheaper.
func validateDocumentationTarget(task *models.Task, result *ValidationResult) {
	if task.Type != models.TaskDocument {
		return
	}
	if len(task.TargetFiles) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			TaskID: task.ID, Field: "target_files",
			Message: "document task has no target files",
		})
	}
}

// validateTerminologyAlignment checks that the acceptance criteria actually
// reference something from the task description, catching the case of a
// planner call producing boilerplate criteria disconnected from the task.
func validateTerminologyAlignment(task *models.Task, criteria models.AcceptanceCriteria, result *ValidationResult) {
	terms := extractSignificantTerms(task.Description)
	if len(terms) == 0 {
		return
	}

	criteriaText := strings.ToLower(strings.Join(criteria.Criteria, " "))
	matched := 0
	for term := range terms {
		if strings.Contains(criteriaText, term) {
			matched++
		}
	}

	minRequired := len(terms) * 30 / 100
	if minRequired < 1 {
		minRequired = 1
	}
	if matched < minRequired {
		result.Errors = append(result.Errors, ValidationError{
			TaskID: task.ID, Field: "acceptance_criteria",
			Message: fmt.Sprintf("terminology mismatch: description terms not reflected in criteria (found %d/%d required)", matched, minRequired),
		})
	}
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "as": true, "at": true, "by": true, "from": true,
	"that": true, "this": true, "it": true, "its": true,
	"function": true, "method": true, "class": true, "type": true,
}

// extractSignificantTerms pulls lowercase words worth matching against
// criteria text: compound identifiers (package.Function, snake_case) always
// count, plain words only once they're long enough to be specific.
func extractSignificantTerms(description string) map[string]bool {
	terms := make(map[string]bool)
	for _, word := range strings.Fields(description) {
		cleaned := strings.ToLower(strings.Trim(word, ".,;:()[]{}\"'`"))
		if len(cleaned) < 4 || stopWords[cleaned] {
			continue
		}
		if strings.Contains(word, ".") || strings.Contains(word, "_") {
			terms[cleaned] = true
			continue
		}
		if len(cleaned) > 5 {
			terms[cleaned] = true
		}
	}
	return terms
}

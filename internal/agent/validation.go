package agent

import (
	"fmt"
	"strings"
)

// ValidationError represents a capability the registry cannot satisfy.
type ValidationError struct {
	Capability string   // capability with no supporting agent
	Available  []string // names of currently registered agents
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("no registered agent supports capability %q", e.Capability))

	if len(e.Available) > 0 {
		msg.WriteString(fmt.Sprintf("\n\nAvailable agents: %s", strings.Join(e.Available, ", ")))
	} else {
		msg.WriteString("\n\nNo agents found in registry. Check ~/.claude/agents/")
	}

	return msg.String()
}

// ValidateCapabilityCoverage checks that every capability in required has at
// least one supporting agent in the registry, reporting every gap in one
// call, so a coverage gap can surface as a single validation failure instead
// of N individual dispatch failures. Nothing in this repository calls it
// outside its tests; the orchestrator does not check coverage before
// dispatch.
func ValidateCapabilityCoverage(required []string, registry *Registry) []ValidationError {
	if registry == nil {
		return nil
	}

	seen := make(map[string]bool, len(required))
	var errors []ValidationError
	available := registry.ListNames()

	for _, cap := range required {
		if cap == "" || seen[cap] {
			continue
		}
		seen[cap] = true
		if len(registry.ByCapability(cap)) == 0 {
			errors = append(errors, ValidationError{Capability: cap, Available: available})
		}
	}

	return errors
}

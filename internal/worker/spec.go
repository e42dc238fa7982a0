package worker

import (
	"github.com/harrison/swarm/internal/agent"
	"github.com/harrison/swarm/internal/health"
	"github.com/harrison/swarm/internal/models"
)

// capabilityFor maps a task type to the capability string worker specs
// declare support for. Types not listed map to themselves, so a new TaskType
// never silently falls back to a default capability.
func capabilityFor(t models.TaskType) string {
	switch t {
	case models.TaskMerge, models.TaskIntegrate:
		return "integrate"
	default:
		return string(t)
	}
}

// SelectAgent chooses a registered agent spec for a task, preferring
// healthy models over unhealthy ones among those supporting the task's
// capability. Ties go to whichever candidate ByCapability lists first; that
// order follows map iteration and is not stable between calls. This matches
// the teacher's base_selector fallback-on-tie behavior rather than
// introducing a fresh priority scheme.
func SelectAgent(t *models.Task, registry *agent.Registry, tracker *health.Tracker) *agent.Agent {
	if registry == nil {
		return nil
	}
	candidates := registry.ByCapability(capabilityFor(t.Type))
	if len(candidates) == 0 {
		return nil
	}

	var best *agent.Agent
	for _, c := range candidates {
		if best == nil {
			best = c
			continue
		}
		bestHealthy := tracker == nil || tracker.IsHealthy(best.Model)
		cHealthy := tracker == nil || tracker.IsHealthy(c.Model)
		if cHealthy && !bestHealthy {
			best = c
		}
	}
	return best
}

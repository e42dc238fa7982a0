package orchestrator

import (
	"testing"

	"github.com/harrison/swarm/internal/models"
)

func TestDetectFoundationTasksFlagsSharedRoot(t *testing.T) {
	tasks := []models.Task{
		{ID: "setup", Type: models.TaskImplement},
		{ID: "a", Type: models.TaskImplement, Dependencies: []string{"setup"}},
		{ID: "b", Type: models.TaskImplement, Dependencies: []string{"setup"}},
		{ID: "integrate", Type: models.TaskIntegrate, Dependencies: []string{"a", "b"}},
	}
	detectFoundationTasks(tasks)

	if !tasks[0].IsFoundation {
		t.Fatal("setup should be flagged foundation: two tasks (a, b) transitively depend on it")
	}
	if tasks[1].IsFoundation || tasks[2].IsFoundation {
		t.Fatal("a and b should not be foundation: only integrate depends on each")
	}
}

func TestDetectFoundationTasksNoSharedDependency(t *testing.T) {
	tasks := []models.Task{
		{ID: "a", Type: models.TaskImplement},
		{ID: "b", Type: models.TaskImplement},
	}
	detectFoundationTasks(tasks)
	if tasks[0].IsFoundation || tasks[1].IsFoundation {
		t.Fatal("independent tasks should never be flagged foundation")
	}
}

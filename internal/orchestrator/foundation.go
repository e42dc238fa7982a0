package orchestrator

import "github.com/harrison/swarm/internal/models"

// detectFoundationTasks flags every task that at least two other tasks
// transitively depend on (§4.7 step 4) by setting IsFoundation on the
// matching entries in tasks, in place.
func detectFoundationTasks(tasks []models.Task) {
	transitiveDependents := make(map[string]map[string]bool, len(tasks))
	for _, t := range tasks {
		transitiveDependents[t.ID] = make(map[string]bool)
	}

	byID := make(map[string]*models.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	for i := range tasks {
		visited := make(map[string]bool)
		collectAncestors(&tasks[i], byID, visited)
		for ancestor := range visited {
			transitiveDependents[ancestor][tasks[i].ID] = true
		}
	}

	for i := range tasks {
		if len(transitiveDependents[tasks[i].ID]) >= 2 {
			tasks[i].IsFoundation = true
		}
	}
}

// collectAncestors walks t's dependency chain, recording every task id that
// t (transitively) depends on into visited.
func collectAncestors(t *models.Task, byID map[string]*models.Task, visited map[string]bool) {
	for _, depID := range t.Dependencies {
		if visited[depID] {
			continue
		}
		visited[depID] = true
		if dep, ok := byID[depID]; ok {
			collectAncestors(dep, byID, visited)
		}
	}
}

package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/swarm/internal/health"
	"github.com/harrison/swarm/internal/worker"
)

// probeModels issues a one-shot tool-call probe against each distinct
// model (§4.7 step 5), bounded by timeout, marking any model that doesn't
// emit a tool call unhealthy before the first real dispatch. Probes run
// concurrently via errgroup since they're independent and only need an
// aggregate "did everything fail" verdict.
func probeModels(ctx context.Context, provider worker.Provider, tracker *health.Tracker, models []string, timeout time.Duration) (allFailed bool, err error) {
	if len(models) == 0 {
		return false, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]bool, len(models)) // true = probe succeeded

	for i, model := range models {
		i, model := i, model
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			resp, callErr := provider.Chat(probeCtx, []worker.ChatMessage{
				{Role: "user", Content: "Respond by calling any available tool."},
			}, worker.ChatOptions{Model: model, ToolChoice: "required", MaxTokens: 256})

			ok := callErr == nil && resp != nil && resp.ToolCalls > 0
			results[i] = ok
			if !ok {
				tracker.MarkUnhealthy(model)
			} else {
				tracker.RecordSuccess(model, 0)
			}
			return nil // probe failures are never fatal to the group; we tally instead
		})
	}

	_ = g.Wait() // no probe goroutine returns an error; this only waits for completion

	for _, ok := range results {
		if ok {
			return false, nil
		}
	}
	return true, nil
}

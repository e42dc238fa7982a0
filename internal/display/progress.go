package display

import (
	"fmt"
	"io"
	"sync"

	"github.com/harrison/swarm/internal/events"
)

// WaveProgress renders the orchestrator's event stream as a live-updating
// sequence of wave/task lines, generalized from the teacher's
// ProgressIndicator (originally "[N/Total] filename" for plan-file loading)
// into "[done/total] dispatched/completed/failed" for the swarm's §9
// phase-progress emitter. It implements events.Sink so it plugs directly
// into the orchestrator's bus alongside the logger and any NATS mirror.
type WaveProgress struct {
	mu      sync.Mutex
	writer  io.Writer
	total   int
	done    int
	enabled bool
}

// NewWaveProgress creates a progress renderer writing to w. totalTasks seeds
// the denominator shown in the running "[done/total]" tally; 0 at
// construction is fine since it is corrected once swarm.tasks.loaded fires.
func NewWaveProgress(w io.Writer, totalTasks int, enabled bool) *WaveProgress {
	return &WaveProgress{writer: w, total: totalTasks, enabled: enabled}
}

// Publish implements events.Sink, rendering the subset of event kinds a
// human operator watching a terminal cares about.
func (p *WaveProgress) Publish(e events.Event) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case events.KindTasksLoaded:
		if n, ok := e.Fields["count"].(int); ok {
			p.total = n
		}
		fmt.Fprintf(p.writer, "Loading %d tasks...\n", p.total)
	case events.KindWaveStart:
		fmt.Fprintf(p.writer, "\x1b[34m[wave %v] starting\x1b[0m\n", e.Fields["wave"])
	case events.KindTaskDispatched:
		fmt.Fprintf(p.writer, "\x1b[36m  [%d/%d] dispatched %v\x1b[0m\n", p.done, p.total, e.Fields["taskId"])
	case events.KindTaskCompleted:
		p.done++
		fmt.Fprintf(p.writer, "\x1b[32m  [%d/%d] ✓ %v\x1b[0m\n", p.done, p.total, e.Fields["taskId"])
	case events.KindTaskFailed:
		p.done++
		fmt.Fprintf(p.writer, "\x1b[31m  [%d/%d] ✗ %v (%v)\x1b[0m\n", p.done, p.total, e.Fields["taskId"], e.Fields["reason"])
	case events.KindWaveComplete:
		fmt.Fprintf(p.writer, "\x1b[34m[wave %v] complete\x1b[0m\n", e.Fields["wave"])
	case events.KindComplete:
		if success, _ := e.Fields["success"].(bool); success {
			fmt.Fprintf(p.writer, "\x1b[32m✓ %v\x1b[0m\n", e.Fields["summary"])
		} else {
			fmt.Fprintf(p.writer, "\x1b[33m%v\x1b[0m\n", e.Fields["summary"])
		}
	}
}

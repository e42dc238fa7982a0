package display

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harrison/swarm/internal/events"
)

func TestWaveProgressTasksLoadedSetsTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewWaveProgress(&buf, 0, true)
	p.Publish(events.Event{Kind: events.KindTasksLoaded, Fields: map[string]interface{}{"count": 5}})

	got := buf.String()
	if !strings.Contains(got, "Loading 5 tasks") {
		t.Errorf("expected task count in output, got %q", got)
	}
}

func TestWaveProgressDispatchedAndCompletedTallies(t *testing.T) {
	var buf bytes.Buffer
	p := NewWaveProgress(&buf, 2, true)
	p.Publish(events.Event{Kind: events.KindTaskDispatched, Fields: map[string]interface{}{"taskId": "st-0"}})
	p.Publish(events.Event{Kind: events.KindTaskCompleted, Fields: map[string]interface{}{"taskId": "st-0"}})

	got := buf.String()
	if !strings.Contains(got, "dispatched st-0") {
		t.Errorf("expected dispatch line, got %q", got)
	}
	if !strings.Contains(got, "[1/2] ✓ st-0") {
		t.Errorf("expected completion tally to advance, got %q", got)
	}
}

func TestWaveProgressFailedIncludesReason(t *testing.T) {
	var buf bytes.Buffer
	p := NewWaveProgress(&buf, 1, true)
	p.Publish(events.Event{Kind: events.KindTaskFailed, Fields: map[string]interface{}{"taskId": "st-1", "reason": "timeout"}})

	got := buf.String()
	if !strings.Contains(got, "✗ st-1 (timeout)") {
		t.Errorf("expected failure reason in output, got %q", got)
	}
}

func TestWaveProgressDisabledWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	p := NewWaveProgress(&buf, 1, false)
	p.Publish(events.Event{Kind: events.KindWaveStart, Fields: map[string]interface{}{"wave": 1}})

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}
}

func TestWaveProgressCompleteColorsBySuccess(t *testing.T) {
	var buf bytes.Buffer
	p := NewWaveProgress(&buf, 1, true)
	p.Publish(events.Event{Kind: events.KindComplete, Fields: map[string]interface{}{"success": true, "summary": "done"}})
	if !strings.Contains(buf.String(), "\x1b[32m") {
		t.Errorf("expected green on success, got %q", buf.String())
	}

	buf.Reset()
	p.Publish(events.Event{Kind: events.KindComplete, Fields: map[string]interface{}{"success": false, "summary": "failed"}})
	if !strings.Contains(buf.String(), "\x1b[33m") {
		t.Errorf("expected yellow on non-success, got %q", buf.String())
	}
}

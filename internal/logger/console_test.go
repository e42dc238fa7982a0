package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/harrison/swarm/internal/events"
)

func TestConsoleLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "warn", false)
	cl.LogInfo("should be dropped")
	cl.LogWarn("should appear")

	got := buf.String()
	if strings.Contains(got, "should be dropped") {
		t.Errorf("info message leaked through warn filter: %q", got)
	}
	if !strings.Contains(got, "should appear") {
		t.Errorf("expected warn message in output, got %q", got)
	}
}

func TestConsoleLoggerPublishTaskCompletedIncludesMetrics(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info", false)
	cl.Publish(events.Event{Kind: events.KindTaskCompleted, Fields: map[string]interface{}{
		"taskId": "st-1", "tokensUsed": 500, "toolCalls": 3, "filesModified": 2,
	}})

	got := buf.String()
	if !strings.Contains(got, "completed st-1") {
		t.Errorf("expected completion line, got %q", got)
	}
	if !strings.Contains(got, "tokens: 500") || !strings.Contains(got, "tool calls: 3") {
		t.Errorf("expected metrics in output, got %q", got)
	}
}

func TestConsoleLoggerPublishTaskFailedIncludesReason(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info", false)
	cl.Publish(events.Event{Kind: events.KindTaskFailed, Fields: map[string]interface{}{"taskId": "st-2", "reason": "timeout"}})

	got := buf.String()
	if !strings.Contains(got, "failed st-2: timeout") {
		t.Errorf("expected failure line, got %q", got)
	}
}

func TestConsoleLoggerColorDisabledForNonTTYWriter(t *testing.T) {
	var buf bytes.Buffer
	cl := NewConsoleLogger(&buf, "info", true)
	if cl.colorOutput {
		t.Error("expected color disabled for a non-stdout/stderr writer even with enableColor=true")
	}
}

package models

import "testing"

func TestTaskResultTimedOut(t *testing.T) {
	var nilResult *TaskResult
	if nilResult.TimedOut() {
		t.Error("nil result should not report timed out")
	}
	timedOut := &TaskResult{ToolCalls: -1}
	if !timedOut.TimedOut() {
		t.Error("toolCalls=-1 should report timed out")
	}
	hollow := &TaskResult{Success: true, ToolCalls: 0, Output: ""}
	if hollow.TimedOut() {
		t.Error("toolCalls=0 is hollow, not timeout, and must not be confused with it")
	}
}

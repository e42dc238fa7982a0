package models

import "testing"

func TestInitialStatus(t *testing.T) {
	if got := InitialStatus(nil); got != StatusReady {
		t.Errorf("InitialStatus(nil) = %s, want ready", got)
	}
	if got := InitialStatus([]string{"st-0"}); got != StatusPending {
		t.Errorf("InitialStatus([st-0]) = %s, want pending", got)
	}
}

func TestTaskTypeIsActionType(t *testing.T) {
	cases := map[TaskType]bool{
		TaskImplement: true,
		TaskTest:      true,
		TaskRefactor:  true,
		TaskIntegrate: true,
		TaskDeploy:    true,
		TaskResearch:  false,
		TaskDocument:  false,
		TaskReview:    false,
	}
	for typ, want := range cases {
		if got := typ.IsActionType(); got != want {
			t.Errorf("%s.IsActionType() = %v, want %v", typ, got, want)
		}
	}
}

func TestTaskIsFixupOrReplan(t *testing.T) {
	plain := &Task{ID: "st-0"}
	if plain.IsFixupOrReplan() {
		t.Error("plain task should not be fixup/replan")
	}
	fixup := &Task{ID: "fixup-1", FixesTaskID: "st-0", FixInstructions: "retry with tests"}
	if !fixup.IsFixupOrReplan() {
		t.Error("fixup task should report true")
	}
}

func TestTaskIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusSkipped} {
		task := &Task{Status: s}
		if !task.IsTerminal() {
			t.Errorf("status %s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusReady, StatusDispatched, StatusDecomposed} {
		task := &Task{Status: s}
		if task.IsTerminal() {
			t.Errorf("status %s should not be terminal", s)
		}
	}
}

package blackboard

import "testing"

func TestPublishAndSnapshotPreservesOrder(t *testing.T) {
	b := New()
	b.Publish("t1", []string{"found a", "found b"})
	b.Publish("t2", []string{"found c"})

	got := b.Snapshot()
	want := []string{"found a", "found b", "found c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d findings, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("finding %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestPublishEmptyFindingsIsNoop(t *testing.T) {
	b := New()
	b.Publish("t1", nil)
	if len(b.Snapshot()) != 0 {
		t.Fatal("expected no entries from an empty-findings publish")
	}
}

package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harrison/swarm/internal/models"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "checkpoints.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	cp := models.Checkpoint{
		SessionID: "sess-1",
		Phase:     "wave-01",
		TaskStates: map[string]models.Task{
			"setup": {ID: "setup", Status: models.StatusCompleted},
		},
	}
	if err := store.Save("sess-1", "wave-01", cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("sess-1", "wave-01")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TaskStates["setup"].Status != models.StatusCompleted {
		t.Errorf("loaded checkpoint task status = %v, want completed", got.TaskStates["setup"].Status)
	}
}

func TestStoreLoadLatestPhaseByPrefix(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "checkpoints.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	store.Save("sess-1", "wave-01", models.Checkpoint{SessionID: "sess-1", Phase: "wave-01"})
	store.Save("sess-1", "wave-02", models.Checkpoint{SessionID: "sess-1", Phase: "wave-02"})
	store.Save("sess-2", "wave-09", models.Checkpoint{SessionID: "sess-2", Phase: "wave-09"})

	got, err := store.Load("sess-1", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Phase != "wave-02" {
		t.Errorf("Load(sess-1, \"\") = phase %q, want wave-02", got.Phase)
	}
}

func TestStoreLoadMissingReturnsError(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "checkpoints.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Load("nope", "wave-01"); err == nil {
		t.Fatal("expected error loading nonexistent checkpoint")
	}
}

func TestOpenStoreCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected checkpoint file at %s: %v", path, err)
	}
}

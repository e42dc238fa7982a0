package queue

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/harrison/swarm/internal/models"
)

// CheckpointView is the serializable `{taskStates, waves, currentWave}` view
// of §4.4, independent of the bbolt-backed store below so the core's
// checkpoint contract stays opaque to persistence layout (§6).
type CheckpointView struct {
	TaskStates  map[string]models.Task
	Waves       int
	CurrentWave int
}

// Snapshot returns the current checkpoint view.
func (q *Queue) Snapshot() CheckpointView {
	states := make(map[string]models.Task, len(q.tasks))
	for id, t := range q.tasks {
		states[id] = *t
	}
	return CheckpointView{
		TaskStates:  states,
		Waves:       q.maxWave,
		CurrentWave: q.currentWave,
	}
}

// RestoreFromCheckpoint replaces the queue's contents with the given view.
// Per P8, restoring from a checkpoint emitted after wave W and continuing
// must produce an execution trace equivalent to running through without
// persistence — so this rebuilds the dependents index and order exactly as
// Load would, rather than trusting stale derived state.
func (q *Queue) RestoreFromCheckpoint(view CheckpointView) {
	q.tasks = make(map[string]*models.Task, len(view.TaskStates))
	q.dependents = make(map[string][]string)
	q.order = q.order[:0]
	q.dispatchedAt = make(map[string]time.Time)

	// Deterministic order: sort by id, since map iteration order is not
	// stable and order drives FIFO dispatch.
	ids := make([]string, 0, len(view.TaskStates))
	for id := range view.TaskStates {
		ids = append(ids, id)
	}
	sortStrings(ids)

	for _, id := range ids {
		t := view.TaskStates[id]
		q.tasks[id] = &t
		q.order = append(q.order, id)
		if t.Status == models.StatusDispatched {
			// A dispatched task surviving a restore has no live worker by
			// definition. It is recorded with a zero dispatch time, so the
			// orchestrator's stale-reconciliation pass sees it as stale and
			// requeues it, rather than this call silently demoting it
			// (which would hide a real invariant violation).
			q.dispatchedAt[id] = time.Time{}
		}
	}
	for _, t := range q.tasks {
		for _, dep := range t.Dependencies {
			q.dependents[dep] = append(q.dependents[dep], t.ID)
		}
	}

	q.maxWave = view.Waves
	q.currentWave = view.CurrentWave
}

func sortStrings(s []string) {
	// Small, dependency-free insertion sort; checkpoints are not large
	// enough to warrant importing sort for this.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// Store persists CheckpointViews keyed by session id and phase, using bbolt
// as the embedded store (§6's "persistence layout is opaque to the core" —
// this is one concrete binding of that contract, chosen over the teacher's
// flat-JSON-file plan store because checkpoints here are scheduler-internal
// state, not a user-authored plan).
type Store struct {
	db *bolt.DB
}

var checkpointBucket = []byte("checkpoints")

// OpenStore opens (creating if needed) a bbolt file at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(checkpointBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt file.
func (s *Store) Close() error { return s.db.Close() }

func checkpointKey(sessionID, phase string) []byte {
	return []byte(sessionID + "/" + phase)
}

// Save writes a checkpoint under sessionID/phase.
func (s *Store) Save(sessionID, phase string, cp models.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(checkpointBucket)
		return b.Put(checkpointKey(sessionID, phase), data)
	})
}

// Load reads the most-recently-saved checkpoint for sessionID/phase. If
// phase is empty, it scans every key prefixed sessionID/ and returns the
// checkpoint with the latest Timestamp (on a tie, the later key), since
// phase names such as "wave-03" and "final" do not sort chronologically.
func (s *Store) Load(sessionID, phase string) (*models.Checkpoint, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(checkpointBucket)
		if phase != "" {
			data = b.Get(checkpointKey(sessionID, phase))
			return nil
		}
		prefix := []byte(sessionID + "/")
		c := b.Cursor()
		var latest time.Time
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var cp models.Checkpoint
			if json.Unmarshal(v, &cp) != nil {
				continue
			}
			if data == nil || !cp.Timestamp.Before(latest) {
				latest = cp.Timestamp
				data = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("no checkpoint found for session %q phase %q", sessionID, phase)
	}
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

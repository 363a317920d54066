package report

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket keys
var (
	bucketRuns  = []byte("runs")  // run ID -> JSON RunResult
	bucketOrder = []byte("order") // start time (big endian nanos) + run ID -> run ID
)

// BoltStore persists run results in a bbolt database and keeps at most
// keep runs, discarding the oldest first.
type BoltStore struct {
	db   *bolt.DB
	keep int
}

// OpenBoltStore opens (or creates) the history database at path.
// The parent directory is created if needed.
func OpenBoltStore(path string, keep int) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketRuns); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketOrder)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising history: %w", err)
	}
	return &BoltStore{db: db, keep: keep}, nil
}

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save stores result and prunes the oldest runs beyond the retention limit.
func (s *BoltStore) Save(result *RunResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result %s: %w", result.ID, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		order := tx.Bucket(bucketOrder)
		if old := runs.Get([]byte(result.ID)); old != nil {
			// Re-saving a run must not leave a stale ordering key behind.
			var prev RunResult
			if err := json.Unmarshal(old, &prev); err == nil {
				if err := order.Delete(orderKey(&prev)); err != nil {
					return err
				}
			}
		}
		if err := runs.Put([]byte(result.ID), data); err != nil {
			return err
		}
		if err := order.Put(orderKey(result), []byte(result.ID)); err != nil {
			return err
		}
		return s.prune(runs, order)
	})
}

func (s *BoltStore) prune(runs, order *bolt.Bucket) error {
	if s.keep <= 0 {
		return nil
	}
	c := order.Cursor()
	n := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	excess := n - s.keep
	if excess <= 0 {
		return nil
	}
	var victims [][]byte
	for k, v := c.First(); k != nil && len(victims) < excess; k, v = c.Next() {
		if err := runs.Delete(v); err != nil {
			return err
		}
		victims = append(victims, append([]byte(nil), k...))
	}
	for _, k := range victims {
		if err := order.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// Load retrieves a run by ID. Unknown IDs yield ErrNotFound.
func (s *BoltStore) Load(runID string) (*RunResult, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Copy bytes out of the transaction (bbolt slices are only valid within tx)
		if v := tx.Bucket(bucketRuns).Get([]byte(runID)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading result %s: %w", runID, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling result %s: %w", runID, err)
	}
	return &result, nil
}

// List returns up to limit runs, newest first. A limit <= 0 returns all runs.
func (s *BoltStore) List(limit int) ([]*RunResult, error) {
	var out []*RunResult
	err := s.db.View(func(tx *bolt.Tx) error {
		runs := tx.Bucket(bucketRuns)
		c := tx.Bucket(bucketOrder).Cursor()
		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			v := runs.Get(id)
			if v == nil {
				continue
			}
			var r RunResult
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshalling result %s: %w", id, err)
			}
			out = append(out, &r)
		}
		return nil
	})
	return out, err
}

// orderKey sorts runs chronologically; the ID suffix keeps keys unique.
func orderKey(r *RunResult) []byte {
	key := make([]byte, 8, 8+len(r.ID))
	binary.BigEndian.PutUint64(key, uint64(r.StartedAt.UnixNano()))
	return append(key, r.ID...)
}

// IsLocked reports whether err came from another process holding the
// history database open.
func IsLocked(err error) bool {
	return errors.Is(err, bolt.ErrTimeout)
}

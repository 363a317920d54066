package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DiskStore writes each RunResult as a JSON file under a directory.
// It serves as history when the bbolt database is held by another process.
// With an empty directory, a temp directory is created lazily on first use.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore creates a new DiskStore rooted at dir.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Save writes a RunResult as a JSON file to disk.
func (s *DiskStore) Save(result *RunResult) error {
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling result %s: %w", result.ID, err)
	}
	path := filepath.Join(dir, result.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result %s: %w", result.ID, err)
	}
	return nil
}

// Load reads a RunResult from disk.
func (s *DiskStore) Load(runID string) (*RunResult, error) {
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, runID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, fmt.Errorf("reading result %s: %w", runID, err)
	}
	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling result %s: %w", runID, err)
	}
	return &result, nil
}

// List returns up to limit runs, newest first.
func (s *DiskStore) List(limit int) ([]*RunResult, error) {
	dir, err := s.ensureDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing results: %w", err)
	}
	var runs []*RunResult
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		r, err := s.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	sortNewestFirst(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Close is a no-op; files are written synchronously.
func (s *DiskStore) Close() error { return nil }

// Dir returns the directory results are written to, creating it if needed.
func (s *DiskStore) Dir() (string, error) {
	return s.ensureDir()
}

func (s *DiskStore) ensureDir() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", fmt.Errorf("creating result directory: %w", err)
		}
		return s.dir, nil
	}
	dir, err := os.MkdirTemp("", "lsdiff-runs-*")
	if err != nil {
		return "", fmt.Errorf("creating result directory: %w", err)
	}
	s.dir = dir
	return dir, nil
}

// OpenHistory opens the bbolt history at path. When another process holds
// the database, results fall back to JSON files in a temp directory and
// fellBack is true.
func OpenHistory(path string, keep int) (h History, fellBack bool, err error) {
	bs, err := OpenBoltStore(path, keep)
	if err == nil {
		return bs, false, nil
	}
	if IsLocked(err) {
		return NewDiskStore(""), true, nil
	}
	return nil, false, err
}

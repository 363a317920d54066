package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/lsdiff/internal/compare"
	"github.com/deixis/lsdiff/internal/matrix"
)

func newRun(id string, started time.Time, failed int) *RunResult {
	return &RunResult{
		ID:         id,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Artifact:   "/proj/target/debug/fls",
		Reference:  "/bin/ls",
		Failed:     failed,
		Cases: []CaseRecord{
			{Name: "-c", Family: matrix.SortFamily, Mode: compare.Strict, Status: matrix.StatusPass},
		},
	}
}

func TestFromSummary(t *testing.T) {
	summary := &matrix.RunSummary{
		ID:        "abc",
		StartedAt: time.Unix(100, 0),
		Results: []matrix.CaseResult{
			{
				Case:   matrix.FlagCase{Family: matrix.LongFamily, Baseline: []string{"-f"}, Switches: []string{"-l"}, Mode: compare.LineTrimmed},
				Status: matrix.StatusMismatch,
				Execution: &matrix.Execution{
					Argv: []string{"-f", "..", "-l"},
				},
				Outcome: &compare.Outcome{Mode: compare.LineTrimmed, CountMismatch: true},
			},
			{
				Case:   matrix.FlagCase{Family: matrix.SortFamily, Switches: []string{"-t"}},
				Status: matrix.StatusExitCode,
				Err:    &matrix.ExitCodeError{Side: matrix.ToolSide, Path: "fls", ExitCode: 2},
			},
		},
	}

	rr := FromSummary(summary, "/proj/fls", "/bin/ls")
	assert.Equal(t, "abc", rr.ID)
	assert.Equal(t, 0, rr.Passed)
	assert.Equal(t, 2, rr.Failed)
	assert.False(t, rr.OK())
	require.Len(t, rr.Cases, 2)
	assert.Equal(t, []string{"-f", "..", "-l"}, rr.Cases[0].Argv)
	assert.Equal(t, "tool fls exited with code 2", rr.Cases[1].Error)

	rec, err := ByCase(rr, " -l ")
	require.NoError(t, err)
	assert.Equal(t, matrix.LongFamily, rec.Family)

	_, err = ByCase(rr, "-S")
	assert.Error(t, err)
	assert.Len(t, Failures(rr), 2)
}

func TestBoltStore_SaveLoadList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := OpenBoltStore(path, 10)
	require.NoError(t, err)
	defer s.Close()

	base := time.Now().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(newRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute), i)))
	}

	got, err := s.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Cases, 1)
	assert.Equal(t, compare.Strict, got.Cases[0].Mode)

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-2", runs[0].ID, "newest first")
	assert.Equal(t, "run-0", runs[2].ID)

	runs, err = s.List(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestBoltStore_NotFound(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "h.db"), 10)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBoltStore_Prunes(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "h.db"), 2)
	require.NoError(t, err)
	defer s.Close()

	base := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Save(newRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Second), 0)))
	}

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-3", runs[0].ID)
	assert.Equal(t, "run-2", runs[1].ID)

	_, err = s.Load("run-0")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBoltStore_ResaveKeepsSingleEntry(t *testing.T) {
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "h.db"), 10)
	require.NoError(t, err)
	defer s.Close()

	r := newRun("run-1", time.Now(), 0)
	require.NoError(t, s.Save(r))
	r.StartedAt = r.StartedAt.Add(time.Minute)
	r.Failed = 3
	require.NoError(t, s.Save(r))

	runs, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Failed)
}

func TestOpenHistory_FallsBackWhenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h.db")
	held, err := OpenBoltStore(path, 10)
	require.NoError(t, err)
	defer held.Close()

	h, fellBack, err := OpenHistory(path, 10)
	require.NoError(t, err)
	defer h.Close()
	assert.True(t, fellBack)
	assert.IsType(t, &DiskStore{}, h)
}

func TestDiskStore(t *testing.T) {
	s := NewDiskStore(filepath.Join(t.TempDir(), "runs"))
	base := time.Now()
	require.NoError(t, s.Save(newRun("a", base, 0)))
	require.NoError(t, s.Save(newRun("b", base.Add(time.Second), 1)))

	got, err := s.Load("b")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Failed)

	runs, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)

	_, err = s.Load("zzz")
	assert.True(t, errors.Is(err, ErrNotFound))
}

type countingHistory struct {
	*DiskStore
	loads int
}

func (c *countingHistory) Load(id string) (*RunResult, error) {
	c.loads++
	return c.DiskStore.Load(id)
}

func TestLRUStore(t *testing.T) {
	back := &countingHistory{DiskStore: NewDiskStore(t.TempDir())}
	s := NewLRUStore(2, back)

	base := time.Now()
	require.NoError(t, s.Save(newRun("a", base, 0)))
	require.NoError(t, s.Save(newRun("b", base, 0)))
	require.NoError(t, s.Save(newRun("c", base, 0))) // evicts a
	assert.Equal(t, 2, s.Len())

	_, err := s.Load("c")
	require.NoError(t, err)
	assert.Equal(t, 0, back.loads, "cached run must not hit the backing store")

	_, err = s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, 1, back.loads)
	assert.Equal(t, 2, s.Len())

	runs, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

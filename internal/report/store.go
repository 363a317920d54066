// Package report renders case results for humans and persists completed
// runs so that they can be listed and inspected later.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deixis/lsdiff/internal/compare"
	"github.com/deixis/lsdiff/internal/matrix"
)

// ErrNotFound is returned when a run ID is unknown to a store.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run results.
type Store interface {
	Save(result *RunResult) error
	Load(runID string) (*RunResult, error)
}

// History is a Store that can also list past runs, newest first.
type History interface {
	Store
	List(limit int) ([]*RunResult, error)
	Close() error
}

// RunResult is the persisted record of one matrix run.
type RunResult struct {
	ID         string       `json:"id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Artifact   string       `json:"artifact"`
	Reference  string       `json:"reference"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Cases      []CaseRecord `json:"cases"`
}

// CaseRecord is the persisted outcome of a single case.
type CaseRecord struct {
	Name     string           `json:"name"`
	Family   matrix.Family    `json:"family"`
	Argv     []string         `json:"argv"`
	Mode     compare.Mode     `json:"mode"`
	Status   matrix.Status    `json:"status"`
	Error    string           `json:"error,omitempty"`
	ToolExit *int             `json:"tool_exit,omitempty"`
	RefExit  *int             `json:"ref_exit,omitempty"`
	Elapsed  time.Duration    `json:"elapsed_ns"`
	Outcome  *compare.Outcome `json:"outcome,omitempty"`
}

// OK reports whether every recorded case passed.
func (r *RunResult) OK() bool {
	return r.Failed == 0
}

// FromSummary converts a driver summary into a persistable record.
func FromSummary(s *matrix.RunSummary, artifact, reference string) *RunResult {
	rr := &RunResult{
		ID:         s.ID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Artifact:   artifact,
		Reference:  reference,
		Passed:     s.Passed(),
		Failed:     s.Failed(),
	}
	for _, cr := range s.Results {
		rec := CaseRecord{
			Name:    cr.Case.Name(),
			Family:  cr.Case.Family,
			Mode:    cr.Case.Mode,
			Status:  cr.Status,
			Elapsed: cr.Elapsed,
			Outcome: cr.Outcome,
		}
		if cr.Err != nil {
			rec.Error = cr.Err.Error()
		}
		if ex := cr.Execution; ex != nil {
			rec.Argv = ex.Argv
			if ex.Tool != nil {
				code := ex.Tool.ExitCode
				rec.ToolExit = &code
			}
			if ex.Reference != nil {
				code := ex.Reference.ExitCode
				rec.RefExit = &code
			}
		}
		rr.Cases = append(rr.Cases, rec)
	}
	return rr
}

// ByCase returns the record for the case with the given switch tokens.
func ByCase(result *RunResult, name string) (*CaseRecord, error) {
	name = strings.TrimSpace(name)
	for i := range result.Cases {
		if result.Cases[i].Name == name {
			return &result.Cases[i], nil
		}
	}
	return nil, fmt.Errorf("run %s has no case %q", result.ID, name)
}

// Failures returns the records of every failed case, in matrix order.
func Failures(result *RunResult) []CaseRecord {
	var out []CaseRecord
	for _, c := range result.Cases {
		if c.Status.Failed() {
			out = append(out, c)
		}
	}
	return out
}

// sortNewestFirst orders runs by start time, newest first, breaking ties by ID.
func sortNewestFirst(runs []*RunResult) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}

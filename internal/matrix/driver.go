package matrix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deixis/lsdiff/internal/compare"
	"github.com/deixis/lsdiff/internal/runner"
)

// Status is the verdict for one case.
type Status string

const (
	StatusPass      Status = "pass"
	StatusMismatch  Status = "mismatch"
	StatusExitCode  Status = "exit-code"
	StatusTimeout   Status = "timeout"
	StatusTruncated Status = "truncated"
	StatusLaunch    Status = "launch-error"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Failed reports whether the status counts against the run.
func (s Status) Failed() bool {
	return s != StatusPass && s != StatusCancelled
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Index     int
	Case      FlagCase
	Status    Status
	Outcome   *compare.Outcome // nil unless both processes succeeded
	Execution *Execution
	Err       error
	Elapsed   time.Duration
}

// CaseExecutor runs one case. Implemented by *Executor.
type CaseExecutor interface {
	Execute(ctx context.Context, c FlagCase) (*Execution, error)
}

// Sink receives case results in matrix order. A Sink error aborts the run.
type Sink interface {
	Report(r CaseResult) error
}

// Driver runs a case matrix on a bounded worker pool.
type Driver struct {
	Executor    CaseExecutor
	Concurrency int // 1 runs the cases sequentially
	Options     compare.Options
	Sink        Sink
	Logger      *slog.Logger
}

// RunSummary aggregates the results of a run.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []CaseResult // in matrix order; cases never started are absent
}

// Failed returns the number of failed cases.
func (s *RunSummary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Status.Failed() {
			n++
		}
	}
	return n
}

// Passed returns the number of passing cases.
func (s *RunSummary) Passed() int {
	n := 0
	for _, r := range s.Results {
		if r.Status == StatusPass {
			n++
		}
	}
	return n
}

// Run executes every case and forwards each result to the Sink in matrix
// order, regardless of the order in which workers finish. A Sink error
// cancels the remaining cases, lets in-flight ones drain, and is returned.
func (d *Driver) Run(ctx context.Context, cases []FlagCase) (*RunSummary, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	summary := &RunSummary{ID: uuid.New().String(), StartedAt: time.Now()}
	if len(cases) == 0 {
		summary.FinishedAt = time.Now()
		return summary, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := d.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(cases) {
		workers = len(cases)
	}

	workCh := make(chan int)
	doneCh := make(chan CaseResult, len(cases))

	go func() {
		defer close(workCh)
		for i := range cases {
			select {
			case workCh <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	finished := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func() {
			defer func() { finished <- struct{}{} }()
			for i := range workCh {
				doneCh <- d.runCase(runCtx, logger, i, cases[i])
			}
		}()
	}
	go func() {
		for w := 0; w < workers; w++ {
			<-finished
		}
		close(doneCh)
	}()

	results := make([]*CaseResult, len(cases))
	next := 0
	var reportErr error
	for r := range doneCh {
		results[r.Index] = &r
		for next < len(results) && results[next] != nil {
			cur := results[next]
			next++
			if reportErr != nil || d.Sink == nil || cur.Status == StatusCancelled {
				continue
			}
			if err := d.Sink.Report(*cur); err != nil {
				reportErr = err
				cancel()
			}
		}
	}

	for _, r := range results {
		if r != nil {
			summary.Results = append(summary.Results, *r)
		}
	}
	summary.FinishedAt = time.Now()

	if reportErr != nil {
		return summary, fmt.Errorf("reporting: %w", reportErr)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (d *Driver) runCase(ctx context.Context, logger *slog.Logger, idx int, c FlagCase) CaseResult {
	res := CaseResult{Index: idx, Case: c}
	if err := ctx.Err(); err != nil {
		res.Status = StatusCancelled
		res.Err = err
		return res
	}

	start := time.Now()
	ex, err := d.Executor.Execute(ctx, c)
	res.Elapsed = time.Since(start)
	res.Execution = ex

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.Status = StatusCancelled
		res.Err = ctxErr
		return res
	}
	if err != nil {
		res.Status = classify(err)
		res.Err = err
		logger.Debug("case failed to execute", "case", c.Name(), "status", res.Status, "error", err)
		return res
	}

	if err := truncation(ex); err != nil {
		res.Status = StatusTruncated
		res.Err = err
		logger.Debug("case output truncated", "case", c.Name(), "error", err)
		return res
	}

	res.Outcome = compare.Compare(ex.Tool.Stdout, ex.Reference.Stdout, c.Mode, d.Options)
	if res.Outcome.Matched {
		res.Status = StatusPass
	} else {
		res.Status = StatusMismatch
	}
	logger.Debug("case compared", "case", c.Name(), "mode", c.Mode, "status", res.Status, "elapsed", res.Elapsed)
	return res
}

// truncation reports captures that hit the size cap, tool first.
func truncation(ex *Execution) error {
	var errs []error
	if ex.Tool != nil && ex.Tool.Truncated {
		errs = append(errs, &TruncatedError{Side: ToolSide})
	}
	if ex.Reference != nil && ex.Reference.Truncated {
		errs = append(errs, &TruncatedError{Side: ReferenceSide})
	}
	return errors.Join(errs...)
}

// classify maps an execution error onto a case status. Launch failures
// take precedence over exit codes; the tool side is inspected first.
func classify(err error) Status {
	var launchErr *runner.LaunchError
	if errors.As(err, &launchErr) {
		return StatusLaunch
	}
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		if exitErr.TimedOut {
			return StatusTimeout
		}
		return StatusExitCode
	}
	return StatusError
}

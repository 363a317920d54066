// Package workflow ties the locator, the case matrix and the run history
// together. It is consumed by both the MCP server and the CLI commands.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/deixis/lsdiff/internal/compare"
	"github.com/deixis/lsdiff/internal/config"
	"github.com/deixis/lsdiff/internal/locate"
	"github.com/deixis/lsdiff/internal/matrix"
	"github.com/deixis/lsdiff/internal/report"
	"github.com/deixis/lsdiff/internal/runner"
)

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string) (*runner.Result, error)
}

// ErrNoCases is returned when a filter leaves nothing to run.
var ErrNoCases = errors.New("no cases match")

// Engine holds shared dependencies for all workflow operations.
type Engine struct {
	Config      *config.Config
	Runner      CommandRunner // runs the cases
	BuildRunner CommandRunner // runs the build with the build limits; nil falls back to Runner
	ProjectRoot string        // runner workspace; builds run here
	WorkDir     string        // cases run here; must be inside ProjectRoot
	History     report.Store  // optional
	Logger      *slog.Logger  // optional
}

// RunOptions select what a single run does.
type RunOptions struct {
	Artifact string      // skip the build and use this executable
	Filter   string      // substring of the switch set, empty for all
	Cases    []string    // exact switch sets to run, applied after Filter
	Sink     matrix.Sink // receives results in matrix order; may be nil
}

// RunOutcome is the result of a completed (or aborted) run.
type RunOutcome struct {
	Artifact *locate.Artifact
	Summary  *matrix.RunSummary
	Record   *report.RunResult
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// Locate returns the executable under test. An explicit path bypasses the
// build; otherwise the configured build command is run from the project root.
func (e *Engine) Locate(ctx context.Context, override string) (*locate.Artifact, error) {
	if override != "" {
		return locate.FromPath(e.ResolvePath(override))
	}
	argv := e.Config.BuildCommand()
	e.logger().Info("building", "command", strings.Join(argv, " "))
	r := e.BuildRunner
	if r == nil {
		r = e.Runner
	}
	return locate.Locate(ctx, r, argv)
}

// Cases returns the configured matrix restricted by filter.
func (e *Engine) Cases(filter string) []matrix.FlagCase {
	return matrix.Filter(matrix.Build(e.Config), filter)
}

// Select returns the cases to run: the configured matrix restricted by
// filter and, when names is not empty, by exact switch sets in the order
// given.
func (e *Engine) Select(filter string, names []string) ([]matrix.FlagCase, error) {
	cases := e.Cases(filter)
	if len(names) > 0 {
		picked := make([]matrix.FlagCase, 0, len(names))
		for _, n := range names {
			c, ok := matrix.Find(cases, strings.Join(strings.Fields(n), " "))
			if !ok {
				return nil, fmt.Errorf("%w %q", ErrNoCases, n)
			}
			picked = append(picked, c)
		}
		cases = picked
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoCases, filter)
	}
	return cases, nil
}

// Run locates the artifact, runs the matrix and records the result.
// Build and locator failures are returned before any case runs. When the
// driver aborts, the partial outcome is still recorded and returned along
// with the error.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunOutcome, error) {
	log := e.logger()

	cases, err := e.Select(opts.Filter, opts.Cases)
	if err != nil {
		return nil, err
	}

	artifact, err := e.Locate(ctx, opts.Artifact)
	if err != nil {
		return nil, err
	}
	log.Info("artifact located", "path", artifact.Path, "package", artifact.Package)

	reference := e.ResolveReference(e.Config.Reference())
	d := &matrix.Driver{
		Executor: &matrix.Executor{
			Runner:    e.Runner,
			Tool:      artifact.Path,
			Reference: reference,
			Target:    e.Config.LongTarget(),
			Dir:       e.caseDir(),
		},
		Concurrency: e.Config.Concurrency(),
		Options:     compare.Options{CollapseSpace: e.Config.Long.CollapseWhitespace},
		Sink:        opts.Sink,
		Logger:      log,
	}

	summary, runErr := d.Run(ctx, cases)
	out := &RunOutcome{
		Artifact: artifact,
		Summary:  summary,
		Record:   report.FromSummary(summary, artifact.Path, reference),
	}
	log.Info("run finished",
		"run_id", summary.ID,
		"cases", len(summary.Results),
		"passed", summary.Passed(),
		"failed", summary.Failed(),
		"elapsed", summary.FinishedAt.Sub(summary.StartedAt))

	if e.History != nil {
		if err := e.History.Save(out.Record); err != nil {
			return out, errors.Join(runErr, fmt.Errorf("saving run %s: %w", summary.ID, err))
		}
	}
	return out, runErr
}

// ResolvePath makes a user-supplied path absolute. Relative paths are
// taken relative to WorkDir, matching how a shell would resolve them.
func (e *Engine) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	base := e.WorkDir
	if base == "" {
		base = e.ProjectRoot
	}
	return filepath.Join(base, p)
}

// ResolveReference returns the reference executable to launch. A bare
// command name is looked up on PATH; anything containing a separator is
// resolved like ResolvePath. An unresolvable name is returned unchanged so
// that each case reports the launch failure.
func (e *Engine) ResolveReference(ref string) string {
	if !strings.ContainsRune(ref, filepath.Separator) {
		if p, err := exec.LookPath(ref); err == nil {
			return p
		}
		return ref
	}
	return e.ResolvePath(ref)
}

// caseDir returns WorkDir relative to ProjectRoot, the form the runner
// expects.
func (e *Engine) caseDir() string {
	if e.WorkDir == "" || e.ProjectRoot == "" {
		return ""
	}
	rel, err := filepath.Rel(e.ProjectRoot, e.WorkDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return rel
}

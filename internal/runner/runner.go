// Package runner provides command execution with workspace bounds,
// timeouts, and output size limits. Stdin is never supplied and stderr
// is discarded; only stdout is captured.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// waitDelay bounds how long Wait blocks on output pipes held open by
// orphaned grandchildren after the process itself has exited.
const waitDelay = 2 * time.Second

// LaunchError is returned when a process cannot be started at all
// (missing binary, permission denied, bad working directory).
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Runner executes commands within a workspace boundary.
type Runner struct {
	Workspace string
	Timeout   time.Duration
	MaxOutput int // bytes
}

// Run executes a command with the given argv. The first element is the
// binary (an absolute path or a name resolved via PATH), and the rest are
// arguments. cwd is resolved relative to the workspace root and must
// remain within it. A non-zero exit or a timeout is reported in the
// Result, not as an error; only a failure to start returns a *LaunchError.
func (r *Runner) Run(ctx context.Context, argv []string, cwd string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	// Resolve and validate cwd.
	dir, err := r.resolveDir(cwd)
	if err != nil {
		return nil, err
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	runID := uuid.New().String()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stderr = io.Discard
	cmd.WaitDelay = waitDelay

	var stdout bytes.Buffer
	lw := &limitWriter{buf: &stdout, limit: r.MaxOutput}
	cmd.Stdout = lw

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: argv[0], Err: err}
	}
	runErr := cmd.Wait()

	res := &Result{
		RunID:     runID,
		Stdout:    stdout.Bytes(),
		Truncated: lw.dropped,
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// Pipe copy failures and cancellations surface here.
			return nil, fmt.Errorf("waiting for %s: %w", argv[0], runErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// resolveDir resolves cwd relative to the workspace and validates it
// is within the workspace boundary.
func (r *Runner) resolveDir(cwd string) (string, error) {
	if cwd == "" {
		return r.Workspace, nil
	}

	var dir string
	if filepath.IsAbs(cwd) {
		dir = filepath.Clean(cwd)
	} else {
		dir = filepath.Clean(filepath.Join(r.Workspace, cwd))
	}

	// Ensure dir is within workspace.
	rel, err := filepath.Rel(r.Workspace, dir)
	if err != nil {
		return "", fmt.Errorf("resolving cwd: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("cwd %q is outside workspace %q", cwd, r.Workspace)
	}
	return dir, nil
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
// A limit of zero or less means unlimited.
type limitWriter struct {
	buf     *bytes.Buffer
	limit   int
	dropped bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			w.dropped = true
		}
		return len(p), nil // discard
	}
	if len(p) > remaining {
		// Write only what fits, but report all bytes as consumed
		// to avoid short write errors from io.Copy.
		w.buf.Write(p[:remaining])
		w.dropped = true
		return len(p), nil
	}
	return w.buf.Write(p)
}

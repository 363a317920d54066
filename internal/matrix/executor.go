package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/deixis/lsdiff/internal/runner"
)

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string) (*runner.Result, error)
}

// Side identifies which executable a result or error belongs to.
type Side string

const (
	ToolSide      Side = "tool"
	ReferenceSide Side = "reference"
)

// ExitCodeError is returned when either process exits non-zero or is
// killed by the per-process timeout.
type ExitCodeError struct {
	Side     Side
	Path     string
	ExitCode int
	TimedOut bool
}

func (e *ExitCodeError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s %s timed out", e.Side, e.Path)
	}
	return fmt.Sprintf("%s %s exited with code %d", e.Side, e.Path, e.ExitCode)
}

// TruncatedError marks a capture that hit the output size cap. Truncated
// captures are never compared.
type TruncatedError struct {
	Side Side
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("%s output exceeded max_output", e.Side)
}

// Execution holds the captures of one case. Either result may be nil when
// that process could not be launched.
type Execution struct {
	Argv      []string
	Tool      *runner.Result
	Reference *runner.Result
}

// Executor runs the tool under test and the reference with identical
// arguments.
type Executor struct {
	Runner    CommandRunner
	Tool      string // path to the executable under test
	Reference string // path to the reference executable
	Target    string // directory argument for FixedExternalDir cases
	Dir       string // working directory of both processes, relative to the runner workspace
}

// Execute launches both executables concurrently and waits for both to
// finish. Launch failures are returned as *runner.LaunchError and non-zero
// exits as *ExitCodeError; when both sides fail the errors are joined,
// tool first.
func (e *Executor) Execute(ctx context.Context, c FlagCase) (*Execution, error) {
	args := c.Args(e.Target)
	ex := &Execution{Argv: args}

	type outcome struct {
		res *runner.Result
		err error
	}
	var tool, ref outcome

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tool.res, tool.err = e.run(ctx, ToolSide, e.Tool, args)
	}()
	go func() {
		defer wg.Done()
		ref.res, ref.err = e.run(ctx, ReferenceSide, e.Reference, args)
	}()
	wg.Wait()

	ex.Tool = tool.res
	ex.Reference = ref.res
	if err := errors.Join(tool.err, ref.err); err != nil {
		return ex, err
	}
	return ex, nil
}

func (e *Executor) run(ctx context.Context, side Side, path string, args []string) (*runner.Result, error) {
	argv := append([]string{path}, args...)
	res, err := e.Runner.Run(ctx, argv, e.Dir)
	if err != nil {
		return nil, err
	}
	if !res.Success() {
		return res, &ExitCodeError{Side: side, Path: path, ExitCode: res.ExitCode, TimedOut: res.TimedOut}
	}
	return res, nil
}

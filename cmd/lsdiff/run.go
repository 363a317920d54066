package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/deixis/lsdiff/internal/locate"
	"github.com/deixis/lsdiff/internal/matrix"
	"github.com/deixis/lsdiff/internal/report"
	"github.com/deixis/lsdiff/internal/workflow"
)

// runOptions holds flags shared by run and watch.
type runOptions struct {
	*rootOptions
	Artifact  string
	Filter    string
	Context   bool
	NoHistory bool
	overrides *overrides
}

func (o *runOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Artifact, "artifact", "", "use this executable instead of building")
	cmd.Flags().StringVar(&o.Filter, "filter", "", "only run cases whose switches contain this substring")
	cmd.Flags().BoolVar(&o.Context, "context", false, "show matching lines around strict-mode differences")
	cmd.Flags().BoolVar(&o.NoHistory, "no-history", false, "do not record the run")
	o.overrides = registerOverrides(cmd)
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [-- SWITCHES...]",
		Short: "Build the tool and compare it against the reference",
		Long: `Build the tool under test, run every case against it and the reference,
and print each discrepancy. Nothing is printed when every case matches.

Exit status is 0 when every case matched, 1 when at least one case failed,
2 on usage errors and 3 when the build, the report or the history failed.

Example:
  lsdiff run
  lsdiff run --filter r
  lsdiff run --artifact target/release/fls -- -rt "-l -i"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, opts.rootOptions, opts.overrides)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()

			var history report.History
			if !opts.NoHistory {
				if history, err = e.openHistory(); err != nil {
					return err
				}
				defer history.Close()
			}
			return runOnce(ctx, e.engine(history), opts, args, cmd.OutOrStdout())
		},
	}
	opts.register(cmd)
	return cmd
}

// runOnce performs one run and writes its report to w.
func runOnce(ctx context.Context, eng *workflow.Engine, opts *runOptions, names []string, w io.Writer) error {
	var rp *report.Reporter
	var sink matrix.Sink
	if opts.Format == "text" {
		rp = &report.Reporter{W: w, Context: opts.Context}
		sink = rp
	}

	out, err := eng.Run(ctx, workflow.RunOptions{
		Artifact: opts.Artifact,
		Filter:   opts.Filter,
		Cases:    names,
		Sink:     sink,
	})
	if out == nil {
		exitErr := classifyRunError(err)
		if exitCode(exitErr) == exitFatal {
			reportFatal(w, opts.Format, err)
		}
		return exitErr
	}
	if err != nil {
		reportFatal(w, opts.Format, err)
		return wrapExitError(exitFatal, fmt.Sprintf("run %s aborted", out.Summary.ID), err)
	}

	if rp != nil {
		if err := rp.Summary(out.Summary); err != nil {
			return wrapExitError(exitFatal, "writing report", err)
		}
	} else if err := report.WriteJSON(w, out.Record); err != nil {
		return wrapExitError(exitFatal, "writing report", err)
	}

	if failed := out.Record.Failed; failed > 0 {
		return newExitError(exitFailure, fmt.Sprintf("%d of %d cases failed", failed, len(out.Record.Cases)))
	}
	return nil
}

// reportFatal puts a run-level error on the report stream too. A write
// failure is ignored; the error still reaches stderr through main.
func reportFatal(w io.Writer, format string, err error) {
	if format == "json" {
		_ = report.WriteJSONError(w, err)
		return
	}
	_ = (&report.Reporter{W: w}).Fatal(err)
}

func classifyRunError(err error) error {
	var buildErr *locate.BuildError
	switch {
	case errors.Is(err, workflow.ErrNoCases):
		return wrapExitError(exitUsage, "selecting cases", err)
	case errors.As(err, &buildErr):
		return wrapExitError(exitFatal, "build failed", err)
	case errors.Is(err, locate.ErrBuildOutputTruncated):
		return wrapExitError(exitFatal, "reading build records", err)
	case errors.Is(err, locate.ErrArtifactNotFound):
		return wrapExitError(exitFatal, "locating artifact", err)
	}
	return wrapExitError(exitFatal, "run failed", err)
}

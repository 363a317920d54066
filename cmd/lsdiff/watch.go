package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deixis/lsdiff/internal/report"
	"github.com/deixis/lsdiff/internal/watch"
)

func newWatchCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch [-- SWITCHES...]",
		Short: "Re-run the comparison whenever the tool's sources change",
		Long: `Run once, then watch the configured paths (default src/) and run again
after every change. Bursts of changes are coalesced by the watch.debounce
interval. Build output under target/ is ignored.

Failures are reported and watching continues; stop with Ctrl-C.`,
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
			eng := e.engine(history)

			w, err := watch.New(e.root, e.cfg.WatchPaths(), e.cfg.Debounce(), e.logger)
			if err != nil {
				return wrapExitError(exitUsage, "starting watcher", err)
			}
			defer w.Close()

			out := cmd.OutOrStdout()
			runAndLog := func(ctx context.Context) {
				err := runOnce(ctx, eng, opts, args, out)
				if err == nil || ctx.Err() != nil {
					return
				}
				if exitCode(err) == exitUsage {
					e.logger.Error("run rejected", "error", err)
					return
				}
				e.logger.Warn("run failed", "error", err)
			}

			runAndLog(ctx)
			e.logger.Info("watching for changes", "paths", strings.Join(e.cfg.WatchPaths(), ","))
			err = w.Run(ctx, func(ctx context.Context, changed []string) {
				e.logger.Info("change detected, re-running", "files", len(changed), "first", changed[0])
				runAndLog(ctx)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	opts.register(cmd)
	return cmd
}

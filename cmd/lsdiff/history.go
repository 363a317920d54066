package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deixis/lsdiff/internal/report"
)

// openHistoryForReading opens the bbolt history without a file fallback:
// a fresh temp directory would never contain the runs asked for.
func openHistoryForReading(e *env) (*report.BoltStore, error) {
	s, err := report.OpenBoltStore(e.cfg.HistoryPath(e.root), e.cfg.HistoryKeep())
	if err != nil {
		if report.IsLocked(err) {
			return nil, wrapExitError(exitFatal, "history is in use by another lsdiff process", err)
		}
		return nil, wrapExitError(exitFatal, "opening history", err)
	}
	return s, nil
}

func newHistoryCommand(rootOpts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			s, err := openHistoryForReading(e)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.List(limit)
			if err != nil {
				return wrapExitError(exitFatal, "listing runs", err)
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			for _, r := range runs {
				if err := report.RenderRun(out, r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of runs to list (0 for all)")
	return cmd
}

func newInspectCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect RUN_ID [-- SWITCHES]",
		Short: "Show a recorded case in full",
		Long: `Show a recorded case in full, including the lines both outputs agree on.
Without SWITCHES every failed case of the run is shown.

Example:
  lsdiff inspect 3f0c9a6e-... -- -rt`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd, rootOpts, nil)
			if err != nil {
				return err
			}
			s, err := openHistoryForReading(e)
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.Load(args[0])
			if err != nil {
				if errors.Is(err, report.ErrNotFound) {
					return wrapExitError(exitUsage, "unknown run", err)
				}
				return wrapExitError(exitFatal, "loading run", err)
			}

			recs := report.Failures(run)
			if len(args) == 2 {
				rec, err := report.ByCase(run, args[1])
				if err != nil {
					return wrapExitError(exitUsage, "unknown case", err)
				}
				recs = []report.CaseRecord{*rec}
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				fmt.Fprintf(out, "run %s: every case matched\n", run.ID)
				return nil
			}
			for i := range recs {
				if err := report.RenderCase(out, &recs[i], true); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

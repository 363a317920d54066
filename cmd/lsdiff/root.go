package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deixis/lsdiff"
	"github.com/deixis/lsdiff/internal/config"
	"github.com/deixis/lsdiff/internal/report"
	"github.com/deixis/lsdiff/internal/runner"
	"github.com/deixis/lsdiff/internal/workflow"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
	Dir     string
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lsdiff",
		Short: "Differential testing of a directory-listing tool against ls",
		Long: `lsdiff builds a directory-listing tool, runs it and a reference ls with
identical switches, and reports every case where their output differs.

Sort-order switches are compared byte for byte in the current directory.
Long-format switches list a fixed external directory and are compared line
by line, ignoring whitespace at the edges of each line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return newExitError(exitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, validFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVarP(&opts.Dir, "dir", "C", "", "run as if started in this directory")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newMCPCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), lsdiff.Version)
		},
	})

	return cmd
}

// overrides are command-line values that take precedence over .lsdiff.
type overrides struct {
	Timeout     time.Duration
	Concurrency int
	Reference   string
}

func registerOverrides(cmd *cobra.Command) *overrides {
	o := &overrides{}
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 0, "per-process timeout (overrides config)")
	cmd.Flags().IntVar(&o.Concurrency, "concurrency", 0, "cases run in parallel; 1 runs sequentially")
	cmd.Flags().StringVar(&o.Reference, "reference", "", "reference executable (default /bin/ls)")
	return o
}

func (o *overrides) apply(cfg *config.Config) error {
	if o == nil {
		return nil
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", o.Timeout)
	}
	if o.Timeout > 0 {
		cfg.RawTimeout = o.Timeout.String()
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", o.Concurrency)
	}
	if o.Concurrency > 0 {
		cfg.RawConcurrency = o.Concurrency
	}
	if o.Reference != "" {
		cfg.RawReference = o.Reference
	}
	return nil
}

// env is the state shared by commands that touch the project.
type env struct {
	cfg     *config.Config
	root    string
	workDir string
	runner  *runner.Runner
	build   *runner.Runner
	logger  *slog.Logger
}

func loadEnv(cmd *cobra.Command, opts *rootOptions, ov *overrides) (*env, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	workDir := opts.Dir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, wrapExitError(exitFatal, "determining working directory", err)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, wrapExitError(exitUsage, "resolving directory", err)
	}

	loaded, err := config.Load(workDir)
	if err != nil {
		return nil, wrapExitError(exitUsage, "loading config", err)
	}
	cfg := loaded.Config
	if err := ov.apply(cfg); err != nil {
		return nil, wrapExitError(exitUsage, "invalid flag", err)
	}
	logger.Debug("config loaded", "project_root", loaded.ProjectRoot, "timeout", cfg.Timeout(), "concurrency", cfg.Concurrency())

	return &env{
		cfg:     cfg,
		root:    loaded.ProjectRoot,
		workDir: workDir,
		runner: &runner.Runner{
			Workspace: loaded.ProjectRoot,
			Timeout:   cfg.Timeout(),
			MaxOutput: cfg.MaxOutputBytes(),
		},
		build: &runner.Runner{
			Workspace: loaded.ProjectRoot,
			Timeout:   cfg.BuildTimeout(),
			MaxOutput: cfg.BuildMaxOutputBytes(),
		},
		logger: logger,
	}, nil
}

func (e *env) engine(history report.Store) *workflow.Engine {
	return &workflow.Engine{
		Config:      e.cfg,
		Runner:      e.runner,
		BuildRunner: e.build,
		ProjectRoot: e.root,
		WorkDir:     e.workDir,
		History:     history,
		Logger:      e.logger,
	}
}

// openHistory opens the run history for writing. When another lsdiff
// process holds the database, runs are saved as files instead.
func (e *env) openHistory() (report.History, error) {
	path := e.cfg.HistoryPath(e.root)
	h, fellBack, err := report.OpenHistory(path, e.cfg.HistoryKeep())
	if err != nil {
		return nil, wrapExitError(exitFatal, "opening history", err)
	}
	if fellBack {
		dir, _ := h.(*report.DiskStore).Dir()
		e.logger.Warn("history database is in use by another process; saving runs as files", "db", path, "dir", dir)
	}
	return h, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

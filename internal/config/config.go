// Package config loads and validates the optional .lsdiff YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file at the project root.
const FileName = ".lsdiff"

// Default values for runner configuration.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 4 << 20 // 4 MB
	DefaultReference = "/bin/ls"
	DefaultTarget    = ".."
	DefaultKeep      = 50
	DefaultDebounce  = 200 * time.Millisecond

	DefaultBuildTimeout   = 10 * time.Minute
	DefaultBuildMaxOutput = 64 << 20 // 64 MB
)

// Config holds the parsed .lsdiff configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version        int           `yaml:"version"`
	RawTimeout     string        `yaml:"timeout"`    // per process, e.g. "30s"
	RawMaxOutput   int           `yaml:"max_output"` // bytes per stream
	RawConcurrency int           `yaml:"concurrency"`
	RawReference   string        `yaml:"reference"`
	Build          BuildConfig   `yaml:"build"`
	Sort           SortConfig    `yaml:"sort"`
	Long           LongConfig    `yaml:"long"`
	History        HistoryConfig `yaml:"history"`
	Watch          WatchConfig   `yaml:"watch"`
}

// BuildConfig controls how the tool under test is built. Its timeout and
// output cap apply to the build only, never to the cases.
type BuildConfig struct {
	Command      []string `yaml:"command"` // must emit line-delimited JSON records on stdout
	RawTimeout   string   `yaml:"timeout"`
	RawMaxOutput int      `yaml:"max_output"`
}

// SortConfig defines the sort-order case family.
type SortConfig struct {
	Switches []string `yaml:"switches"`
}

// LongConfig defines the long-format case family.
type LongConfig struct {
	Baseline           []string `yaml:"baseline"`
	Target             string   `yaml:"target"`
	Switches           []string `yaml:"switches"`
	CollapseWhitespace bool     `yaml:"collapse_whitespace"` // also normalise internal runs
}

// HistoryConfig controls where run results are persisted.
type HistoryConfig struct {
	Path string `yaml:"path"` // relative to the project root
	Keep int    `yaml:"keep"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	Paths       []string `yaml:"paths"`
	RawDebounce string   `yaml:"debounce"`
}

// DefaultBuildCommand builds the tool with machine-readable progress records.
var DefaultBuildCommand = []string{"cargo", "build", "--message-format=json"}

// DefaultSortSwitches are used when no sort switches are configured.
var DefaultSortSwitches = []string{"-c", "-t", "-f", "-rc", "-rt", "-rf"}

// DefaultLongBaseline is prepended to every long-format case.
var DefaultLongBaseline = []string{"-f"}

// DefaultLongSwitches are used when no long-format switches are configured.
var DefaultLongSwitches = []string{"-l", "-n", "-o", "-ln", "-lo", "-li", "-nl", "-ol", "-il"}

// DefaultWatchPaths are watched when none are configured.
var DefaultWatchPaths = []string{"src"}

// Timeout returns the configured per-process timeout or the default.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultTimeout
}

// MaxOutputBytes returns the configured max output size or the default.
func (c *Config) MaxOutputBytes() int {
	if c.RawMaxOutput > 0 {
		return c.RawMaxOutput
	}
	return DefaultMaxOutput
}

// Concurrency returns the configured worker count, falling back to the CPU count.
func (c *Config) Concurrency() int {
	if c.RawConcurrency > 0 {
		return c.RawConcurrency
	}
	return runtime.NumCPU()
}

// Reference returns the path of the reference executable.
func (c *Config) Reference() string {
	if c.RawReference != "" {
		return c.RawReference
	}
	return DefaultReference
}

// BuildCommand returns the configured build argv, falling back to cargo.
func (c *Config) BuildCommand() []string {
	if len(c.Build.Command) > 0 {
		return c.Build.Command
	}
	return DefaultBuildCommand
}

// BuildTimeout returns the timeout for the whole build.
func (c *Config) BuildTimeout() time.Duration {
	if c.Build.RawTimeout != "" {
		d, err := time.ParseDuration(c.Build.RawTimeout)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultBuildTimeout
}

// BuildMaxOutputBytes returns the cap on the captured build record stream.
func (c *Config) BuildMaxOutputBytes() int {
	if c.Build.RawMaxOutput > 0 {
		return c.Build.RawMaxOutput
	}
	return DefaultBuildMaxOutput
}

// SortSwitches returns the configured sort-order switches, falling back to defaults.
func (c *Config) SortSwitches() []string {
	if len(c.Sort.Switches) > 0 {
		return c.Sort.Switches
	}
	return DefaultSortSwitches
}

// LongBaseline returns the arguments prepended to every long-format case.
// An explicitly empty list in the file is indistinguishable from unset,
// so the default always applies when nothing is given.
func (c *Config) LongBaseline() []string {
	if len(c.Long.Baseline) > 0 {
		return c.Long.Baseline
	}
	return DefaultLongBaseline
}

// LongTarget returns the directory listed by long-format cases.
func (c *Config) LongTarget() string {
	if c.Long.Target != "" {
		return c.Long.Target
	}
	return DefaultTarget
}

// LongSwitches returns the configured long-format switches, falling back to defaults.
func (c *Config) LongSwitches() []string {
	if len(c.Long.Switches) > 0 {
		return c.Long.Switches
	}
	return DefaultLongSwitches
}

// HistoryPath returns the bbolt history path resolved against root.
func (c *Config) HistoryPath(root string) string {
	p := c.History.Path
	if p == "" {
		p = filepath.Join("target", "lsdiff", "history.db")
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// HistoryKeep returns how many runs are retained in history.
func (c *Config) HistoryKeep() int {
	if c.History.Keep > 0 {
		return c.History.Keep
	}
	return DefaultKeep
}

// WatchPaths returns the paths watched in watch mode.
func (c *Config) WatchPaths() []string {
	if len(c.Watch.Paths) > 0 {
		return c.Watch.Paths
	}
	return DefaultWatchPaths
}

// Debounce returns the watch debounce interval.
func (c *Config) Debounce() time.Duration {
	if c.Watch.RawDebounce != "" {
		d, err := time.ParseDuration(c.Watch.RawDebounce)
		if err == nil && d > 0 {
			return d
		}
	}
	return DefaultDebounce
}

// Validate reports configuration values that can never produce a meaningful run.
func (c *Config) Validate() error {
	if c.RawTimeout != "" {
		d, err := time.ParseDuration(c.RawTimeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", c.RawTimeout)
		}
	}
	if c.Build.RawTimeout != "" {
		d, err := time.ParseDuration(c.Build.RawTimeout)
		if err != nil {
			return fmt.Errorf("build.timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("build.timeout must be positive, got %s", c.Build.RawTimeout)
		}
	}
	if c.RawConcurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.RawConcurrency)
	}
	for _, s := range append(append([]string{}, c.Sort.Switches...), c.Long.Switches...) {
		if s == "" {
			return fmt.Errorf("empty switch in case matrix")
		}
	}
	return nil
}

// LoadResult holds the parsed config and the discovered project root.
type LoadResult struct {
	Config      *Config
	ProjectRoot string // directory containing Cargo.toml; falls back to workspace
}

// Load reads the .lsdiff file from the project root.
// The project root is discovered by walking upward from workspace
// looking for Cargo.toml. If no .lsdiff file exists, a default Config is returned.
func Load(workspace string) (*LoadResult, error) {
	root, err := findProjectRoot(workspace)
	if err != nil {
		// No Cargo.toml found; use workspace as root.
		root = workspace
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LoadResult{Config: &Config{}, ProjectRoot: root}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	return &LoadResult{Config: cfg, ProjectRoot: root}, nil
}

// findProjectRoot walks upward from dir looking for a directory containing Cargo.toml.
func findProjectRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "Cargo.toml")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("Cargo.toml not found")
		}
		dir = parent
	}
}

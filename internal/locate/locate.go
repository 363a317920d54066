// Package locate finds the executable produced by a build of the tool
// under test. The build is asked to stream machine-readable progress
// records so that no build-output directory layout is ever assumed.
package locate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/deixis/lsdiff/internal/runner"
)

// ErrArtifactNotFound is returned when no build record names an executable.
var ErrArtifactNotFound = errors.New("build output names no executable")

// ErrBuildOutputTruncated is returned when the record stream was cut at the
// capture limit, so its final records were never seen.
var ErrBuildOutputTruncated = errors.New("build output exceeded build.max_output")

// BuildError is returned when the build command exits non-zero.
type BuildError struct {
	Command  []string
	ExitCode int
	TimedOut bool
	Messages []string // compiler messages rendered from the record stream
}

func (e *BuildError) Error() string {
	var b strings.Builder
	cmd := strings.Join(e.Command, " ")
	if e.TimedOut {
		fmt.Fprintf(&b, "build %q timed out", cmd)
	} else {
		fmt.Fprintf(&b, "build %q exited with code %d", cmd, e.ExitCode)
	}
	for _, m := range e.Messages {
		fmt.Fprintf(&b, "\n%s", strings.TrimRight(m, "\n"))
	}
	return b.String()
}

// CommandRunner executes commands within a workspace.
// Implemented by runner.Runner.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, cwd string) (*runner.Result, error)
}

// Artifact is the located executable under test.
type Artifact struct {
	Path    string // absolute path to the executable
	Package string // package id from the build record, if any
}

// Locate runs the build command and returns the executable named by its
// final artifact record. r should carry the build limits, not the
// per-case ones.
func Locate(ctx context.Context, r CommandRunner, argv []string) (*Artifact, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty build command")
	}

	result, err := r.Run(ctx, argv, "")
	if err != nil {
		return nil, fmt.Errorf("running build: %w", err)
	}
	if !result.Success() {
		return nil, &BuildError{
			Command:  argv,
			ExitCode: result.ExitCode,
			TimedOut: result.TimedOut,
			Messages: compilerMessages(result.Stdout),
		}
	}
	if result.Truncated {
		return nil, ErrBuildOutputTruncated
	}
	return ParseMessages(result.Stdout)
}

// FromPath validates an explicitly supplied executable, for runs where the
// build has already been triggered elsewhere.
func FromPath(path string) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactNotFound, err)
	}
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("%w: %s is not an executable file", ErrArtifactNotFound, path)
	}
	return &Artifact{Path: path}, nil
}

// buildRecord is a single line of `cargo build --message-format=json`.
// Only the fields needed to find the executable and render diagnostics
// are decoded.
type buildRecord struct {
	Reason     string  `json:"reason"`
	PackageID  string  `json:"package_id"`
	Executable *string `json:"executable"`
	Message    *struct {
		Rendered string `json:"rendered"`
	} `json:"message"`
}

// ParseMessages scans a line-delimited record stream and returns the
// executable named by the last record that carries one. Lines that are
// not JSON objects are skipped.
func ParseMessages(data []byte) (*Artifact, error) {
	var found *Artifact

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec buildRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Executable == nil || *rec.Executable == "" {
			continue
		}
		found = &Artifact{Path: *rec.Executable, Package: rec.PackageID}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading build records: %w", err)
	}
	if found == nil {
		return nil, ErrArtifactNotFound
	}
	return found, nil
}

// compilerMessages extracts rendered compiler diagnostics from the record
// stream so that a failed build can be explained without its stderr.
func compilerMessages(data []byte) []string {
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec buildRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Reason == "compiler-message" && rec.Message != nil && rec.Message.Rendered != "" {
			out = append(out, rec.Message.Rendered)
		}
	}
	return out
}

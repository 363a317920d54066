package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{
		Workspace: t.TempDir(),
		Timeout:   10 * time.Second,
		MaxOutput: 1 << 20,
	}
}

func TestRun_Success(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), []string{"echo", "hello"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if string(res.Stdout) != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if !res.Success() {
		t.Error("Success() = false, want true")
	}
}

func TestRun_StderrDiscarded(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "echo out; echo err >&2"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Stdout) != "out\n" {
		t.Errorf("Stdout = %q, want only stdout", res.Stdout)
	}
}

func TestRun_NoStdin(t *testing.T) {
	r := newTestRunner(t)
	// cat reads stdin until EOF; with no stdin it must return immediately.
	res, err := r.Run(context.Background(), []string{"cat"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Stdout) != 0 {
		t.Errorf("Stdout = %q, want empty", res.Stdout)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := newTestRunner(t)
	res, err := r.Run(context.Background(), []string{"sh", "-c", "exit 2"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", res.ExitCode)
	}
	if res.Success() {
		t.Error("Success() = true, want false")
	}
}

func TestRun_BinaryNotFound(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), []string{"nonexistent-binary-xyz-123"}, "")
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("error = %T, want *LaunchError", err)
	}
	if !strings.Contains(err.Error(), "nonexistent-binary-xyz-123") {
		t.Errorf("error = %q, want to mention the binary name", err)
	}
}

func TestRun_NotExecutable(t *testing.T) {
	r := newTestRunner(t)
	path := filepath.Join(r.Workspace, "plain.txt")
	if err := os.WriteFile(path, []byte("not a program"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := r.Run(context.Background(), []string{path}, "")
	var launchErr *LaunchError
	if !errors.As(err, &launchErr) {
		t.Fatalf("error = %v, want *LaunchError", err)
	}
}

func TestRun_EmptyArgv(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), nil, "")
	if err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestRun_CWDWithinWorkspace(t *testing.T) {
	r := newTestRunner(t)
	sub := filepath.Join(r.Workspace, "subdir")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	res, err := r.Run(context.Background(), []string{"pwd"}, "subdir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(res.Stdout), "subdir") {
		t.Errorf("Stdout = %q, want to contain 'subdir'", res.Stdout)
	}
}

func TestRun_CWDOutsideWorkspace_Relative(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), []string{"echo"}, "../")
	if err == nil {
		t.Fatal("expected error for cwd outside workspace")
	}
	if !strings.Contains(err.Error(), "outside workspace") {
		t.Errorf("error = %q, want 'outside workspace'", err)
	}
}

func TestRun_CWDOutsideWorkspace_Absolute(t *testing.T) {
	r := newTestRunner(t)
	_, err := r.Run(context.Background(), []string{"echo"}, "/tmp")
	if err == nil {
		t.Fatal("expected error for absolute cwd outside workspace")
	}
	if !strings.Contains(err.Error(), "outside workspace") {
		t.Errorf("error = %q, want 'outside workspace'", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	r := newTestRunner(t)
	r.Timeout = 100 * time.Millisecond

	start := time.Now()
	res, err := r.Run(context.Background(), []string{"sleep", "10"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.TimedOut {
		t.Error("TimedOut = false, want true")
	}
	if res.Success() {
		t.Error("Success() = true for a timed out process")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v, want it bounded by the timeout", elapsed)
	}
}

func TestRun_OutputTruncation(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 100 // very small cap

	// Generate output larger than cap.
	res, err := r.Run(context.Background(), []string{"sh", "-c", "dd if=/dev/zero bs=200 count=1 2>/dev/null"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Truncated {
		t.Error("Truncated = false, want true")
	}
	if len(res.Stdout) > r.MaxOutput {
		t.Errorf("len(Stdout) = %d, want <= %d", len(res.Stdout), r.MaxOutput)
	}
}

func TestRun_ExactCapNotTruncated(t *testing.T) {
	r := newTestRunner(t)
	r.MaxOutput = 6

	res, err := r.Run(context.Background(), []string{"echo", "hello"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Truncated {
		t.Error("Truncated = true for output exactly at the cap")
	}
}

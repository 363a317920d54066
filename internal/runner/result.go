package runner

// Result holds the output of a command execution.
type Result struct {
	RunID     string // unique identifier for this run
	ExitCode  int    // process exit code; -1 when killed by the timeout
	Stdout    []byte // captured stdout (may be truncated)
	Truncated bool   // true if stdout exceeded the size cap
	TimedOut  bool   // true if the process was killed by the timeout
}

// Success reports whether the process ran to completion with exit code 0.
func (r *Result) Success() bool {
	return !r.TimedOut && r.ExitCode == 0
}

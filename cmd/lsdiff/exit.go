package main

import (
	"errors"
	"fmt"
)

// Exit codes.
const (
	exitOK      = 0 // every case matched
	exitFailure = 1 // at least one case failed
	exitUsage   = 2 // bad flags, arguments or configuration
	exitFatal   = 3 // build, locate, report or history failure
)

// exitError carries the process exit code for an error returned by a command.
type exitError struct {
	code int
	msg  string
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *exitError) Unwrap() error { return e.err }

func newExitError(code int, msg string) *exitError {
	return &exitError{code: code, msg: msg}
}

func wrapExitError(code int, msg string, err error) *exitError {
	return &exitError{code: code, msg: msg, err: err}
}

// exitCode maps err to a process exit code. Errors that do not carry a
// code come from flag and argument parsing.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUsage
}

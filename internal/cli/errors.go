package cli

import (
	"errors"
	"fmt"
)

// Exit codes returned by procwatch.
const (
	// ExitFailure is a failed run: unreadable input, a locked or corrupt
	// store, or a store that could not be written.
	ExitFailure = 1

	// ExitConfig is an invalid configuration or catalog. Nothing was read
	// or written.
	ExitConfig = 2
)

// ExitError represents a command execution failure with a specific exit code.
//
// Cobra RunE functions return it instead of calling os.Exit() directly, so
// commands stay testable. The code propagates up to [RunWithConfig] where
// [IsExitError] extracts it for [ExecuteResult]; [Execute] makes the actual
// os.Exit() call.
type ExitError struct {
	// Code is the exit code to return to the shell.
	Code int
}

// Error implements the error interface in the "exit status N" format used
// by os/exec.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
//
//	if err != nil {
//	    app.Printer.Error("reconcile failed: %v", err)
//	    return NewExitError(ExitFailure)
//	}
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError checks if err is or wraps an [ExitError] and extracts its exit
// code. Returns (0, false) for nil and for any other error.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

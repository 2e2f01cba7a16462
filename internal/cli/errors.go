package cli

import "fmt"

// ExitError carries the process exit code out of a command.
//
// RunE functions return NewExitError(code) instead of calling os.Exit, so
// tests can assert on the code. [RunWithConfig] extracts it with
// [IsExitError] and [Execute] performs the actual exit.
type ExitError struct {
	// Code is the exit code returned to the shell. Run failures use the codes
	// from errors.ExitCode, so a CI job can tell a startup timeout from a
	// failed step.
	Code int
}

// Error returns "exit status N", matching os/exec's format.
func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// NewExitError creates an [ExitError] with the given exit code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// IsExitError reports whether err is an [ExitError] and returns its code.
func IsExitError(err error) (int, bool) {
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code, true
	}
	return 0, false
}

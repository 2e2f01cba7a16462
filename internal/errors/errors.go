// Package errors defines the failure taxonomy of a harness run.
//
// Every way a run can fail surfaces to the caller as exactly one of the types
// below, so callers can switch on the kind with [As] instead of matching
// strings:
//
//   - [ConfigurationError]: a precondition was violated before anything was spawned
//   - [ProcessSpawnError]: the server executable could not be started
//   - [StartupTimeoutError]: the ready marker never appeared before the startup deadline
//   - [StartupCrashError]: the server exited (or hit a fatal transition) before becoming ready
//   - [StepFailure]: a scripted step failed; remaining steps were skipped
//   - [AbnormalExitError]: the server exited badly after an otherwise clean run
//
// The package re-exports the standard library helpers so callers only need a
// single import for error handling.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Sentinel errors.
var (
	// ErrProcessGone indicates the server's input sink is closed because the
	// process has exited or was killed.
	ErrProcessGone = New("server process is gone")

	// ErrAlreadyLaunched is returned when a controller is launched twice.
	// Controllers are single-use.
	ErrAlreadyLaunched = New("controller already launched")
)

// ConfigurationError reports a violated precondition. It is always raised
// before any process is spawned or network call is made.
type ConfigurationError struct {
	// Field names the offending setting (e.g. "minecraft_version", "eula").
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a [ConfigurationError] for the given field.
func NewConfigurationError(field, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason}
}

// ProcessSpawnError reports that the server executable could not be started.
type ProcessSpawnError struct {
	Executable string
	Err        error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Executable, e.Err)
}

func (e *ProcessSpawnError) Unwrap() error { return e.Err }

// StartupTimeoutError reports that the ready marker did not appear within the
// startup deadline. The process has been killed by the time this is returned.
type StartupTimeoutError struct {
	Timeout time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("server did not become ready within %s", e.Timeout)
}

// StartupCrashError reports that the server exited before it became ready.
// FatalTransition is set when the fatal-transition marker was seen in output.
type StartupCrashError struct {
	ExitCode        int
	FatalTransition bool
}

func (e *StartupCrashError) Error() string {
	if e.FatalTransition {
		return fmt.Sprintf("server crashed during startup with exit code %d (fatal transition errors detected)", e.ExitCode)
	}
	return fmt.Sprintf("server exited during startup with exit code %d", e.ExitCode)
}

// StepFailure reports that a scripted step failed. Index is zero-based in
// execution order; Step is the step's display form.
type StepFailure struct {
	Index int
	Step  string
	Err   error
}

func (e *StepFailure) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index+1, e.Step, e.Err)
}

func (e *StepFailure) Unwrap() error { return e.Err }

// AwaitTimeoutError is the cause of a [StepFailure] when an await step's
// pattern did not appear before its deadline.
type AwaitTimeoutError struct {
	Pattern string
	Timeout time.Duration
}

func (e *AwaitTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for %q", e.Timeout, e.Pattern)
}

// AbnormalExitError reports a bad exit after readiness and a clean step run:
// either a non-zero exit code or a fatal transition seen in the output.
type AbnormalExitError struct {
	ExitCode        int
	FatalTransition bool
}

func (e *AbnormalExitError) Error() string {
	if e.FatalTransition {
		return fmt.Sprintf("server exited with code %d after fatal transition errors", e.ExitCode)
	}
	return fmt.Sprintf("server exited with code %d", e.ExitCode)
}

// Exit codes used by the CLI for each failure kind.
const (
	ExitOK             = 0
	ExitGeneric        = 1
	ExitConfiguration  = 2
	ExitSpawn          = 3
	ExitStartupTimeout = 4
	ExitStartupCrash   = 5
	ExitStepFailure    = 6
	ExitAbnormal       = 7
)

// ExitCode maps an error from a run onto a process exit code.
// Returns [ExitOK] for nil and [ExitGeneric] for unclassified errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var (
		cfgErr     *ConfigurationError
		spawnErr   *ProcessSpawnError
		timeoutErr *StartupTimeoutError
		crashErr   *StartupCrashError
		stepErr    *StepFailure
		exitErr    *AbnormalExitError
	)

	switch {
	case As(err, &cfgErr):
		return ExitConfiguration
	case As(err, &spawnErr):
		return ExitSpawn
	case As(err, &timeoutErr):
		return ExitStartupTimeout
	case As(err, &crashErr):
		return ExitStartupCrash
	case As(err, &stepErr):
		return ExitStepFailure
	case As(err, &exitErr):
		return ExitAbnormal
	default:
		return ExitGeneric
	}
}

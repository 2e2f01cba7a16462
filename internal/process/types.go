// Package process spawns the server as a child process and exposes its
// console as line-oriented streams.
//
// Key types:
//   - [Spawner]: starts a [Process] from a [Command]
//   - [Process]: a running child with an input sink, a merged line source
//     (stdout and stderr), an exit signal, and a kill switch
//   - [ExecSpawner]: the os/exec implementation
//
// Output is published on [Process.Lines] in arrival order per stream, and
// [Process.Done] is closed only after both streams have been fully read, so a
// consumer always observes every line before the exit. A descendant that
// keeps the streams open after the child exits gets [ExecSpawner.WaitDelay]
// before they are closed.
package process

import (
	"context"
	"strings"
)

// Stream identifies which output stream a line came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Line is one line of server output with ANSI escape sequences removed.
type Line struct {
	Stream Stream
	Text   string
}

// Command describes how to start the server.
type Command struct {
	// Path is the executable (usually the java binary).
	Path string

	// Args are the arguments after the executable.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the parent environment.
	Env []string
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Process is a running child process.
type Process interface {
	// Pid returns the OS process ID, or 0 if unknown.
	Pid() int

	// WriteLine writes text plus a newline to the process's stdin. It
	// returns an error wrapping errors.ErrProcessGone once the process has
	// exited or its stdin is closed.
	WriteLine(text string) error

	// Lines returns the merged output stream. The channel is closed after
	// both stdout and stderr reach EOF.
	Lines() <-chan Line

	// Done is closed after the process has exited and Lines is closed.
	Done() <-chan struct{}

	// ExitCode returns the exit status. Only valid after Done is closed;
	// -1 if the process was terminated by a signal.
	ExitCode() int

	// Kill forcibly terminates the process. Killing an exited process is a no-op.
	Kill() error
}

// Spawner starts processes.
type Spawner interface {
	// Spawn starts cmd. Failures to start are returned as
	// *errors.ProcessSpawnError.
	Spawn(ctx context.Context, cmd Command) (Process, error)
}

// Package step defines the scripted interactions run against a ready server.
//
// A [Step] is one of two variants:
//   - [Command] writes a line to the server's console input
//   - [Await] blocks until a pattern appears in the server's output, optionally
//     bounded by a timeout
//
// Steps never see the process itself. They receive a [Process] capability that
// can only write a line of input and register or remove output listeners, so
// a step cannot close, kill, or respawn the server.
package step

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"serverharness/internal/errors"
	"serverharness/internal/watcher"
)

// Kind identifies a step variant.
type Kind int

const (
	KindCommand Kind = iota
	KindAwait
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindAwait:
		return "await"
	default:
		return "unknown"
	}
}

// InputSink accepts console input for the server.
type InputSink interface {
	// WriteLine writes text followed by a newline. It returns an error
	// wrapping [errors.ErrProcessGone] when the input is closed.
	WriteLine(text string) error
}

// OutputSource lets a step observe server output.
type OutputSource interface {
	AddListener(l watcher.Listener) watcher.Handle
	RemoveListener(h watcher.Handle) bool
}

// Process is the narrow view of the running server handed to each step.
type Process interface {
	InputSink
	OutputSource
}

// Step is a single scripted interaction. The set of variants is closed;
// values are immutable once constructed.
type Step interface {
	// Kind reports the variant.
	Kind() Kind

	// Execute runs the step against p. A nil return means success; any
	// error is fatal to the run. Execute returns early with ctx.Err() when
	// ctx is canceled.
	Execute(ctx context.Context, p Process) error

	// String returns a short human-readable form used in logs and reports.
	String() string

	sealed()
}

// Command sends a line of text to the server console.
type Command struct {
	Text string
}

// NewCommand creates a [Command] step.
func NewCommand(text string) Command {
	return Command{Text: text}
}

func (Command) Kind() Kind { return KindCommand }

// Execute writes the command and returns as soon as the write is accepted.
// It does not wait for the server to react.
func (c Command) Execute(ctx context.Context, p Process) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.WriteLine(c.Text)
}

func (c Command) String() string { return fmt.Sprintf("command %q", c.Text) }

func (Command) sealed() {}

// Await waits for Pattern to appear in a single output chunk.
//
// Matching is a case-sensitive substring test against each line as it
// arrives; a pattern split across two lines never matches. A zero Timeout
// waits until the pattern appears or the step's context is canceled.
type Await struct {
	Pattern string
	Timeout time.Duration
}

// NewAwait creates an [Await] step. Pass 0 for no timeout.
func NewAwait(pattern string, timeout time.Duration) Await {
	return Await{Pattern: pattern, Timeout: timeout}
}

func (Await) Kind() Kind { return KindAwait }

// Execute blocks until the pattern matches, the timeout elapses, or ctx is
// canceled. Exactly one of these resolves the step, and the output listener
// and timer are both released before Execute returns.
func (a Await) Execute(ctx context.Context, p Process) error {
	matched := make(chan struct{})
	var once sync.Once

	h := p.AddListener(func(chunk string) bool {
		if !strings.Contains(chunk, a.Pattern) {
			return false
		}
		once.Do(func() { close(matched) })
		return true
	})
	defer p.RemoveListener(h)

	var expired <-chan time.Time
	if a.Timeout > 0 {
		timer := time.NewTimer(a.Timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-matched:
		return nil
	case <-expired:
		return &errors.AwaitTimeoutError{Pattern: a.Pattern, Timeout: a.Timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a Await) String() string {
	if a.Timeout > 0 {
		return fmt.Sprintf("await %q (timeout %s)", a.Pattern, a.Timeout)
	}
	return fmt.Sprintf("await %q", a.Pattern)
}

func (Await) sealed() {}

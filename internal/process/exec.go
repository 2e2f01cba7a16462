package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"serverharness/internal/errors"
	"serverharness/internal/logging"
)

// lineBuffer is the capacity of the merged output channel.
const lineBuffer = 256

// DefaultWaitDelay is how long output is still read after the child exits
// while a descendant keeps its stdout or stderr open.
const DefaultWaitDelay = 2 * time.Second

// ExecSpawner starts real child processes with os/exec. Each child leads its
// own process group, and [Process.Kill] signals the whole group.
type ExecSpawner struct {
	// Reader controls line splitting for stdout and stderr.
	Reader LineReader

	// WaitDelay bounds the read of remaining output once the child has
	// exited. Defaults to [DefaultWaitDelay] if <= 0.
	WaitDelay time.Duration

	logger *logging.Logger
}

// NewExecSpawner creates an [ExecSpawner] with default settings.
func NewExecSpawner() *ExecSpawner {
	return &ExecSpawner{logger: logging.NopLogger()}
}

// SetLogger configures the logger used for pipe and wait errors.
func (s *ExecSpawner) SetLogger(l *logging.Logger) {
	s.logger = l
}

// Spawn starts cmd with piped stdin, stdout, and stderr.
//
// The context only bounds the start itself; the running process is not tied
// to ctx. Use [Process.Kill] to stop it.
func (s *ExecSpawner) Spawn(ctx context.Context, cmd Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errors.ProcessSpawnError{Executable: cmd.Path, Err: err}
	}

	logger := s.logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	waitDelay := s.WaitDelay
	if waitDelay <= 0 {
		waitDelay = DefaultWaitDelay
	}

	c := exec.Command(cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.WaitDelay = waitDelay
	setProcessGroup(c)

	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, &errors.ProcessSpawnError{Executable: cmd.Path, Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	// Output goes through exec's copy goroutines so that WaitDelay can
	// force-close pipes held open by descendants.
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	c.Stdout = stdoutW
	c.Stderr = stderrW

	if err := c.Start(); err != nil {
		_ = stdin.Close()
		return nil, &errors.ProcessSpawnError{Executable: cmd.Path, Err: err}
	}

	p := &execProcess{
		cmd:      c,
		stdin:    stdin,
		lines:    make(chan Line, lineBuffer),
		done:     make(chan struct{}),
		exitCode: -1,
		logger:   logger.With("pid", c.Process.Pid),
	}
	p.start(s.Reader, stdoutR, stderrR, stdoutW, stderrW)
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	logger *logging.Logger

	mu       sync.Mutex // guards stdin and exited
	stdin    io.WriteCloser
	exited   bool
	exitCode int

	lines chan Line
	done  chan struct{}
}

func (p *execProcess) start(reader LineReader, stdout, stderr io.Reader, stdoutW, stderrW *io.PipeWriter) {
	var g errgroup.Group
	pump := func(r io.Reader, stream Stream) func() error {
		return func() error {
			if err := reader.Read(r, stream, p.lines); err != nil {
				p.logger.Warn("output stream read failed, discarding remainder",
					"stream", string(stream), "error", err.Error())
				_, _ = io.Copy(io.Discard, r)
				return err
			}
			return nil
		}
	}
	g.Go(pump(stdout, StreamStdout))
	g.Go(pump(stderr, StreamStderr))

	go func() {
		// Wait returns once the child has exited and its output is copied,
		// or after WaitDelay if a descendant still holds the pipes.
		waitErr := p.cmd.Wait()
		_ = stdoutW.Close()
		_ = stderrW.Close()

		p.mu.Lock()
		p.exited = true
		if p.cmd.ProcessState != nil {
			p.exitCode = p.cmd.ProcessState.ExitCode()
		}
		_ = p.stdin.Close()
		p.mu.Unlock()

		var exitErr *exec.ExitError
		switch {
		case waitErr == nil:
		case errors.Is(waitErr, exec.ErrWaitDelay):
			p.logger.Warn("output still held open after exit, closed it",
				"wait_delay", p.cmd.WaitDelay.String())
		case !errors.As(waitErr, &exitErr):
			p.logger.Warn("wait for process failed", "error", waitErr.Error())
		}

		_ = g.Wait()
		close(p.lines)
		close(p.done)
	}()
}

func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) WriteLine(text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exited {
		return fmt.Errorf("write %q: %w", text, errors.ErrProcessGone)
	}
	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return fmt.Errorf("write %q: %w: %v", text, errors.ErrProcessGone, err)
	}
	return nil
}

func (p *execProcess) Lines() <-chan Line { return p.lines }

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Kill sends SIGKILL to the child's process group, so descendants that
// share its output pipes die with it.
func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := killProcessGroup(p.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", p.Pid(), err)
	}
	return nil
}

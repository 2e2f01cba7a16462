// Package lifecycle drives a server process from launch to shutdown.
//
// The [Controller] spawns the server, watches its output for the ready
// marker and the fatal-transition marker, enforces the startup deadline, then
// drains a [step.Queue] against the ready server and finally sends the stop
// command and waits for the process to exit.
//
// Key concepts:
//   - One event loop owns the lifecycle state, the markers seen so far, and
//     every timer; output lines, timer expiry, step completion, and process
//     exit are handled there one at a time
//   - Steps run sequentially on a single drain goroutine and only see a
//     narrow [step.Process] view of the server
//   - Every exit path stops all timers, waits for the drain goroutine, and
//     clears the output watcher
//   - A failed step still goes through [StateStopping] so the server is
//     asked to stop; the run then ends in [StateFailed]
//   - Progress can be tracked via [ProgressCallback]
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"serverharness/internal/errors"
	"serverharness/internal/logging"
	"serverharness/internal/process"
	"serverharness/internal/step"
	"serverharness/internal/watcher"
)

// Markers and commands understood by the controller.
const (
	// DefaultReadyMarker appears in the server log once startup completes,
	// e.g. "[Server thread/INFO]: Done (12.345s)! For help, type "help"".
	DefaultReadyMarker = ": Done ("

	// DefaultFatalMarker is logged by the mod loader when a loading stage
	// fails. The server may linger afterwards, so it is recorded and judged
	// at exit.
	DefaultFatalMarker = "Fatal errors were detected during the transition"

	// DefaultStopCommand is sent once every step has run.
	DefaultStopCommand = "stop"
)

// Default timings.
const (
	DefaultStartupTimeout    = 300 * time.Second
	DefaultDelayBeforeSteps  = 100 * time.Millisecond
	DefaultDelayBetweenSteps = 100 * time.Millisecond
)

// Options configures a [Controller].
type Options struct {
	// Command is the server command line.
	Command process.Command

	// StartupTimeout bounds the time from launch to the ready marker.
	// Zero or negative disables the deadline.
	StartupTimeout time.Duration

	// DelayBeforeSteps is the settling time between the ready marker and
	// the first step.
	DelayBeforeSteps time.Duration

	// DelayBetweenSteps paces step execution; it is waited after every step.
	DelayBetweenSteps time.Duration

	// StopTimeout bounds the wait for exit after the stop command is sent.
	// When it elapses the process is killed. Zero waits indefinitely.
	StopTimeout time.Duration

	ReadyMarker string
	FatalMarker string
	StopCommand string
}

// DefaultOptions returns Options with the default markers and timings.
func DefaultOptions() Options {
	return Options{
		StartupTimeout:    DefaultStartupTimeout,
		DelayBeforeSteps:  DefaultDelayBeforeSteps,
		DelayBetweenSteps: DefaultDelayBetweenSteps,
		ReadyMarker:       DefaultReadyMarker,
		FatalMarker:       DefaultFatalMarker,
		StopCommand:       DefaultStopCommand,
	}
}

func (o *Options) applyDefaults() {
	if o.ReadyMarker == "" {
		o.ReadyMarker = DefaultReadyMarker
	}
	if o.FatalMarker == "" {
		o.FatalMarker = DefaultFatalMarker
	}
	if o.StopCommand == "" {
		o.StopCommand = DefaultStopCommand
	}
}

// StepResult records the execution of one step.
type StepResult struct {
	// Index is the zero-based execution position.
	Index    int
	Kind     step.Kind
	Step     string
	Duration time.Duration
	Err      error
}

// Result summarizes a finished run. It is returned alongside the run error,
// which is nil exactly when State is [StateStopped].
type Result struct {
	RunID string
	State State

	// ExitCode is the server's exit status, or -1 if it never ran or was
	// terminated by a signal.
	ExitCode int

	// Ready reports whether the ready marker was seen.
	Ready bool

	// FatalTransition reports whether the fatal-transition marker was seen.
	FatalTransition bool

	Steps      []StepResult
	StartedAt  time.Time
	ReadyAfter time.Duration
	Duration   time.Duration
}

// ProgressCallback is invoked before each step begins.
//
// stepIndex is 1-based; totalSteps counts the steps executed so far plus the
// steps still queued, so it can grow if steps are pushed mid-run.
type ProgressCallback func(stepIndex, totalSteps int, s step.Step)

// OutputCallback receives every server output line, in arrival order.
type OutputCallback func(line process.Line)

// Controller owns one server process for one run. Controllers are single-use:
// a second call to [Controller.Launch] returns [errors.ErrAlreadyLaunched].
type Controller struct {
	spawner process.Spawner
	queue   *step.Queue
	watcher *watcher.Watcher
	opts    Options
	runID   string

	logger   *logging.Logger
	progress ProgressCallback
	output   OutputCallback

	sm *stateless.StateMachine
}

// NewController creates a Controller that will spawn the server with spawner
// and execute the steps in queue once the server is ready.
func NewController(spawner process.Spawner, queue *step.Queue, opts Options) *Controller {
	opts.applyDefaults()
	if queue == nil {
		queue = step.NewQueue()
	}

	c := &Controller{
		spawner: spawner,
		queue:   queue,
		watcher: watcher.New(),
		opts:    opts,
		runID:   uuid.NewString(),
		logger:  logging.NopLogger(),
	}
	c.sm = newStateMachine(func(from, to State, t trigger) {
		c.logger.Info("lifecycle transition", "from", from.String(), "to", to.String(), "trigger", string(t))
	})
	return c
}

// SetLogger configures structured logging for the run.
func (c *Controller) SetLogger(l *logging.Logger) {
	if l == nil {
		l = logging.NopLogger()
	}
	c.logger = l.WithRun(c.runID).WithComponent("controller")
	c.watcher.SetLogger(c.logger)
}

// SetProgressCallback configures an optional callback invoked before each step.
func (c *Controller) SetProgressCallback(cb ProgressCallback) {
	c.progress = cb
}

// SetOutputCallback configures an optional callback receiving server output.
func (c *Controller) SetOutputCallback(cb OutputCallback) {
	c.output = cb
}

// RunID returns the unique ID of this controller's run.
func (c *Controller) RunID() string { return c.runID }

// Queue returns the step queue. Steps pushed before the queue drains are executed.
func (c *Controller) Queue() *step.Queue { return c.queue }

// Watcher returns the output watcher the server's lines are emitted on.
func (c *Controller) Watcher() *watcher.Watcher { return c.watcher }

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.sm.MustState().(State)
}

// Launch runs the server through its whole lifecycle and returns once it has
// reached [StateStopped] or [StateFailed].
//
// The returned error is nil only for a clean run. Otherwise it is one of the
// typed errors in the errors package (or wraps ctx.Err() if ctx was
// canceled, in which case the server is killed). The Result is always
// non-nil except when the controller was already launched.
func (c *Controller) Launch(ctx context.Context) (*Result, error) {
	if err := c.sm.Fire(triggerLaunch); err != nil {
		return nil, errors.ErrAlreadyLaunched
	}

	res := &Result{
		RunID:     c.runID,
		ExitCode:  -1,
		StartedAt: time.Now(),
	}

	c.logger.Info("launching server",
		"command", c.opts.Command.String(),
		"dir", c.opts.Command.Dir,
		"steps", c.queue.Len())

	proc, err := c.spawner.Spawn(ctx, c.opts.Command)
	if err != nil {
		var spawnErr *errors.ProcessSpawnError
		if !errors.As(err, &spawnErr) {
			err = &errors.ProcessSpawnError{Executable: c.opts.Command.Path, Err: err}
		}
		c.logger.Error("failed to spawn server", "error", err.Error())
		c.fire(triggerFail)
		return c.complete(res, err)
	}

	r := newRun(c, proc, res)
	return c.complete(res, r.loop(ctx))
}

func (c *Controller) complete(res *Result, err error) (*Result, error) {
	res.State = c.State()
	res.Duration = time.Since(res.StartedAt)
	if err != nil {
		c.logger.Error("run failed", "state", res.State.String(), "exit_code", res.ExitCode, "error", err.Error())
	} else {
		c.logger.Info("run completed", "exit_code", res.ExitCode, "duration", res.Duration.String())
	}
	return res, err
}

// fire applies a trigger, logging (not returning) rejected transitions.
func (c *Controller) fire(t trigger) {
	if err := c.sm.Fire(t); err != nil {
		c.logger.Debug("transition rejected", "trigger", string(t), "state", c.State().String(), "error", err.Error())
	}
}

type drainOutcome struct {
	results []StepResult
	err     error
}

// drain executes queued steps in order until the queue is empty or a step
// fails. It runs on its own goroutine; ctx is canceled when the process
// exits or the run is aborted.
func (c *Controller) drain(ctx context.Context, p step.Process) drainOutcome {
	var out drainOutcome

	for i := 0; ; i++ {
		s, ok := c.queue.PopFront()
		if !ok {
			return out
		}

		if c.progress != nil {
			c.progress(i+1, i+1+c.queue.Len(), s)
		}
		c.logger.Info("executing step", "index", i+1, "step", s.String())

		started := time.Now()
		err := s.Execute(ctx, p)
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %v", errors.ErrProcessGone, err)
		}
		out.results = append(out.results, StepResult{
			Index:    i,
			Kind:     s.Kind(),
			Step:     s.String(),
			Duration: time.Since(started),
			Err:      err,
		})
		if err != nil {
			out.err = &errors.StepFailure{Index: i, Step: s.String(), Err: err}
			return out
		}

		if err := sleep(ctx, c.opts.DelayBetweenSteps); err != nil {
			pending := c.queue.Pending()
			if len(pending) == 0 {
				return out
			}
			out.err = &errors.StepFailure{Index: i + 1, Step: pending[0].String(), Err: errors.ErrProcessGone}
			return out
		}
	}
}

// processView is the capability handed to steps: write a line, observe output.
type processView struct {
	proc    process.Process
	watcher *watcher.Watcher
}

func (v processView) WriteLine(text string) error { return v.proc.WriteLine(text) }

func (v processView) AddListener(l watcher.Listener) watcher.Handle {
	return v.watcher.AddListener(l)
}

func (v processView) RemoveListener(h watcher.Handle) bool {
	return v.watcher.RemoveListener(h)
}

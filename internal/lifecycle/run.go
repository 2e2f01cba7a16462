package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"serverharness/internal/errors"
	"serverharness/internal/process"
)

// run is the state of one Launch. All fields are owned by the loop goroutine
// except where noted.
type run struct {
	c    *Controller
	proc process.Process
	res  *Result

	ready    bool
	errored  bool
	timedOut bool
	drained  bool
	stepErr  error

	startup    deadline
	beginSteps deadline
	stopWait   deadline

	// draining is true while the drain goroutine runs; stepsDone receives
	// its outcome exactly once.
	draining    bool
	stepsDone   chan drainOutcome
	cancelSteps context.CancelFunc
}

func newRun(c *Controller, proc process.Process, res *Result) *run {
	return &run{c: c, proc: proc, res: res}
}

func (r *run) loop(ctx context.Context) error {
	opts := r.c.opts

	r.c.watcher.AddListener(r.detectMarkers)
	// Runs after finish has collected the drain goroutine, so no step is
	// still listening. Nothing registered on the watcher outlives the run.
	defer r.c.watcher.Clear()

	if opts.StartupTimeout > 0 {
		r.startup.arm(opts.StartupTimeout)
	}
	defer r.stopTimers()

	r.c.logger.Info("server started", "pid", r.proc.Pid(), "startup_timeout", opts.StartupTimeout.String())

	lines := r.proc.Lines()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			r.handleLine(line)

		case <-r.startup.C():
			r.startup.fired()
			r.onStartupTimeout()

		case <-r.beginSteps.C():
			r.beginSteps.fired()
			r.startSteps(ctx)

		case out := <-r.stepsDone:
			r.onStepsDone(out)

		case <-r.stopWait.C():
			r.stopWait.fired()
			r.c.logger.Warn("server still running after stop command, killing",
				"stop_timeout", opts.StopTimeout.String())
			r.kill()

		case <-r.proc.Done():
			if lines != nil {
				for line := range lines {
					r.handleLine(line)
				}
			}
			return r.finish(nil)

		case <-ctx.Done():
			r.c.logger.Warn("run canceled, killing server", "error", ctx.Err().Error())
			r.kill()
			r.waitExit(lines)
			return r.finish(fmt.Errorf("run canceled: %w", ctx.Err()))
		}
	}
}

func (r *run) handleLine(line process.Line) {
	r.c.fire(triggerOutput)
	r.c.logger.Debug("server output", "stream", string(line.Stream), "line", line.Text)
	if r.c.output != nil {
		r.c.output(line)
	}
	r.c.watcher.Emit(line.Text)
}

// detectMarkers is the controller's own listener. It is registered before
// any step runs, so it sees every chunk before a step's listener does.
func (r *run) detectMarkers(chunk string) bool {
	opts := r.c.opts
	matched := false

	if strings.Contains(chunk, opts.FatalMarker) {
		if !r.errored {
			r.c.logger.Warn("fatal transition reported by server", "line", chunk)
		}
		r.errored = true
		matched = true
	}

	if !r.ready && !r.timedOut && strings.Contains(chunk, opts.ReadyMarker) {
		r.ready = true
		r.startup.stop()
		r.res.ReadyAfter = time.Since(r.res.StartedAt)
		r.c.logger.Info("server ready", "after", r.res.ReadyAfter.String())
		r.c.fire(triggerReady)
		r.beginSteps.arm(opts.DelayBeforeSteps)
		matched = true
	}

	return matched
}

func (r *run) onStartupTimeout() {
	if r.ready {
		return
	}
	r.timedOut = true
	r.c.logger.Error("server did not become ready in time, killing",
		"startup_timeout", r.c.opts.StartupTimeout.String())
	r.c.fire(triggerStartupTimeout)
	r.kill()
}

func (r *run) startSteps(ctx context.Context) {
	r.c.fire(triggerBeginSteps)

	stepCtx, cancel := context.WithCancel(ctx)
	r.cancelSteps = cancel
	r.stepsDone = make(chan drainOutcome, 1)
	r.draining = true

	view := processView{proc: r.proc, watcher: r.c.watcher}
	go func() {
		r.stepsDone <- r.c.drain(stepCtx, view)
	}()
}

func (r *run) onStepsDone(out drainOutcome) {
	r.collect(out)
	r.sendStop()
}

// collect records the drain goroutine's outcome and advances the machine.
func (r *run) collect(out drainOutcome) {
	r.draining = false
	r.cancelSteps()
	r.res.Steps = append(r.res.Steps, out.results...)

	if out.err != nil {
		r.stepErr = out.err
		r.c.logger.Error("step failed, skipping remaining steps",
			"error", out.err.Error(), "skipped", r.c.queue.Len())
		r.c.fire(triggerStepFailed)
		return
	}
	r.drained = true
	r.c.logger.Info("all steps completed", "count", len(out.results))
	r.c.fire(triggerStepsDrained)
}

func (r *run) sendStop() {
	if err := r.proc.WriteLine(r.c.opts.StopCommand); err != nil {
		r.c.logger.Warn("failed to send stop command", "error", err.Error())
	} else {
		r.c.logger.Info("stop command sent")
	}
	if r.c.opts.StopTimeout > 0 {
		r.stopWait.arm(r.c.opts.StopTimeout)
	}
}

func (r *run) kill() {
	if err := r.proc.Kill(); err != nil {
		r.c.logger.Warn("failed to kill server", "pid", r.proc.Pid(), "error", err.Error())
	}
}

// waitExit discards output until the process is gone.
func (r *run) waitExit(lines <-chan process.Line) {
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				lines = nil
			}
		case <-r.proc.Done():
			return
		}
	}
}

func (r *run) stopTimers() {
	r.startup.stop()
	r.beginSteps.stop()
	r.stopWait.stop()
}

// finish settles the run once the process has exited. cause overrides the
// computed outcome.
func (r *run) finish(cause error) error {
	r.stopTimers()

	if r.draining {
		r.cancelSteps()
		r.collect(<-r.stepsDone)
	}

	r.res.ExitCode = r.proc.ExitCode()
	r.res.Ready = r.ready
	r.res.FatalTransition = r.errored

	err := cause
	if err == nil {
		err = r.outcome()
	}
	if err != nil {
		r.c.fire(triggerFail)
	} else {
		r.c.fire(triggerExitClean)
	}
	return err
}

func (r *run) outcome() error {
	code := r.proc.ExitCode()

	switch {
	case r.timedOut && r.errored:
		// The server reported a fatal transition and then hung; the crash
		// is the cause, the deadline only ended the wait.
		return &errors.StartupCrashError{ExitCode: code, FatalTransition: true}
	case r.timedOut:
		return &errors.StartupTimeoutError{Timeout: r.c.opts.StartupTimeout}
	case !r.ready:
		return &errors.StartupCrashError{ExitCode: code, FatalTransition: r.errored}
	case r.stepErr != nil:
		return r.stepErr
	}

	if !r.drained {
		if pending := r.c.queue.Pending(); len(pending) > 0 {
			return &errors.StepFailure{Index: len(r.res.Steps), Step: pending[0].String(), Err: errors.ErrProcessGone}
		}
	}

	if code != 0 || r.errored {
		return &errors.AbnormalExitError{ExitCode: code, FatalTransition: r.errored}
	}
	return nil
}

package lifecycle

import (
	"context"

	"github.com/qmuntal/stateless"
)

// State is a controller lifecycle state.
type State int

const (
	StateNotStarted State = iota
	StateLaunching
	StateAwaitingReady
	StateReady
	StateRunningSteps

	// StateStopping is entered once the step queue is finished, whether it
	// drained or a step failed: the stop command is still sent after a
	// failure. A failed step moves the machine on to StateFailed when the
	// process exits.
	StateStopping

	StateStopped
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateLaunching:
		return "Launching"
	case StateAwaitingReady:
		return "AwaitingReady"
	case StateReady:
		return "Ready"
	case StateRunningSteps:
		return "RunningSteps"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is Stopped or Failed.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

type trigger string

const (
	triggerLaunch         trigger = "launch"
	triggerOutput         trigger = "output"
	triggerReady          trigger = "ready"
	triggerStartupTimeout trigger = "startup-timeout"
	triggerBeginSteps     trigger = "begin-steps"
	triggerStepsDrained   trigger = "steps-drained"
	triggerStepFailed     trigger = "step-failed"
	triggerExitClean      trigger = "exit-clean"
	triggerFail           trigger = "fail"
)

// newStateMachine builds the controller's transition table.
//
// Output arriving in any state past Launching is ignored by the machine; the
// readiness and error markers are tracked by the controller itself.
func newStateMachine(onTransition func(from, to State, t trigger)) *stateless.StateMachine {
	sm := stateless.NewStateMachine(StateNotStarted)

	sm.Configure(StateNotStarted).
		Permit(triggerLaunch, StateLaunching)

	sm.Configure(StateLaunching).
		Permit(triggerOutput, StateAwaitingReady).
		Permit(triggerStartupTimeout, StateFailed).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateAwaitingReady).
		Ignore(triggerOutput).
		Permit(triggerReady, StateReady).
		Permit(triggerStartupTimeout, StateFailed).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateReady).
		Ignore(triggerOutput).
		Permit(triggerBeginSteps, StateRunningSteps).
		Permit(triggerExitClean, StateStopped).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateRunningSteps).
		Ignore(triggerOutput).
		Permit(triggerStepsDrained, StateStopping).
		Permit(triggerStepFailed, StateStopping).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateStopping).
		Ignore(triggerOutput).
		Permit(triggerExitClean, StateStopped).
		Permit(triggerFail, StateFailed)

	sm.Configure(StateStopped).
		Ignore(triggerOutput)

	sm.Configure(StateFailed).
		Ignore(triggerOutput).
		Ignore(triggerFail)

	if onTransition != nil {
		sm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
			if t.Source == t.Destination {
				return
			}
			onTransition(t.Source.(State), t.Destination.(State), t.Trigger.(trigger))
		})
	}

	return sm
}

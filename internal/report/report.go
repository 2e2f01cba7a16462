// Package report persists the outcome of a harness run as YAML.
//
// A report is written after every run, successful or not, so CI jobs can
// archive it and the report command can print it later. The file lives at
// <server dir>/serverharness-report.yaml unless overridden (see
// [ResolvePath]).
package report

import (
	"time"

	"serverharness/internal/errors"
	"serverharness/internal/lifecycle"
	"serverharness/internal/step"
)

// StepStatus is the outcome of one scripted step.
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// IsValid reports whether s is a known step status.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPassed, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Report is the persisted summary of one run.
type Report struct {
	RunID            string    `yaml:"run_id"`
	State            string    `yaml:"state"`
	Success          bool      `yaml:"success"`
	ExitCode         int       `yaml:"exit_code"`
	HarnessExitCode  int       `yaml:"harness_exit_code"`
	Error            string    `yaml:"error,omitempty"`
	Ready            bool      `yaml:"ready"`
	FatalTransition  bool      `yaml:"fatal_transition"`
	MinecraftVersion string    `yaml:"minecraft_version,omitempty"`
	ForgeVersion     string    `yaml:"forge_version,omitempty"`
	ServerDir        string    `yaml:"server_dir,omitempty"`
	StartedAt        time.Time `yaml:"started_at"`
	ReadyAfterMS     int64     `yaml:"ready_after_ms"`
	DurationMS       int64     `yaml:"duration_ms"`
	Steps            []Step    `yaml:"steps"`
}

// Step is the persisted outcome of one step.
type Step struct {
	Index      int        `yaml:"index"`
	Kind       string     `yaml:"kind"`
	Step       string     `yaml:"step"`
	Status     StepStatus `yaml:"status"`
	DurationMS int64      `yaml:"duration_ms"`
	Error      string     `yaml:"error,omitempty"`
}

// New builds a report from a finished run. pending lists the steps still
// queued when the run ended; they are recorded as skipped.
func New(res *lifecycle.Result, runErr error, pending []step.Step) *Report {
	r := &Report{
		Success:         runErr == nil,
		HarnessExitCode: errors.ExitCode(runErr),
		ExitCode:        -1,
		State:           lifecycle.StateFailed.String(),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}

	if res != nil {
		r.RunID = res.RunID
		r.State = res.State.String()
		r.ExitCode = res.ExitCode
		r.Ready = res.Ready
		r.FatalTransition = res.FatalTransition
		r.StartedAt = res.StartedAt
		r.ReadyAfterMS = res.ReadyAfter.Milliseconds()
		r.DurationMS = res.Duration.Milliseconds()

		for _, sr := range res.Steps {
			s := Step{
				Index:      sr.Index,
				Kind:       sr.Kind.String(),
				Step:       sr.Step,
				Status:     StepPassed,
				DurationMS: sr.Duration.Milliseconds(),
			}
			if sr.Err != nil {
				s.Status = StepFailed
				s.Error = sr.Err.Error()
			}
			r.Steps = append(r.Steps, s)
		}
	}

	next := len(r.Steps)
	for i, s := range pending {
		r.Steps = append(r.Steps, Step{
			Index:  next + i,
			Kind:   s.Kind().String(),
			Step:   s.String(),
			Status: StepSkipped,
		})
	}

	return r
}

// Count returns the number of steps with the given status.
func (r *Report) Count(status StepStatus) int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

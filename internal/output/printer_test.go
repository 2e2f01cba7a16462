package output

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"serverharness/internal/installer"
	"serverharness/internal/process"
	"serverharness/internal/report"
	"serverharness/internal/step"
)

func TestNewPrinter(t *testing.T) {
	printer := NewPrinter()
	assert.NotNil(t, printer)
}

func TestPrinter_RunHeader(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinterWithWriter(buf)

	p.RunHeader("1.20.1", "47.2.0", "/srv/mc", []step.Step{step.NewCommand("forge tps")})

	out := buf.String()
	assert.Contains(t, out, "Minecraft 1.20.1 | Forge 47.2.0")
	assert.Contains(t, out, "/srv/mc")
	assert.Contains(t, out, "Steps: 1")
}

func TestPrinter_StepStartAndServerLine(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinterWithWriter(buf)

	p.StepStart(2, 3, step.NewCommand("forge tps"))
	p.ServerLine(process.Line{Stream: process.StreamStdout, Text: "Overall: 20.000 TPS"})
	p.ServerLine(process.Line{Stream: process.StreamStderr, Text: "warning"})

	out := buf.String()
	assert.Contains(t, out, `[2/3] command "forge tps"`)
	assert.Contains(t, out, "  Overall: 20.000 TPS")
	assert.Contains(t, out, "[stderr]")
	assert.Contains(t, out, "warning")
}

func TestPrinter_InstallResult(t *testing.T) {
	tests := []struct {
		name     string
		res      installer.Result
		contains []string
	}{
		{
			name:     "already installed",
			res:      installer.Result{ServerJar: "/srv/mc/forge.jar", AlreadyInstalled: true},
			contains: []string{"Already installed", "/srv/mc/forge.jar"},
		},
		{
			name:     "fresh install",
			res:      installer.Result{ServerJar: "/srv/mc/forge.jar", InstallerSize: 5_000_000, Duration: 3 * time.Second},
			contains: []string{"Installed", "5.0 MB", "3s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewPrinterWithWriter(buf).InstallResult(tt.res)
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
		})
	}
}

func TestPrinter_StepList(t *testing.T) {
	buf := &bytes.Buffer{}
	p := NewPrinterWithWriter(buf)

	p.StepList(nil)
	assert.Contains(t, buf.String(), "No steps configured")

	buf.Reset()
	p.StepList([]step.Step{step.NewCommand("forge tps"), step.NewAwait("Overall", 5*time.Second)})
	out := buf.String()
	assert.Contains(t, out, "forge tps")
	assert.Contains(t, out, "Overall")
	assert.Contains(t, out, "await")
}

func TestPrinter_Summary(t *testing.T) {
	tests := []struct {
		name        string
		rep         *report.Report
		contains    []string
		notContains []string
	}{
		{
			name: "passed run",
			rep: &report.Report{
				RunID: "run-1", State: "Stopped", Success: true, Ready: true,
				ReadyAfterMS: 12300, DurationMS: 15000,
				Steps: []report.Step{
					{Index: 0, Kind: "command", Step: `command "forge tps"`, Status: report.StepPassed, DurationMS: 100},
				},
			},
			contains:    []string{"RUN PASSED", "run-1", "Ready after: 12.3s", "forge tps", "1 passed, 0 failed, 0 skipped"},
			notContains: []string{"RUN FAILED", "Error:"},
		},
		{
			name: "failed run with skipped steps",
			rep: &report.Report{
				RunID: "run-2", State: "Failed", ExitCode: 0, Error: "step 0 failed",
				Steps: []report.Step{
					{Index: 0, Kind: "await", Step: `await "Overall"`, Status: report.StepFailed, DurationMS: 5000},
					{Index: 1, Kind: "command", Step: `command "stop"`, Status: report.StepSkipped},
				},
			},
			contains: []string{"RUN FAILED", "Error: step 0 failed", "0 passed, 1 failed, 1 skipped"},
		},
		{
			name:        "no steps",
			rep:         &report.Report{RunID: "run-3", State: "Stopped", Success: true},
			contains:    []string{"RUN PASSED"},
			notContains: []string{"TOTAL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewPrinterWithWriter(buf).Summary(tt.rep)

			out := buf.String()
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.notContains {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestPrinter_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	NewPrinterWithWriter(buf).Error(fmt.Errorf("boom"))
	assert.Contains(t, buf.String(), "boom")
}

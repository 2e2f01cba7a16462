package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverharness/internal/config"
	"serverharness/internal/errors"
	"serverharness/internal/installer"
	"serverharness/internal/lifecycle"
	"serverharness/internal/logging"
	"serverharness/internal/report"
	"serverharness/internal/step"
)

func stoppedResult() *lifecycle.Result {
	return &lifecycle.Result{
		RunID:    "run-123",
		State:    lifecycle.StateStopped,
		ExitCode: 0,
		Ready:    true,
		Steps: []lifecycle.StepResult{
			{Index: 0, Kind: step.KindCommand, Step: `command "forge tps"`, Duration: 10 * time.Millisecond},
		},
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:  15 * time.Second,
	}
}

func readReport(t *testing.T, fs afero.Fs, path string) *report.Report {
	t.Helper()
	rep, err := report.NewReader(fs, path).Read()
	require.NoError(t, err)
	return rep
}

func TestRunCommand_Success(t *testing.T) {
	t.Setenv(report.EnvReportPath, "")
	app := newTestApp(&MockRunner{
		Result: stoppedResult(),
		Steps:  []step.Step{step.NewCommand("forge tps")},
	})

	result := RunWithConfig(context.Background(), app.App, []string{"run"})

	assert.Equal(t, 0, result.ExitCode)
	assert.NoError(t, result.Err)
	assert.Equal(t, []string{"run"}, app.Runner.Calls)
	assert.Contains(t, app.Out.String(), "Minecraft 1.20.1 | Forge 47.2.0")
	assert.Contains(t, app.Out.String(), "RUN PASSED")

	rep := readReport(t, app.Fs, "/srv/mc/serverharness-report.yaml")
	assert.True(t, rep.Success)
	assert.Equal(t, "run-123", rep.RunID)
	assert.Equal(t, "1.20.1", rep.MinecraftVersion)
	assert.Equal(t, "/srv/mc", rep.ServerDir)
	require.Len(t, rep.Steps, 1)
	assert.Equal(t, report.StepPassed, rep.Steps[0].Status)
}

func TestRunCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		runner   *MockRunner
		wantCode int
		wantOut  string
	}{
		{
			name: "step failure",
			runner: &MockRunner{
				Result: func() *lifecycle.Result {
					r := stoppedResult()
					r.State = lifecycle.StateFailed
					r.Steps[0].Err = fmt.Errorf("await timed out")
					return r
				}(),
				Err:       &errors.StepFailure{Index: 0, Step: "await", Err: fmt.Errorf("await timed out")},
				Remaining: []step.Step{step.NewCommand("say skipped")},
			},
			wantCode: errors.ExitStepFailure,
			wantOut:  "0 passed, 1 failed, 1 skipped",
		},
		{
			name:     "configuration error before launch",
			runner:   &MockRunner{Err: errors.NewConfigurationError("eula", "the Minecraft EULA must be accepted")},
			wantCode: errors.ExitConfiguration,
			wantOut:  "RUN FAILED",
		},
		{
			name: "startup timeout",
			runner: &MockRunner{
				Result: &lifecycle.Result{RunID: "r", State: lifecycle.StateFailed, ExitCode: -1},
				Err:    &errors.StartupTimeoutError{Timeout: time.Minute},
			},
			wantCode: errors.ExitStartupTimeout,
			wantOut:  "did not become ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(report.EnvReportPath, "")
			app := newTestApp(tt.runner)

			result := RunWithConfig(context.Background(), app.App, []string{"run"})

			assert.Equal(t, tt.wantCode, result.ExitCode)
			code, ok := IsExitError(result.Err)
			assert.True(t, ok, "error should be an ExitError")
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, app.Out.String(), tt.wantOut)

			rep := readReport(t, app.Fs, "/srv/mc/serverharness-report.yaml")
			assert.False(t, rep.Success)
			assert.Equal(t, tt.wantCode, rep.HarnessExitCode)
		})
	}
}

func TestRunCommand_Flags(t *testing.T) {
	t.Setenv(report.EnvReportPath, "")
	app := newTestApp(&MockRunner{Result: stoppedResult()})

	result := RunWithConfig(context.Background(), app.App,
		[]string{"run", "--accept-eula", "--echo", "--report", "/out/report.yaml"})

	require.Equal(t, 0, result.ExitCode)
	require.NotNil(t, app.Seen)
	assert.True(t, app.Seen.Server.EulaAccepted)
	assert.True(t, app.Seen.Output.EchoServer)

	exists, _ := afero.Exists(app.Fs, "/out/report.yaml")
	assert.True(t, exists)
}

func TestRunCommand_NoReport(t *testing.T) {
	t.Setenv(report.EnvReportPath, "")
	app := newTestApp(&MockRunner{Result: stoppedResult()})

	result := RunWithConfig(context.Background(), app.App, []string{"run", "--no-report"})

	require.Equal(t, 0, result.ExitCode)
	exists, _ := afero.Exists(app.Fs, "/srv/mc/serverharness-report.yaml")
	assert.False(t, exists)
}

func TestRunCommand_FactoryError(t *testing.T) {
	app := newTestApp(&MockRunner{})
	app.NewRunner = func(*config.Config) (Runner, error) {
		return nil, errors.NewConfigurationError("steps", "bad step")
	}

	result := RunWithConfig(context.Background(), app.App, []string{"run"})

	assert.Equal(t, errors.ExitConfiguration, result.ExitCode)
	assert.Contains(t, app.Out.String(), "bad step")
}

func TestRunCommand_ClosesLogFileOnFailure(t *testing.T) {
	t.Setenv(report.EnvReportPath, "")
	app := newTestApp(&MockRunner{
		Result: &lifecycle.Result{RunID: "r", State: lifecycle.StateFailed, ExitCode: 1, Ready: true},
		Err:    &errors.AbnormalExitError{ExitCode: 1},
	})
	app.Logger = nil
	app.Config.Logging.Dir = t.TempDir()

	result := RunWithConfig(context.Background(), app.App, []string{"run"})

	assert.Equal(t, errors.ExitAbnormal, result.ExitCode)
	require.NotNil(t, app.Logger, "setup created a file logger")
	assert.Nil(t, app.closeLog, "log file closed even though the command failed")
	assert.FileExists(t, filepath.Join(app.Config.Logging.Dir, logging.LogFileName))
}

func TestInstallCommand(t *testing.T) {
	tests := []struct {
		name     string
		runner   *MockRunner
		wantCode int
		wantOut  string
	}{
		{
			name:     "installs",
			runner:   &MockRunner{InstallResult: installer.Result{ServerJar: "/srv/mc/forge-1.20.1-47.2.0.jar", InstallerSize: 1024}},
			wantCode: 0,
			wantOut:  "1.0 kB",
		},
		{
			name:     "already installed",
			runner:   &MockRunner{InstallResult: installer.Result{ServerJar: "/srv/mc/forge.jar", AlreadyInstalled: true}},
			wantCode: 0,
			wantOut:  "Already installed",
		},
		{
			name:     "missing version",
			runner:   &MockRunner{InstallErr: errors.NewConfigurationError("forge_version", "forge version is not set")},
			wantCode: errors.ExitConfiguration,
			wantOut:  "forge version is not set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(tt.runner)

			result := RunWithConfig(context.Background(), app.App, []string{"install"})

			assert.Equal(t, tt.wantCode, result.ExitCode)
			assert.Equal(t, []string{"install"}, tt.runner.Calls)
			assert.Contains(t, app.Out.String(), tt.wantOut)
		})
	}
}

func TestStepsCommand(t *testing.T) {
	app := newTestApp(&MockRunner{})
	app.Config.Steps = []config.StepConfig{
		{Command: "forge tps"},
		{Await: "Overall", TimeoutMS: 5000},
	}

	result := RunWithConfig(context.Background(), app.App, []string{"steps"})

	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, app.Out.String(), "forge tps")
	assert.Contains(t, app.Out.String(), "Overall")
	assert.Empty(t, app.Runner.Calls, "steps does not run anything")
}

func TestStepsCommand_Invalid(t *testing.T) {
	app := newTestApp(&MockRunner{})
	app.Config.Steps = []config.StepConfig{{Command: "say hi", Await: "hi"}}

	result := RunWithConfig(context.Background(), app.App, []string{"steps"})

	assert.Equal(t, errors.ExitConfiguration, result.ExitCode)
}

func TestReportCommand(t *testing.T) {
	t.Setenv(report.EnvReportPath, "")

	tests := []struct {
		name     string
		rep      *report.Report
		path     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{
			name:     "default location",
			rep:      &report.Report{RunID: "run-ok", State: "Stopped", Success: true},
			path:     "/srv/mc/serverharness-report.yaml",
			args:     []string{"report"},
			wantCode: 0,
			wantOut:  "RUN PASSED",
		},
		{
			name: "explicit path with failed run",
			rep: &report.Report{
				RunID: "run-bad", State: "Failed", HarnessExitCode: errors.ExitAbnormal,
				Error: "server exited with code 1",
			},
			path:     "/tmp/r.yaml",
			args:     []string{"report", "/tmp/r.yaml"},
			wantCode: errors.ExitAbnormal,
			wantOut:  "server exited with code 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&MockRunner{})
			require.NoError(t, report.NewWriter(app.Fs, tt.path).Write(tt.rep))

			result := RunWithConfig(context.Background(), app.App, tt.args)

			assert.Equal(t, tt.wantCode, result.ExitCode)
			assert.Contains(t, app.Out.String(), tt.wantOut)
		})
	}
}

func TestReportCommand_Missing(t *testing.T) {
	t.Setenv(report.EnvReportPath, "")
	app := newTestApp(&MockRunner{})

	result := RunWithConfig(context.Background(), app.App, []string{"report"})

	assert.Equal(t, 1, result.ExitCode)
}

func TestExitError(t *testing.T) {
	err := NewExitError(6)
	assert.Equal(t, "exit status 6", err.Error())

	code, ok := IsExitError(err)
	assert.True(t, ok)
	assert.Equal(t, 6, code)

	_, ok = IsExitError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverharness/internal/errors"
	"serverharness/internal/lifecycle"
	"serverharness/internal/step"
)

func TestResolvePath(t *testing.T) {
	t.Run("default under server dir", func(t *testing.T) {
		t.Setenv(EnvReportPath, "")
		assert.Equal(t, filepath.Join("/srv/mc", DefaultFileName), ResolvePath("/srv/mc", ""))
	})

	t.Run("explicit path", func(t *testing.T) {
		t.Setenv(EnvReportPath, "")
		assert.Equal(t, "/tmp/out.yaml", ResolvePath("/srv/mc", "/tmp/out.yaml"))
	})

	t.Run("environment wins", func(t *testing.T) {
		t.Setenv(EnvReportPath, "/ci/report.yaml")
		assert.Equal(t, "/ci/report.yaml", ResolvePath("/srv/mc", "/tmp/out.yaml"))
	})
}

func TestNew_CleanRun(t *testing.T) {
	res := &lifecycle.Result{
		RunID:      "run-1",
		State:      lifecycle.StateStopped,
		ExitCode:   0,
		Ready:      true,
		ReadyAfter: 1500 * time.Millisecond,
		Duration:   3 * time.Second,
		Steps: []lifecycle.StepResult{
			{Index: 0, Kind: step.KindCommand, Step: `command "forge tps"`, Duration: 2 * time.Millisecond},
		},
	}

	rep := New(res, nil, nil)

	assert.True(t, rep.Success)
	assert.Equal(t, "Stopped", rep.State)
	assert.Equal(t, errors.ExitOK, rep.HarnessExitCode)
	assert.Equal(t, int64(1500), rep.ReadyAfterMS)
	assert.Equal(t, int64(3000), rep.DurationMS)
	require.Len(t, rep.Steps, 1)
	assert.Equal(t, StepPassed, rep.Steps[0].Status)
	assert.Equal(t, "command", rep.Steps[0].Kind)
	assert.Empty(t, rep.Error)
}

func TestNew_StepFailureWithSkipped(t *testing.T) {
	awaitErr := &errors.AwaitTimeoutError{Pattern: "Saved the game", Timeout: 100 * time.Millisecond}
	runErr := &errors.StepFailure{Index: 0, Step: `await "Saved the game"`, Err: awaitErr}
	res := &lifecycle.Result{
		State:    lifecycle.StateFailed,
		ExitCode: 0,
		Ready:    true,
		Steps: []lifecycle.StepResult{
			{Index: 0, Kind: step.KindAwait, Step: `await "Saved the game"`, Err: awaitErr},
		},
	}

	rep := New(res, runErr, []step.Step{step.NewCommand("list"), step.NewCommand("stop")})

	assert.False(t, rep.Success)
	assert.Equal(t, errors.ExitStepFailure, rep.HarnessExitCode)
	assert.Contains(t, rep.Error, "step 1")
	require.Len(t, rep.Steps, 3)
	assert.Equal(t, StepFailed, rep.Steps[0].Status)
	assert.Equal(t, StepSkipped, rep.Steps[1].Status)
	assert.Equal(t, 1, rep.Steps[1].Index)
	assert.Equal(t, 2, rep.Steps[2].Index)
	assert.Equal(t, 1, rep.Count(StepFailed))
	assert.Equal(t, 2, rep.Count(StepSkipped))
}

func TestNew_NoResult(t *testing.T) {
	rep := New(nil, &errors.ConfigurationError{Field: "eula", Reason: "must be accepted"}, nil)

	assert.False(t, rep.Success)
	assert.Equal(t, "Failed", rep.State)
	assert.Equal(t, -1, rep.ExitCode)
	assert.Equal(t, errors.ExitConfiguration, rep.HarnessExitCode)
}

func TestWriterReader_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/srv/mc/reports/serverharness-report.yaml"

	rep := &Report{
		RunID:            "abc",
		State:            "Stopped",
		Success:          true,
		MinecraftVersion: "1.20.1",
		ForgeVersion:     "47.2.0",
		Steps:            []Step{{Index: 0, Kind: "command", Step: `command "list"`, Status: StepPassed}},
	}

	require.NoError(t, NewWriter(fs, path).Write(rep))

	exists, err := afero.Exists(fs, path+".tmp")
	require.NoError(t, err)
	assert.False(t, exists, "temp file is renamed away")

	got, err := NewReader(fs, path).Read()
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, got.RunID)
	assert.Equal(t, rep.MinecraftVersion, got.MinecraftVersion)
	assert.Equal(t, rep.Steps, got.Steps)
}

func TestReader_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := NewReader(fs, "/missing.yaml").Read()
	assert.ErrorContains(t, err, "failed to read run report")

	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("steps: {"), 0644))
	_, err = NewReader(fs, "/bad.yaml").Read()
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/status.yaml", []byte("steps:\n  - index: 0\n    status: exploded\n"), 0644))
	_, err = NewReader(fs, "/status.yaml").Read()
	assert.ErrorContains(t, err, "invalid status")
}

func TestStepStatus_IsValid(t *testing.T) {
	assert.True(t, StepPassed.IsValid())
	assert.True(t, StepSkipped.IsValid())
	assert.False(t, StepStatus("unknown").IsValid())
}

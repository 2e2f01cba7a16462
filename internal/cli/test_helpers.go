package cli

import (
	"bytes"
	"context"

	"github.com/spf13/afero"

	"serverharness/internal/config"
	"serverharness/internal/installer"
	"serverharness/internal/lifecycle"
	"serverharness/internal/logging"
	"serverharness/internal/output"
	"serverharness/internal/step"
)

// MockRunner is a Runner with canned outcomes.
type MockRunner struct {
	Result        *lifecycle.Result
	Err           error
	InstallResult installer.Result
	InstallErr    error

	// Steps are pending before Run; Remaining are pending after it.
	Steps     []step.Step
	Remaining []step.Step

	ran bool

	// Calls records "run" and "install" in order.
	Calls []string
}

func (m *MockRunner) Run(ctx context.Context) (*lifecycle.Result, error) {
	m.Calls = append(m.Calls, "run")
	m.ran = true
	return m.Result, m.Err
}

func (m *MockRunner) Install(ctx context.Context) (installer.Result, error) {
	m.Calls = append(m.Calls, "install")
	return m.InstallResult, m.InstallErr
}

func (m *MockRunner) Pending() []step.Step {
	if m.ran {
		return m.Remaining
	}
	return m.Steps
}

// testApp builds an App around a MockRunner, an in-memory filesystem and a
// buffered printer. The factory records the config it was given.
type testApp struct {
	*App
	Runner *MockRunner
	Out    *bytes.Buffer
	Seen   *config.Config
}

func newTestApp(runner *MockRunner) *testApp {
	cfg := config.DefaultConfig()
	cfg.Server.Dir = "/srv/mc"
	cfg.Server.MinecraftVersion = "1.20.1"
	cfg.Server.ForgeVersion = "47.2.0"

	out := &bytes.Buffer{}
	ta := &testApp{Runner: runner, Out: out}
	ta.App = &App{
		Config:  cfg,
		Logger:  logging.NopLogger(),
		Printer: output.NewPrinterWithWriter(out),
		Fs:      afero.NewMemMapFs(),
	}
	ta.App.NewRunner = func(cfg *config.Config) (Runner, error) {
		ta.Seen = cfg
		return runner, nil
	}
	return ta
}

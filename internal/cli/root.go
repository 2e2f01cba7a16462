// Package cli implements the serverharness command-line interface.
//
// Commands:
//   - run: prepare the server directory, launch the server and run the steps
//   - install: install the Forge server without launching it
//   - steps: list the configured steps
//   - report: print a previously written run report
//
// Dependencies are gathered in an [App] so commands can be tested with fake
// runners and an in-memory filesystem.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"serverharness/internal/config"
	"serverharness/internal/installer"
	"serverharness/internal/lifecycle"
	"serverharness/internal/logging"
	"serverharness/internal/orchestrator"
	"serverharness/internal/output"
	"serverharness/internal/step"
)

// Runner runs one harness session. [orchestrator.Orchestrator] is the
// production implementation.
type Runner interface {
	Run(ctx context.Context) (*lifecycle.Result, error)
	Install(ctx context.Context) (installer.Result, error)
	Pending() []step.Step
}

// RunnerFactory builds a Runner from loaded configuration.
type RunnerFactory func(cfg *config.Config) (Runner, error)

// App holds the dependencies shared by all commands.
//
// Fields left nil are filled in before a command runs: Config is loaded with
// a [config.Loader], Logger is created from the logging section, and
// NewRunner builds an orchestrator.
type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Printer   *output.Printer
	Fs        afero.Fs
	NewRunner RunnerFactory

	configPath string
	serverDir  string
	logLevel   string
	logDir     string
	closeLog   func()
}

// NewApp creates an App with production dependencies.
func NewApp() *App {
	return &App{
		Printer: output.NewPrinter(),
		Fs:      afero.NewOsFs(),
	}
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "serverharness",
		Short: "Run scripted checks against a Minecraft Forge server",
		Long: `serverharness installs a Forge server, provisions mods and configs,
starts the server, waits for it to become ready, runs a scripted sequence of
console commands and output checks, then stops the server and reports the
outcome through its exit code and a YAML report.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "config file (default: serverharness.yaml)")
	flags.StringVar(&app.serverDir, "server-dir", "", "server directory")
	flags.StringVar(&app.logLevel, "log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	flags.StringVar(&app.logDir, "log-dir", "", "directory for the JSON log file (default: stderr)")

	rootCmd.AddCommand(
		newRunCommand(app),
		newInstallCommand(app),
		newStepsCommand(app),
		newReportCommand(app),
	)

	return rootCmd
}

// setup loads configuration and creates the logger unless they were injected.
func (a *App) setup() error {
	if a.Config == nil {
		cfg, err := a.loadConfig()
		if err != nil {
			return err
		}
		a.Config = cfg
	}

	if a.Logger == nil {
		logger, err := logging.NewLogger(a.Config.Logging.Dir, a.Config.Logging.Level)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		a.Logger = logger
		a.closeLog = func() { _ = logger.Close() }
	}

	if a.Printer == nil {
		a.Printer = output.NewPrinter()
	}
	if a.Fs == nil {
		a.Fs = afero.NewOsFs()
	}
	if a.NewRunner == nil {
		a.NewRunner = a.newOrchestrator
	}
	return nil
}

func (a *App) teardown() {
	if a.closeLog != nil {
		a.closeLog()
		a.closeLog = nil
	}
}

func (a *App) loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if a.serverDir != "" {
		loader.Set("server.dir", a.serverDir)
	}
	if a.logLevel != "" {
		loader.Set("logging.level", a.logLevel)
	}
	if a.logDir != "" {
		loader.Set("logging.dir", a.logDir)
	}

	if a.configPath != "" {
		return loader.LoadFromFile(a.configPath)
	}
	return loader.Load()
}

// newOrchestrator is the default RunnerFactory. It routes stage, step and
// server output events to the printer.
func (a *App) newOrchestrator(cfg *config.Config) (Runner, error) {
	o, err := orchestrator.FromConfig(cfg)
	if err != nil {
		return nil, err
	}

	o.SetLogger(a.Logger).
		SetStageCallback(func(s orchestrator.Stage) {
			a.Printer.Stage(string(s))
		}).
		SetProgressCallback(func(stepIndex, totalSteps int, s step.Step) {
			a.Printer.StepStart(stepIndex, totalSteps, s)
		})
	if cfg.Output.EchoServer {
		o.SetOutputCallback(a.Printer.ServerLine)
	}
	return o, nil
}

// ExecuteResult is the outcome of running the CLI.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// RunWithConfig runs the root command with args and converts the outcome to
// an exit code without exiting the process. The log file opened by setup is
// closed on every path.
func RunWithConfig(ctx context.Context, app *App, args []string) ExecuteResult {
	defer app.teardown()

	rootCmd := NewRootCommand(app)
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{ExitCode: 0}
}

// Execute runs the CLI with the process arguments and exits with the
// resulting code. SIGINT and SIGTERM cancel the run, which kills the server.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := RunWithConfig(ctx, NewApp(), os.Args[1:])
	if result.Err != nil {
		if _, ok := IsExitError(result.Err); !ok {
			fmt.Fprintln(os.Stderr, "Error:", result.Err)
		}
	}
	stop()
	os.Exit(result.ExitCode)
}

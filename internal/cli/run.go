package cli

import (
	"github.com/spf13/cobra"

	"serverharness/internal/errors"
	"serverharness/internal/report"
)

func newRunCommand(app *App) *cobra.Command {
	var (
		acceptEula bool
		echo       bool
		noReport   bool
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Install, provision and start the server, then run the steps",
		Long: `Run a full harness session:
  1. install     - Install Forge into the server directory if needed
  2. provision   - Copy mods and config files
  3. environment - Write eula.txt and server.properties
  4. launch      - Start the server, wait for it to be ready, run the steps
                   and stop it

The exit code reports the outcome (0 on success). A YAML report is written to
the server directory unless --no-report is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.Config
			if acceptEula {
				cfg.Server.EulaAccepted = true
			}
			if echo {
				cfg.Output.EchoServer = true
			}
			if noReport {
				cfg.Report.Enabled = false
			}
			if reportPath != "" {
				cfg.Report.Path = reportPath
			}

			runner, err := app.NewRunner(cfg)
			if err != nil {
				app.Printer.Error(err)
				cmd.SilenceUsage = true
				return NewExitError(errors.ExitCode(err))
			}

			app.Printer.RunHeader(cfg.Server.MinecraftVersion, cfg.Server.ForgeVersion, cfg.Server.Dir, runner.Pending())

			res, runErr := runner.Run(cmd.Context())
			rep := report.New(res, runErr, runner.Pending())
			rep.MinecraftVersion = cfg.Server.MinecraftVersion
			rep.ForgeVersion = cfg.Server.ForgeVersion
			rep.ServerDir = cfg.Server.Dir

			if cfg.Report.Enabled {
				w := report.NewWriter(app.Fs, report.ResolvePath(cfg.Server.Dir, cfg.Report.Path))
				if err := w.Write(rep); err != nil {
					app.Logger.Warn("failed to write report", "path", w.Path(), "error", err)
				} else {
					app.Logger.Info("report written", "path", w.Path())
				}
			}

			app.Printer.Summary(rep)

			if runErr != nil {
				cmd.SilenceUsage = true
				return NewExitError(rep.HarnessExitCode)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&acceptEula, "accept-eula", false, "accept the Minecraft EULA (https://aka.ms/MinecraftEULA)")
	cmd.Flags().BoolVar(&echo, "echo", false, "echo server output to the terminal")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "do not write the YAML report")
	cmd.Flags().StringVar(&reportPath, "report", "", "report file path")

	return cmd
}

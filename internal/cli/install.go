package cli

import (
	"github.com/spf13/cobra"

	"serverharness/internal/errors"
)

func newInstallCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the Forge server without starting it",
		Long: `Download the Forge installer for the configured versions and run it in
the server directory. Nothing happens when a server jar is already present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := app.NewRunner(app.Config)
			if err != nil {
				app.Printer.Error(err)
				cmd.SilenceUsage = true
				return NewExitError(errors.ExitCode(err))
			}

			res, err := runner.Install(cmd.Context())
			if err != nil {
				app.Printer.Error(err)
				cmd.SilenceUsage = true
				return NewExitError(errors.ExitCode(err))
			}

			app.Printer.InstallResult(res)
			return nil
		},
	}
}

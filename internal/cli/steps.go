package cli

import (
	"github.com/spf13/cobra"

	"serverharness/internal/errors"
)

func newStepsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the configured steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := app.Config.BuildSteps()
			if err != nil {
				app.Printer.Error(err)
				cmd.SilenceUsage = true
				return NewExitError(errors.ExitConfiguration)
			}
			app.Printer.StepList(steps)
			return nil
		},
	}
}

package cli

import (
	"github.com/spf13/cobra"

	"serverharness/internal/report"
)

func newReportCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "report [path]",
		Short: "Print the report of a previous run",
		Long: `Print the step table and outcome recorded by a previous run.

Without a path the report is looked up the same way run writes it:
SERVERHARNESS_REPORT_PATH, then report.path, then the server directory.
The exit code is the one the recorded run ended with.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := report.ResolvePath(app.Config.Server.Dir, app.Config.Report.Path)
			if len(args) == 1 {
				path = args[0]
			}

			rep, err := report.NewReader(app.Fs, path).Read()
			if err != nil {
				app.Printer.Error(err)
				cmd.SilenceUsage = true
				return NewExitError(1)
			}

			app.Printer.Summary(rep)
			if !rep.Success {
				code := rep.HarnessExitCode
				if code == 0 {
					code = 1
				}
				cmd.SilenceUsage = true
				return NewExitError(code)
			}
			return nil
		},
	}
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/arcward/guildsweep/guildsweep"
	"github.com/spf13/cobra"
)

var (
	leavePositions string
	leaveIDs       string
	leaveYes       bool
)

var errLeaveIncomplete = errors.New("not every server was left")

// confirmedPrompter reports to the console but skips the confirmation
// prompt
type confirmedPrompter struct {
	guildsweep.Reporter
	guildsweep.AutoConfirm
}

var leaveCmd = &cobra.Command{
	Use:   "leave (--positions 1,3 | --ids ID,ID) [--yes]",
	Short: "Leave servers without the interactive menu",
	Long: "Leave servers by their number in the 'list' output (or 'all'), " +
		"or by server ID. Asks for confirmation unless --yes is given.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		gs, err := guildsweep.New(cfg)
		if err != nil {
			return err
		}
		console := guildsweep.NewConsole(
			cmd.InOrStdin(),
			cmd.OutOrStdout(),
			cfg.NoColor,
			nil,
		)
		if err = gs.Load(ctx, guildsweep.NopReporter{}); err != nil {
			return err
		}

		var ui guildsweep.Prompter = console
		if leaveYes {
			ui = confirmedPrompter{
				Reporter:    console,
				AutoConfirm: guildsweep.AutoConfirm(true),
			}
		}

		var report guildsweep.LeaveReport
		if leavePositions != "" {
			report, err = gs.LeaveByPosition(ctx, leavePositions, ui)
		} else {
			report, err = gs.LeaveByID(ctx, leaveIDs, ui)
		}
		if err != nil {
			return err
		}

		if notLeft := report.RateLimited + report.Failed; notLeft > 0 {
			return fmt.Errorf(
				"%w: %d of %d",
				errLeaveIncomplete,
				notLeft,
				len(report.Results),
			)
		}
		return nil
	},
}

//nolint:gochecknoinits
func init() {
	leaveCmd.Flags().StringVar(
		&leavePositions,
		"positions",
		"",
		"Comma-separated server numbers, as shown by 'list', or 'all'",
	)
	leaveCmd.Flags().StringVar(
		&leaveIDs,
		"ids",
		"",
		"Comma-separated server IDs",
	)
	leaveCmd.Flags().BoolVarP(
		&leaveYes,
		"yes",
		"y",
		false,
		"Don't ask for confirmation",
	)
	leaveCmd.MarkFlagsMutuallyExclusive("positions", "ids")
	leaveCmd.MarkFlagsOneRequired("positions", "ids")
	rootCmd.AddCommand(leaveCmd)
}

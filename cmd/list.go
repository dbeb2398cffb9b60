package cmd

import (
	"github.com/arcward/guildsweep/guildsweep"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the servers the account belongs to",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
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
		return gs.Load(cmd.Context(), console)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(listCmd)
}

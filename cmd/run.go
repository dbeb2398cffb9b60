package cmd

import (
	"log"

	"github.com/arcward/guildsweep/guildsweep"
	"github.com/spf13/cobra"
)

var (
	runCmd = &cobra.Command{
		Use:   "run [flags]",
		Short: "Starts the interactive menu, refreshing the server list in the background",
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			gs, err := guildsweep.New(cfg)
			if err != nil {
				log.Fatalf("error creating guildsweep: %s", err.Error())
			}

			console := guildsweep.NewConsole(
				cmd.InOrStdin(),
				cmd.OutOrStdout(),
				cfg.NoColor,
				nil,
			)
			if err = gs.Run(ctx, console); err != nil {
				log.Fatalf("error running guildsweep: %s", err.Error())
			}
		},
	}
)

//goland:noinspection GoLinter
func init() {
	rootCmd.Run = runCmd.Run
	rootCmd.AddCommand(runCmd)
}

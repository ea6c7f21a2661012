package cmd

import (
	"github.com/spf13/cobra"

	"github.com/marketglass/marketglass/internal/app"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scrape engine until interrupted",
		Long: `Starts the full engine: periodic inventory and statistics refreshes,
snapshot reconciliation, flat-file persistence, and the optional debug
server. Runs until SIGINT or SIGTERM and drains in-flight work on the way
out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

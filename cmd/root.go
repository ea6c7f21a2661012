// Package cmd defines and implements the CLI commands for the marketglass
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marketglass/marketglass/internal/config"
)

// defaultConfigFile is picked up from the working directory when --config
// is not given. Everything also works with no file at all, driven by
// MARKETGLASS_* environment variables.
const defaultConfigFile = "marketglass.yaml"

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "marketglass",
		Short: "Watches one seller's marketplace listings from the terminal",
		Long: `marketglass keeps a live, versioned view of one seller's marketplace
inventory. It schedules polite scrapes of the seller's listings and store
statistics, reconciles every fetch into an immutable snapshot, tracks
connection health, and persists the result to flat files a spreadsheet can
open.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default %s in the working directory)", defaultConfigFile))

	root.AddCommand(newRunCmd())
	root.AddCommand(newRefreshCmd())
	root.AddCommand(newListingsCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	return config.Load(path)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at build time with
// -ldflags "-X github.com/marketglass/marketglass/cmd.version=v1.2.3".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the marketglass version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "marketglass %s\n", version)
		},
	}
}

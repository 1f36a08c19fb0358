package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WebFirstLanguage/lanchat/pkg/constants"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lanchat %s (protocol %d)\n", rootCmd.Version, constants.ProtocolVersion)
	},
}

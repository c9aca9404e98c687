package commands

import (
	"github.com/spf13/cobra"

	appversion "github.com/mcstrack/mcstrackd/internal/version"
)

// versionCmd prints the client build version.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the mcstrackctl version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(appversion.Full("mcstrackctl"))
		},
	}
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// serveCmd groups the long running punchclock services
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a punchclock service",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
}

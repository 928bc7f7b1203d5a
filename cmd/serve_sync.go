package cmd

import (
	"github.com/nsyszr/punchclock/pkg/cmd/server"
	"github.com/spf13/cobra"
)

// serveSyncCmd represents the serve sync command
var serveSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Serve the device sync API",
	Run:   server.RunServeSync(c),
}

func init() {
	serveCmd.AddCommand(serveSyncCmd)
}

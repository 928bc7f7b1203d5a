package cmd

import (
	"github.com/spf13/cobra"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync [device-id...]",
	Short: "Sync the given devices, or all registered devices, once",
	Run:   cmdHandler.Sync.SyncDevices,
}

func init() {
	RootCmd.AddCommand(syncCmd)
}

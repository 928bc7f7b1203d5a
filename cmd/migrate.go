package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// migrateCmd groups the schema commands of the attendance ledger
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the attendance ledger schema",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(cmd.UsageString())
		os.Exit(2)
	},
}

func init() {
	RootCmd.AddCommand(migrateCmd)
}

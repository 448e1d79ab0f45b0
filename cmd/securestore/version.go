package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benaskins/securestore/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("securestore %s (%g)\n", version.String, version.Number)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

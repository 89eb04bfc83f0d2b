package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corvid-labs/strand"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of strand",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("strand version %s\n", strand.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Strand is a remote-controllable finite state machine interpreter",
	Long: `Strand runs automaton definitions and exposes the execution over a
newline-framed JSON protocol, so controllers can observe state changes and
write variables while the machine runs.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the configuration file (default strand.yaml)")
}

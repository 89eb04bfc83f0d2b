package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvid-labs/strand"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Attach to a running interpreter as an interactive controller",
	Long: `Connects to an interpreter, prints its event stream, and reads commands
from stdin: "set <name> <value>", "stop", "quit".`,
	Run: func(cmd *cobra.Command, args []string) {
		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetInt("port")

		m := strand.NewMonitor(nil, nil)
		if err := m.Run(context.Background(), host, port); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringP("host", "H", "localhost", "Interpreter host")
	monitorCmd.Flags().IntP("port", "p", 65432, "Interpreter port")
}

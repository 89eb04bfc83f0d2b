package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvid-labs/strand/internal/compiler"
	"github.com/corvid-labs/strand/internal/presentation/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph <automaton-file>",
	Short: "Render an automaton as a Mermaid diagram",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runGraph(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("output", "o", "", "Write the diagram to a file instead of stdout")
}

func runGraph(cmd *cobra.Command, path string) error {
	auto, err := compiler.ParseFile(path)
	if err != nil {
		return err
	}

	out := graph.GenerateMermaid(auto, nil)
	if dest, _ := cmd.Flags().GetString("output"); dest != "" {
		return os.WriteFile(dest, []byte(out), 0o644)
	}
	fmt.Print(out)
	return nil
}

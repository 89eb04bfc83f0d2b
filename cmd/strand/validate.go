package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvid-labs/strand/internal/compiler"
)

var validateCmd = &cobra.Command{
	Use:   "validate <automaton-file>",
	Short: "Check an automaton definition for consistency",
	Long: `Parses the definition and verifies referential integrity: the start
state exists, and every final state and transition endpoint is declared.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		auto, err := compiler.ParseFile(args[0])
		if err == nil {
			err = auto.Validate()
		}
		if err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s is valid: %d states, %d transitions, %d variables\n",
			auto.Name, len(auto.States), len(auto.Transitions), len(auto.Variables))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

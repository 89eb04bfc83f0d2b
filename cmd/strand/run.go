package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corvid-labs/strand"
	"github.com/corvid-labs/strand/internal/cli"
	"github.com/corvid-labs/strand/internal/logging"
	"github.com/corvid-labs/strand/internal/presentation/tui"
)

var runCmd = &cobra.Command{
	Use:   "run <automaton-file>",
	Short: "Execute an automaton locally, without the wire protocol",
	Long: `Runs the automaton to completion in the foreground and prints every
emitted message. Useful for trying out definitions; there is no
controller, so a machine waiting on a variable write will sit until
interrupted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runLocal(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runLocal(cmd *cobra.Command, path string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := cli.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	it, err := strand.Load(path, strand.WithLogger(logging.New(cfg.Level())))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		cancel()
	}()

	formatter := tui.NewFormatter()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for msg := range it.Engine().Events() {
			fmt.Println(formatter.Format(msg))
		}
	}()

	err = it.Run(ctx)
	wg.Wait()
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}

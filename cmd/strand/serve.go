package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/corvid-labs/strand"
	"github.com/corvid-labs/strand/internal/cli"
	"github.com/corvid-labs/strand/internal/logging"
	filejournal "github.com/corvid-labs/strand/pkg/adapters/file"
	redisjournal "github.com/corvid-labs/strand/pkg/adapters/redis"
	"github.com/corvid-labs/strand/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve <automaton-file>",
	Short: "Run an automaton and expose it over the wire protocol",
	Long: `Loads an automaton definition, binds the TCP listener, and waits for a
controller. The FSM starts when the first controller connects and every
emitted message is mirrored to it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd, args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (overrides config)")
	serveCmd.Flags().String("http", "", "Introspection API address (overrides config)")
}

func runServe(cmd *cobra.Command, path string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := cli.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if httpAddr, _ := cmd.Flags().GetString("http"); httpAddr != "" {
		cfg.HTTP = httpAddr
	}

	logger := logging.New(cfg.Level())

	journal, closeJournal, err := buildJournal(cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	it, err := strand.Load(path,
		strand.WithLogger(logger),
		strand.WithJournal(journal),
		strand.WithListenAddr(cfg.Listen),
		strand.WithHTTPAddr(cfg.HTTP),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdown
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	fmt.Printf("Serving %s on %s (run %s)\n", it.Automaton().Name, cfg.Listen, it.RunID())
	if err := it.Serve(ctx); err != nil && err != context.Canceled {
		return err
	}
	fmt.Println("Run complete")
	return nil
}

func buildJournal(cfg cli.Config) (ports.RunJournal, func(), error) {
	switch cfg.Journal.Backend {
	case "file":
		return filejournal.New(cfg.Journal.Path), func() {}, nil
	case "redis":
		opts := []redisjournal.Option{}
		if cfg.Journal.Redis.Prefix != "" {
			opts = append(opts, redisjournal.WithPrefix(cfg.Journal.Redis.Prefix))
		}
		j := redisjournal.New(cfg.Journal.Redis.Address, cfg.Journal.Redis.Password, cfg.Journal.Redis.DB, opts...)
		return j, func() { j.Close() }, nil
	default:
		// The in-memory default is wired by the Interpreter itself.
		return nil, func() {}, nil
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	prewarm "github.com/jxucoder/prewarm"
	"github.com/jxucoder/prewarm/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prewarmd server",
	Long:  "Start the HTTP server that manages the conversation warm pool and ingests GitHub push webhooks.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	app, err := prewarm.NewBuilder().WithConfig(*cfg).Build()
	if err != nil {
		return fmt.Errorf("building app: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		cancel()
	}()

	return app.Start(ctx)
}

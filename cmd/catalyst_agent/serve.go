package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/catalyst/internal/server"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for creating, streaming, retrying, and resuming campaign runs.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	s, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	// servers log JSON
	logger := newServerLogger(s)

	a, err := newApp(ctx, s, logger, false)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Port:         servePort,
		Orchestrator: a.orch,
		Logger:       logger,
		OnShutdown:   a.Close,
	})
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

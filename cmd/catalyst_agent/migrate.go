package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the runs, step_records, and assets tables",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	s, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	if s.creds.DatabaseURL == "" {
		return fmt.Errorf("%s environment variable or database_url config is required", config.EnvDatabaseURL)
	}

	database, err := db.Connect(ctx, s.creds.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(os.Stdout, "Schema is up to date")
	return nil
}

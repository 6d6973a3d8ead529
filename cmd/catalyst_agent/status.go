package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run, its step records, and its assets",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	runID, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	s, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, s, newLogger(s), true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := printReport(ctx, os.Stdout, a.store, runID); err != nil {
		return err
	}

	status, err := a.orch.Status(ctx, runID)
	if err != nil {
		return err
	}
	if len(status.Available) > 0 {
		_, _ = fmt.Fprintf(os.Stdout, "Available steps: %s\n", joinSteps(status.Available))
	}
	if len(status.Blocked) > 0 {
		_, _ = fmt.Fprintf(os.Stdout, "Blocked steps:   %s\n", joinSteps(status.Blocked))
	}
	return nil
}

func joinSteps[T ~string](list []T) string {
	names := make([]string, len(list))
	for i, st := range list {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

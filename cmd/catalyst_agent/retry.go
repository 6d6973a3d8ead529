package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/catalyst/internal/types"
)

var retryCmd = &cobra.Command{
	Use:   "retry <run-id> <step>",
	Short: "Re-execute one failed step as a new attempt",
	Long: `Retries a single failed step. Dependencies reuse their latest completed outputs and the
failed record is kept. The run then settles to completed or failed.`,
	Args: cobra.ExactArgs(2),
	RunE: runRetry,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Re-enter a failed run, skipping completed steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(resumeCmd)
}

func runRetry(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	runID, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	st, err := types.ParseStepType(args[1])
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

	rec, err := a.orch.RetryStep(ctx, runID, st, progressPrinter(os.Stdout, 1))
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s attempt %d: %s\n", rec.Step, rec.Attempt, rec.Status)
	return printReport(ctx, os.Stdout, a.store, runID)
}

func runResume(_ *cobra.Command, args []string) error {
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

	run, err := a.orch.ResumeRun(ctx, runID, progressPrinter(os.Stdout, a.orch.Pipeline().Len()))
	if err != nil {
		return fmt.Errorf("resume failed: %w", err)
	}
	if err := printReport(ctx, os.Stdout, a.store, runID); err != nil {
		return err
	}
	if run.Status == types.RunStatusFailed {
		return fmt.Errorf("run %s failed again", runID)
	}
	return nil
}

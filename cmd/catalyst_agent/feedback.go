package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/catalyst/internal/types"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <asset-id>",
	Short: "Merge observed performance metrics into an asset",
	Long: `Merges metrics into an asset's performance metrics. Existing keys not named are kept.

Example:
  catalyst_agent feedback 3f0c... --metrics '{"likes": 120, "ctr": 0.031}' --note "strong hook"`,
	Args: cobra.ExactArgs(1),
	RunE: runFeedback,
}

var (
	feedbackMetrics string
	feedbackNote    string
)

func init() {
	feedbackCmd.Flags().StringVar(&feedbackMetrics, "metrics", "", "Metrics as a JSON object")
	feedbackCmd.Flags().StringVar(&feedbackNote, "note", "", "Qualitative feedback")
	rootCmd.AddCommand(feedbackCmd)
}

func runFeedback(_ *cobra.Command, args []string) error {
	ctx := context.Background()

	assetID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid asset id %q: %w", args[0], err)
	}
	req, err := feedbackRequest(feedbackMetrics, feedbackNote)
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

	asset, err := a.orch.RecordFeedback(ctx, assetID, req)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(asset.Metrics, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s metrics:\n%s\n", asset.Type, data)
	return nil
}

func feedbackRequest(metrics, note string) (*types.FeedbackRequest, error) {
	req := &types.FeedbackRequest{Qualitative: note}
	if metrics != "" {
		if err := json.Unmarshal([]byte(metrics), &req.Metrics); err != nil {
			return nil, fmt.Errorf("--metrics must be a JSON object: %w", err)
		}
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("either --metrics or --note is required: %w", err)
	}
	return req, nil
}

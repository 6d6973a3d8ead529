package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/catalyst/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Generate a campaign end-to-end",
	Long: `Creates a run and drives it through the pipeline: category -> vision -> competitors -> emotions -> hooks -> market research -> video + poster -> content -> prediction -> publishing -> image.

Collaborators without credentials fail their steps with missing_credential; the run still settles.`,
	RunE: runCampaignCmd,
}

var (
	runProduct     string
	runDescription string
	runImage       string
	runBrand       string
	runPrice       string
	runGoal        string
	runAudience    string
	runPersona     string
	runPlatforms   []string
	runOwner       string
)

func init() {
	runCommand.Flags().StringVarP(&runProduct, "product", "p", "", "Product name (required)")
	runCommand.Flags().StringVarP(&runDescription, "description", "d", "", "Product description")
	runCommand.Flags().StringVarP(&runImage, "image", "i", "", "Source product image path or URL")
	runCommand.Flags().StringVar(&runBrand, "brand", "", "Brand name")
	runCommand.Flags().StringVar(&runPrice, "price", "", "Price as displayed in copy")
	runCommand.Flags().StringVar(&runGoal, "goal", "", "Campaign goal")
	runCommand.Flags().StringVar(&runAudience, "audience", "", "Target audience")
	runCommand.Flags().StringVar(&runPersona, "persona", "", "Brand persona")
	runCommand.Flags().StringSliceVar(&runPlatforms, "platforms", nil, "Publishing targets (linkedin, meta, instagram)")
	runCommand.Flags().StringVar(&runOwner, "owner", "", "Owner id (UUID)")

	rootCmd.AddCommand(runCommand)
}

func runCampaignCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	if strings.TrimSpace(runProduct) == "" {
		return fmt.Errorf("--product is required")
	}

	s, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(s)

	a, err := newApp(ctx, s, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	req := &types.CampaignRequest{
		OwnerID:        runOwner,
		ProductName:    runProduct,
		Description:    runDescription,
		ImageRef:       runImage,
		BrandName:      runBrand,
		Price:          runPrice,
		CampaignGoal:   runGoal,
		TargetAudience: runAudience,
		BrandPersona:   runPersona,
	}
	platforms := runPlatforms
	if !cmd.Flags().Changed("platforms") && len(s.cfg.Platforms) > 0 {
		platforms = s.cfg.Platforms
	}
	for _, p := range platforms {
		req.Platforms = append(req.Platforms, types.Platform(strings.TrimSpace(p)))
	}

	run, err := a.orch.StartRun(ctx, req)
	if err != nil {
		return fmt.Errorf("invalid campaign request: %w", err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "Run %s created\n", run.ID)

	result, err := a.orch.RunPipeline(ctx, run.ID, progressPrinter(os.Stdout, a.orch.Pipeline().Len()))
	if err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}
	if err := printReport(ctx, os.Stdout, a.store, run.ID); err != nil {
		return err
	}
	if result.Status == types.RunStatusFailed {
		return fmt.Errorf("run %s failed; retry a step with 'retry' or re-enter with 'resume'", run.ID)
	}
	return nil
}

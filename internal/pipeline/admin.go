package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/catalyst/internal/pipeline/steps"
	"github.com/jonathan/catalyst/internal/types"
)

// ErrAssetNotFound is returned when feedback targets a missing asset
var ErrAssetNotFound = errors.New("asset not found")

// RunStatus is a run together with its step history and what can run next
type RunStatus struct {
	Run       *types.Run         `json:"run"`
	Steps     []types.StepRecord `json:"steps"`
	Active    bool               `json:"active"`
	Available []types.StepType   `json:"available_steps"`
	Blocked   []types.StepType   `json:"blocked_steps"`
}

// Status loads a run, every step record and the step availability derived from them
func (o *Orchestrator) Status(ctx context.Context, runID uuid.UUID) (*RunStatus, error) {
	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	records, err := o.store.ListStepRecords(ctx, runID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}
	if records == nil {
		records = []types.StepRecord{}
	}
	latest := steps.LatestRecords(records)
	hasImage := run.ImageRef != ""
	return &RunStatus{
		Run:       run,
		Steps:     records,
		Active:    o.IsActive(runID),
		Available: o.pipeline.AvailableSteps(latest, hasImage),
		Blocked:   o.pipeline.BlockedSteps(latest, hasImage),
	}, nil
}

// DeleteRun removes a run with its records and assets. Active runs cannot be deleted.
func (o *Orchestrator) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	if o.IsActive(runID) {
		return ErrRunBusy
	}
	if err := o.store.DeleteRun(ctx, runID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return ErrRunNotFound
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	o.logger.Info().Str("run_id", runID.String()).Msg("run deleted")
	return nil
}

// RecordFeedback merges externally observed performance metrics into an asset
func (o *Orchestrator) RecordFeedback(ctx context.Context, assetID uuid.UUID, req *types.FeedbackRequest) (*types.Asset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	metrics, err := o.store.MergeAssetMetrics(ctx, assetID, req.Updates())
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to record feedback: %w", err)
	}
	asset, err := o.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	if asset == nil {
		return nil, ErrAssetNotFound
	}
	asset.Metrics = metrics
	o.logger.Info().Str("asset_id", assetID.String()).Int("metrics", len(metrics)).Msg("feedback recorded")
	return asset, nil
}

// Store exposes the orchestrator's store for read-only queries
func (o *Orchestrator) Store() Store {
	return o.store
}

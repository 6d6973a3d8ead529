package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/catalyst/internal/db"
	"github.com/jonathan/catalyst/internal/types"
)

// Store persists runs, step records and assets.
type Store interface {
	CreateRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error)
	ListRuns(ctx context.Context, filters *types.RunFilters) ([]types.Run, error)
	TransitionRun(ctx context.Context, runID uuid.UUID, to types.RunStatus) error
	UpdateRunSnapshot(ctx context.Context, runID uuid.UUID, patch types.SnapshotPatch) error
	DeleteRun(ctx context.Context, runID uuid.UUID) error

	CreateStepRecord(ctx context.Context, rec *types.StepRecord) error
	GetStepRecord(ctx context.Context, id uuid.UUID) (*types.StepRecord, error)
	ListStepRecords(ctx context.Context, runID uuid.UUID, filters *types.StepRecordFilters) ([]types.StepRecord, error)
	CompleteStepRecord(ctx context.Context, id uuid.UUID, output map[string]any, completedAt time.Time) error
	FailStepRecord(ctx context.Context, id uuid.UUID, kind types.ErrorKind, message string, completedAt time.Time) error

	CreateAsset(ctx context.Context, asset *types.Asset) error
	GetAsset(ctx context.Context, id uuid.UUID) (*types.Asset, error)
	ListAssets(ctx context.Context, runID uuid.UUID) ([]types.Asset, error)
	MergeAssetMetrics(ctx context.Context, id uuid.UUID, updates map[string]any) (map[string]any, error)
}

var (
	_ Store = (*db.DB)(nil)
	_ Store = (*db.Memory)(nil)
)

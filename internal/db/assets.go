package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/catalyst/internal/types"
)

const assetColumns = `id, run_id, step_record_id, asset_type, content, file_ref,
	performance_metrics, created_at, updated_at`

// CreateAsset inserts a new asset
func (db *DB) CreateAsset(ctx context.Context, asset *types.Asset) error {
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	if asset.Content == nil {
		asset.Content = map[string]any{}
	}
	if asset.Metrics == nil {
		asset.Metrics = map[string]any{}
	}

	contentJSON, err := marshalJSONB(asset.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal asset content: %w", err)
	}
	metricsJSON, err := marshalJSONB(asset.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal asset metrics: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO assets (id, run_id, step_record_id, asset_type, content, file_ref, performance_metrics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at`,
		asset.ID, asset.RunID, asset.StepRecordID, string(asset.Type), contentJSON, asset.FileRef, metricsJSON,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

// GetAsset retrieves an asset by ID
func (db *DB) GetAsset(ctx context.Context, id uuid.UUID) (*types.Asset, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id)

	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return asset, nil
}

// ListAssets retrieves all assets for a run in creation order
func (db *DB) ListAssets(ctx context.Context, runID uuid.UUID) ([]types.Asset, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []types.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// MergeAssetMetrics merges updates into an asset's metrics and returns the result.
// Keys not named in updates are kept.
func (db *DB) MergeAssetMetrics(ctx context.Context, id uuid.UUID, updates map[string]any) (map[string]any, error) {
	updatesJSON, err := marshalJSONB(updates)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if updatesJSON == nil {
		updatesJSON = []byte("{}")
	}

	var merged []byte
	err = db.pool.QueryRow(ctx,
		`UPDATE assets
		 SET performance_metrics = COALESCE(performance_metrics, '{}'::jsonb) || $1::jsonb,
		     updated_at = NOW()
		 WHERE id = $2
		 RETURNING performance_metrics`,
		updatesJSON, id,
	).Scan(&merged)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to merge asset metrics: %w", err)
	}
	return unmarshalJSONB("performance_metrics", merged)
}

func scanAsset(row pgx.Row) (*types.Asset, error) {
	var asset types.Asset
	var assetType string
	var contentJSON, metricsJSON []byte

	err := row.Scan(&asset.ID, &asset.RunID, &asset.StepRecordID, &assetType, &contentJSON,
		&asset.FileRef, &metricsJSON, &asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return nil, err
	}

	asset.Type = types.AssetType(assetType)
	if asset.Content, err = unmarshalJSONB("content", contentJSON); err != nil {
		return nil, err
	}
	if asset.Metrics, err = unmarshalJSONB("performance_metrics", metricsJSON); err != nil {
		return nil, err
	}
	return &asset, nil
}

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/catalyst/internal/types"
)

const runColumns = `id, owner_id, product_name, description, image_ref, brand_name, price,
	campaign_goal, target_audience, brand_persona, platforms, status,
	category, subcategory, category_confidence, competitor_snapshot, emotional_snapshot,
	hook_snapshot, performance_snapshot, created_at, updated_at, completed_at`

// CreateRun inserts a new campaign run
func (db *DB) CreateRun(ctx context.Context, run *types.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = types.RunStatusCreated
	}

	var ownerID *uuid.UUID
	if run.OwnerID != uuid.Nil {
		ownerID = &run.OwnerID
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO campaign_runs (id, owner_id, product_name, description, image_ref, brand_name,
		     price, campaign_goal, target_audience, brand_persona, platforms, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		run.ID, ownerID, run.ProductName, run.Description, run.ImageRef, run.BrandName,
		run.Price, run.CampaignGoal, run.TargetAudience, run.BrandPersona,
		platformStrings(run.Platforms), string(run.Status),
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a campaign run by ID
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM campaign_runs WHERE id = $1`, runID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs, newest first, optionally filtered by owner and status
func (db *DB) ListRuns(ctx context.Context, filters *types.RunFilters) ([]types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM campaign_runs WHERE 1=1`
	args := []any{}
	argPos := 1
	limit := 50

	if filters != nil {
		if filters.OwnerID != nil {
			query += fmt.Sprintf(" AND owner_id = $%d", argPos)
			args = append(args, *filters.OwnerID)
			argPos++
		}
		if filters.Status != nil {
			query += fmt.Sprintf(" AND status = $%d", argPos)
			args = append(args, string(*filters.Status))
			argPos++
		}
		if filters.Limit > 0 {
			limit = filters.Limit
		}
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// TransitionRun moves a run to a new status if the state machine allows it
func (db *DB) TransitionRun(ctx context.Context, runID uuid.UUID, to types.RunStatus) error {
	var completedAt *time.Time
	if to.IsTerminal() {
		now := time.Now()
		completedAt = &now
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE campaign_runs SET status = $1, completed_at = $2, updated_at = NOW()
		 WHERE id = $3 AND status = ANY($4)`,
		string(to), completedAt, runID, statusStrings(types.SourceStatuses(to)),
	)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM campaign_runs WHERE id = $1)`, runID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if !exists {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	return fmt.Errorf("run %s to %s: %w", runID, to, types.ErrInvalidTransition)
}

// UpdateRunSnapshot applies a partial update to a run's snapshot fields
func (db *DB) UpdateRunSnapshot(ctx context.Context, runID uuid.UUID, patch types.SnapshotPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	competitor, err := marshalJSONB(patch.Competitor)
	if err != nil {
		return fmt.Errorf("failed to marshal competitor snapshot: %w", err)
	}
	emotional, err := marshalJSONB(patch.Emotional)
	if err != nil {
		return fmt.Errorf("failed to marshal emotional snapshot: %w", err)
	}
	hook, err := marshalJSONB(patch.Hook)
	if err != nil {
		return fmt.Errorf("failed to marshal hook snapshot: %w", err)
	}
	performance, err := marshalJSONB(patch.Performance)
	if err != nil {
		return fmt.Errorf("failed to marshal performance snapshot: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE campaign_runs
		 SET category = COALESCE($1, category),
		     subcategory = COALESCE($2, subcategory),
		     category_confidence = COALESCE($3, category_confidence),
		     competitor_snapshot = COALESCE($4, competitor_snapshot),
		     emotional_snapshot = COALESCE($5, emotional_snapshot),
		     hook_snapshot = COALESCE($6, hook_snapshot),
		     performance_snapshot = COALESCE($7, performance_snapshot),
		     updated_at = NOW()
		 WHERE id = $8`,
		patch.Category, patch.Subcategory, patch.CategoryConfidence,
		competitor, emotional, hook, performance, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	return nil
}

// DeleteRun deletes a run; step records and assets are removed by cascade
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM campaign_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	return nil
}

func scanRun(row pgx.Row) (*types.Run, error) {
	var run types.Run
	var ownerID *uuid.UUID
	var platforms []string
	var status string
	var competitor, emotional, hook, performance []byte

	err := row.Scan(&run.ID, &ownerID, &run.ProductName, &run.Description, &run.ImageRef,
		&run.BrandName, &run.Price, &run.CampaignGoal, &run.TargetAudience, &run.BrandPersona,
		&platforms, &status, &run.Category, &run.Subcategory, &run.CategoryConfidence,
		&competitor, &emotional, &hook, &performance,
		&run.CreatedAt, &run.UpdatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}

	if ownerID != nil {
		run.OwnerID = *ownerID
	}
	run.Status = types.RunStatus(status)
	for _, p := range platforms {
		run.Platforms = append(run.Platforms, types.Platform(p))
	}
	snapshots := []struct {
		column string
		data   []byte
		target *map[string]any
	}{
		{"competitor_snapshot", competitor, &run.CompetitorSnapshot},
		{"emotional_snapshot", emotional, &run.EmotionalSnapshot},
		{"hook_snapshot", hook, &run.HookSnapshot},
		{"performance_snapshot", performance, &run.PerformanceSnapshot},
	}
	for _, s := range snapshots {
		if *s.target, err = unmarshalJSONB(s.column, s.data); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func platformStrings(platforms []types.Platform) []string {
	out := make([]string, len(platforms))
	for i, p := range platforms {
		out[i] = string(p)
	}
	return out
}

func statusStrings(statuses []types.RunStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

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

// -----------------------------------------------------------------------------
// Step Record Methods
// -----------------------------------------------------------------------------

const stepRecordColumns = `id, run_id, step, attempt, status, input, output, error_kind,
	error_message, started_at, completed_at, duration_ms, created_at`

// CreateStepRecord inserts a new step record
func (db *DB) CreateStepRecord(ctx context.Context, rec *types.StepRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Attempt == 0 {
		rec.Attempt = 1
	}

	inputJSON, err := marshalJSONB(rec.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO step_records (id, run_id, step, attempt, status, input, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		rec.ID, rec.RunID, string(rec.Step), rec.Attempt, string(rec.Status), inputJSON, rec.StartedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create step record: %w", err)
	}
	return nil
}

// GetStepRecord retrieves a step record by ID
func (db *DB) GetStepRecord(ctx context.Context, id uuid.UUID) (*types.StepRecord, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+stepRecordColumns+` FROM step_records WHERE id = $1`, id)

	rec, err := scanStepRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get step record: %w", err)
	}
	return rec, nil
}

// ListStepRecords retrieves all records for a run, optionally filtered by step or status
func (db *DB) ListStepRecords(ctx context.Context, runID uuid.UUID, filters *types.StepRecordFilters) ([]types.StepRecord, error) {
	query := `SELECT ` + stepRecordColumns + ` FROM step_records WHERE run_id = $1`
	args := []any{runID}
	argPos := 2

	if filters != nil && filters.Step != nil {
		query += fmt.Sprintf(" AND step = $%d", argPos)
		args = append(args, string(*filters.Step))
		argPos++
	}
	if filters != nil && filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*filters.Status))
	}

	query += " ORDER BY created_at, attempt"

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}
	defer rows.Close()

	var records []types.StepRecord
	for rows.Next() {
		rec, err := scanStepRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// CompleteStepRecord marks a running record completed with its output payload
func (db *DB) CompleteStepRecord(ctx context.Context, id uuid.UUID, output map[string]any, completedAt time.Time) error {
	outputJSON, err := marshalJSONB(output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}
	if outputJSON == nil {
		outputJSON = []byte("{}")
	}
	return db.finishStepRecord(ctx, id, types.StepStatusCompleted, outputJSON, "", nil, completedAt)
}

// FailStepRecord marks a running record failed with an error kind and message
func (db *DB) FailStepRecord(ctx context.Context, id uuid.UUID, kind types.ErrorKind, message string, completedAt time.Time) error {
	return db.finishStepRecord(ctx, id, types.StepStatusFailed, nil, kind, &message, completedAt)
}

func (db *DB) finishStepRecord(ctx context.Context, id uuid.UUID, status types.StepStatus, output []byte,
	kind types.ErrorKind, message *string, completedAt time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE step_records
		 SET status = $1, output = $2, error_kind = $3, error_message = $4,
		     started_at = COALESCE(started_at, $5),
		     completed_at = $5,
		     duration_ms = (EXTRACT(EPOCH FROM ($5 - COALESCE(started_at, $5))) * 1000)::INT
		 WHERE id = $6 AND status IN ('pending', 'running')`,
		string(status), output, string(kind), message, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish step record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("step record %s is missing or already terminal: %w", id, types.ErrNotFound)
	}
	return nil
}

func scanStepRecord(row pgx.Row) (*types.StepRecord, error) {
	var rec types.StepRecord
	var step, status, kind string
	var inputJSON, outputJSON []byte

	err := row.Scan(&rec.ID, &rec.RunID, &step, &rec.Attempt, &status, &inputJSON, &outputJSON,
		&kind, &rec.ErrorMessage, &rec.StartedAt, &rec.CompletedAt, &rec.DurationMs, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.Step = types.StepType(step)
	rec.Status = types.StepStatus(status)
	rec.ErrorKind = types.ErrorKind(kind)
	if rec.Input, err = unmarshalJSONB("input", inputJSON); err != nil {
		return nil, err
	}
	if rec.Output, err = unmarshalJSONB("output", outputJSON); err != nil {
		return nil, err
	}
	return &rec, nil
}

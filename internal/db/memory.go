package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/catalyst/internal/types"
)

// Memory is an in-process store with the same semantics as DB.
// Returned values are copies; callers never alias stored state.
type Memory struct {
	mu      sync.RWMutex
	runs    map[uuid.UUID]*types.Run
	records map[uuid.UUID]*types.StepRecord
	assets  map[uuid.UUID]*types.Asset
	now     func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		runs:    make(map[uuid.UUID]*types.Run),
		records: make(map[uuid.UUID]*types.StepRecord),
		assets:  make(map[uuid.UUID]*types.Asset),
		now:     time.Now,
	}
}

// CreateRun inserts a new campaign run
func (m *Memory) CreateRun(_ context.Context, run *types.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if _, exists := m.runs[run.ID]; exists {
		return fmt.Errorf("failed to create run: duplicate id %s", run.ID)
	}
	if run.Status == "" {
		run.Status = types.RunStatusCreated
	}
	now := m.now()
	run.CreatedAt, run.UpdatedAt = now, now
	m.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun retrieves a campaign run by ID
func (m *Memory) GetRun(_ context.Context, runID uuid.UUID) (*types.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	return cloneRun(run), nil
}

// ListRuns retrieves runs, newest first, optionally filtered by owner and status
func (m *Memory) ListRuns(_ context.Context, filters *types.RunFilters) ([]types.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := 50
	if filters != nil && filters.Limit > 0 {
		limit = filters.Limit
	}

	var runs []types.Run
	for _, run := range m.runs {
		if filters != nil && filters.OwnerID != nil && run.OwnerID != *filters.OwnerID {
			continue
		}
		if filters != nil && filters.Status != nil && run.Status != *filters.Status {
			continue
		}
		runs = append(runs, *cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// TransitionRun moves a run to a new status if the state machine allows it
func (m *Memory) TransitionRun(_ context.Context, runID uuid.UUID, to types.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	if !run.Status.CanTransition(to) {
		return fmt.Errorf("run %s %s to %s: %w", runID, run.Status, to, types.ErrInvalidTransition)
	}

	now := m.now()
	run.Status = to
	run.UpdatedAt = now
	if to.IsTerminal() {
		run.CompletedAt = &now
	} else {
		run.CompletedAt = nil
	}
	return nil
}

// UpdateRunSnapshot applies a partial update to a run's snapshot fields
func (m *Memory) UpdateRunSnapshot(_ context.Context, runID uuid.UUID, patch types.SnapshotPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	patch.Competitor = cloneMap(patch.Competitor)
	patch.Emotional = cloneMap(patch.Emotional)
	patch.Hook = cloneMap(patch.Hook)
	patch.Performance = cloneMap(patch.Performance)
	patch.Apply(&run.RunSnapshot)
	run.UpdatedAt = m.now()
	return nil
}

// DeleteRun deletes a run along with its step records and assets
func (m *Memory) DeleteRun(_ context.Context, runID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[runID]; !ok {
		return fmt.Errorf("run %s: %w", runID, types.ErrNotFound)
	}
	delete(m.runs, runID)
	for id, rec := range m.records {
		if rec.RunID == runID {
			delete(m.records, id)
		}
	}
	for id, asset := range m.assets {
		if asset.RunID == runID {
			delete(m.assets, id)
		}
	}
	return nil
}

// CreateStepRecord inserts a new step record
func (m *Memory) CreateStepRecord(_ context.Context, rec *types.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[rec.RunID]; !ok {
		return fmt.Errorf("failed to create step record: run %s: %w", rec.RunID, types.ErrNotFound)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Attempt == 0 {
		rec.Attempt = 1
	}
	for _, existing := range m.records {
		if existing.RunID == rec.RunID && existing.Step == rec.Step && existing.Attempt == rec.Attempt {
			return fmt.Errorf("failed to create step record: attempt %d of %s already exists", rec.Attempt, rec.Step)
		}
	}
	rec.Output = nil
	rec.CreatedAt = m.now()
	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

// GetStepRecord retrieves a step record by ID
func (m *Memory) GetStepRecord(_ context.Context, id uuid.UUID) (*types.StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// ListStepRecords retrieves all records for a run, optionally filtered by step or status
func (m *Memory) ListStepRecords(_ context.Context, runID uuid.UUID, filters *types.StepRecordFilters) ([]types.StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var records []types.StepRecord
	for _, rec := range m.records {
		if rec.RunID != runID {
			continue
		}
		if filters != nil && filters.Step != nil && rec.Step != *filters.Step {
			continue
		}
		if filters != nil && filters.Status != nil && rec.Status != *filters.Status {
			continue
		}
		records = append(records, *cloneRecord(rec))
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Attempt < records[j].Attempt
	})
	return records, nil
}

// CompleteStepRecord marks a running record completed with its output payload
func (m *Memory) CompleteStepRecord(_ context.Context, id uuid.UUID, output map[string]any, completedAt time.Time) error {
	if output == nil {
		output = map[string]any{}
	}
	return m.finish(id, completedAt, func(rec *types.StepRecord) {
		rec.Status = types.StepStatusCompleted
		rec.Output = cloneMap(output)
	})
}

// FailStepRecord marks a running record failed with an error kind and message
func (m *Memory) FailStepRecord(_ context.Context, id uuid.UUID, kind types.ErrorKind, message string, completedAt time.Time) error {
	return m.finish(id, completedAt, func(rec *types.StepRecord) {
		rec.Status = types.StepStatusFailed
		rec.ErrorKind = kind
		rec.ErrorMessage = &message
	})
}

func (m *Memory) finish(id uuid.UUID, completedAt time.Time, apply func(*types.StepRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok || rec.Status.IsTerminal() {
		return fmt.Errorf("step record %s is missing or already terminal: %w", id, types.ErrNotFound)
	}

	apply(rec)
	if rec.StartedAt == nil {
		started := completedAt
		rec.StartedAt = &started
	}
	// started_at <= completed_at
	if completedAt.Before(*rec.StartedAt) {
		completedAt = *rec.StartedAt
	}
	rec.CompletedAt = &completedAt
	dur := int(completedAt.Sub(*rec.StartedAt).Milliseconds())
	rec.DurationMs = &dur
	return nil
}

// CreateAsset inserts a new asset
func (m *Memory) CreateAsset(_ context.Context, asset *types.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[asset.RunID]; !ok {
		return fmt.Errorf("failed to create asset: run %s: %w", asset.RunID, types.ErrNotFound)
	}
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	if asset.Content == nil {
		asset.Content = map[string]any{}
	}
	if asset.Metrics == nil {
		asset.Metrics = map[string]any{}
	}
	now := m.now()
	asset.CreatedAt, asset.UpdatedAt = now, now
	m.assets[asset.ID] = cloneAsset(asset)
	return nil
}

// GetAsset retrieves an asset by ID
func (m *Memory) GetAsset(_ context.Context, id uuid.UUID) (*types.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	asset, ok := m.assets[id]
	if !ok {
		return nil, nil
	}
	return cloneAsset(asset), nil
}

// ListAssets retrieves all assets for a run in creation order
func (m *Memory) ListAssets(_ context.Context, runID uuid.UUID) ([]types.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var assets []types.Asset
	for _, asset := range m.assets {
		if asset.RunID == runID {
			assets = append(assets, *cloneAsset(asset))
		}
	}
	sort.SliceStable(assets, func(i, j int) bool { return assets[i].CreatedAt.Before(assets[j].CreatedAt) })
	return assets, nil
}

// MergeAssetMetrics merges updates into an asset's metrics and returns the result
func (m *Memory) MergeAssetMetrics(_ context.Context, id uuid.UUID, updates map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	asset, ok := m.assets[id]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", id, types.ErrNotFound)
	}
	asset.Metrics = types.MergeMetrics(asset.Metrics, updates)
	asset.UpdatedAt = m.now()
	return cloneMap(asset.Metrics), nil
}

// cloneMap deep-copies a decoded JSON object so callers never share nested values with the store
func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneRun(run *types.Run) *types.Run {
	c := *run
	c.Platforms = append([]types.Platform(nil), run.Platforms...)
	c.CompetitorSnapshot = cloneMap(run.CompetitorSnapshot)
	c.EmotionalSnapshot = cloneMap(run.EmotionalSnapshot)
	c.HookSnapshot = cloneMap(run.HookSnapshot)
	c.PerformanceSnapshot = cloneMap(run.PerformanceSnapshot)
	if run.CategoryConfidence != nil {
		v := *run.CategoryConfidence
		c.CategoryConfidence = &v
	}
	if run.CompletedAt != nil {
		v := *run.CompletedAt
		c.CompletedAt = &v
	}
	return &c
}

func cloneRecord(rec *types.StepRecord) *types.StepRecord {
	c := *rec
	c.Input = cloneMap(rec.Input)
	c.Output = cloneMap(rec.Output)
	if rec.ErrorMessage != nil {
		v := *rec.ErrorMessage
		c.ErrorMessage = &v
	}
	if rec.StartedAt != nil {
		v := *rec.StartedAt
		c.StartedAt = &v
	}
	if rec.CompletedAt != nil {
		v := *rec.CompletedAt
		c.CompletedAt = &v
	}
	if rec.DurationMs != nil {
		v := *rec.DurationMs
		c.DurationMs = &v
	}
	return &c
}

func cloneAsset(asset *types.Asset) *types.Asset {
	c := *asset
	c.Content = cloneMap(asset.Content)
	c.Metrics = cloneMap(asset.Metrics)
	if asset.StepRecordID != nil {
		v := *asset.StepRecordID
		c.StepRecordID = &v
	}
	return &c
}

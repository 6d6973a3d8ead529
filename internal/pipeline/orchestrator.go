// Package pipeline runs campaign generation: it walks the step graph, persists
// a record per step attempt, and settles each run to completed or failed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/catalyst/internal/pipeline/steps"
	"github.com/jonathan/catalyst/internal/types"
)

var (
	// ErrRunNotFound is returned when the run does not exist
	ErrRunNotFound = errors.New("run not found")

	// ErrRunBusy is returned when another operation already drives the run
	ErrRunBusy = errors.New("run is already being processed")

	// ErrInvalidRunState is returned when the run's status does not permit the operation
	ErrInvalidRunState = errors.New("run is not in a valid state for this operation")

	// ErrStepNotRetryable is returned when the latest record of a step is not failed
	ErrStepNotRetryable = errors.New("step is not in failed state")
)

// Orchestrator drives runs through the pipeline. Each run has at most one
// active driver at a time.
type Orchestrator struct {
	store    Store
	runner   StepRunner
	pipeline *steps.Pipeline
	logger   zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	active map[uuid.UUID]*runState
}

type runState struct {
	cancelled atomic.Bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPipeline replaces the default step graph and fatal policy
func WithPipeline(p *steps.Pipeline) Option {
	return func(o *Orchestrator) {
		o.pipeline = p
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the clock used for record timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator
func New(store Store, runner StepRunner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		runner:   runner,
		pipeline: steps.Default(),
		logger:   zerolog.Nop(),
		now:      time.Now,
		active:   make(map[uuid.UUID]*runState),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Pipeline returns the step graph the orchestrator walks
func (o *Orchestrator) Pipeline() *steps.Pipeline {
	return o.pipeline
}

// StartRun validates a campaign request and persists a new run in the created state
func (o *Orchestrator) StartRun(ctx context.Context, req *types.CampaignRequest) (*types.Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.ApplyDefaults()

	run := req.NewRun()
	if err := o.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	o.logger.Info().Str("run_id", run.ID.String()).Str("product", run.ProductName).Msg("run created")
	return run, nil
}

// RunPipeline executes every stage of a newly created run
func (o *Orchestrator) RunPipeline(ctx context.Context, runID uuid.UUID, onProgress ProgressCallback) (*types.Run, error) {
	state, err := o.acquire(runID)
	if err != nil {
		return nil, err
	}
	defer o.release(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != types.RunStatusCreated {
		return nil, fmt.Errorf("%w: run is %s", ErrInvalidRunState, run.Status)
	}
	return o.drive(ctx, run, state, newEmitter(runID, onProgress))
}

// ResumeRun re-walks a failed run, skipping every step whose latest record completed
func (o *Orchestrator) ResumeRun(ctx context.Context, runID uuid.UUID, onProgress ProgressCallback) (*types.Run, error) {
	state, err := o.acquire(runID)
	if err != nil {
		return nil, err
	}
	defer o.release(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != types.RunStatusFailed {
		return nil, fmt.Errorf("%w: only failed runs can be resumed, run is %s", ErrInvalidRunState, run.Status)
	}
	return o.drive(ctx, run, state, newEmitter(runID, onProgress))
}

// RetryStep re-executes a single failed step as a new attempt, then settles the run.
// The failed record is left untouched.
func (o *Orchestrator) RetryStep(ctx context.Context, runID uuid.UUID, st types.StepType, onProgress ProgressCallback) (*types.StepRecord, error) {
	if _, ok := o.pipeline.Definition(st); !ok {
		return nil, fmt.Errorf("%w: unknown step %s", ErrContractViolation, st)
	}

	if _, err := o.acquire(runID); err != nil {
		return nil, err
	}
	defer o.release(runID)

	run, err := o.loadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: run is %s", ErrInvalidRunState, run.Status)
	}

	records, err := o.store.ListStepRecords(ctx, runID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}
	latest := steps.LatestRecords(records)
	if rec, ok := latest[st]; !ok || rec.Status != types.StepStatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrStepNotRetryable, st)
	}
	if err := o.pipeline.CheckDependencies(latest, st); err != nil {
		return nil, err
	}

	emit := newEmitter(runID, onProgress)
	if err := o.store.TransitionRun(ctx, runID, types.RunStatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to reopen run: %w", err)
	}
	emit.emit(ProgressEvent{Type: EventRunStarted, Step: st, Message: fmt.Sprintf("Retrying %s", st)})

	rec, _, err := o.runStep(ctx, run, st, emit)
	if err != nil {
		o.abort(ctx, runID, err, emit)
		return rec, err
	}
	if _, err := o.finish(ctx, run, false, emit); err != nil {
		return rec, err
	}
	return rec, nil
}

// Cancel requests cooperative cancellation of an active run. The flag is
// checked between stages; an in-flight collaborator call is never interrupted.
func (o *Orchestrator) Cancel(runID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	state, ok := o.active[runID]
	if !ok {
		return false
	}
	state.cancelled.Store(true)
	return true
}

// IsActive reports whether an operation is currently driving the run
func (o *Orchestrator) IsActive(runID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[runID]
	return ok
}

func (o *Orchestrator) acquire(runID uuid.UUID) (*runState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.active[runID]; busy {
		return nil, ErrRunBusy
	}
	state := &runState{}
	o.active[runID] = state
	return state, nil
}

func (o *Orchestrator) release(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, runID)
}

func (o *Orchestrator) loadRun(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	run, err := o.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// drive moves the run to processing and walks the stages in order.
func (o *Orchestrator) drive(ctx context.Context, run *types.Run, state *runState, emit *emitter) (*types.Run, error) {
	log := o.logger.With().Str("run_id", run.ID.String()).Logger()

	if err := o.store.TransitionRun(ctx, run.ID, types.RunStatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	emit.emit(ProgressEvent{Type: EventRunStarted, Message: fmt.Sprintf("Generating campaign for %s", run.ProductName)})
	log.Info().Msg("run started")

	for i, stage := range o.pipeline.Stages() {
		if state.cancelled.Load() || ctx.Err() != nil {
			log.Warn().Int("stage", i+1).Msg("run cancelled")
			return o.finish(ctx, run, true, emit)
		}

		pending, err := o.pendingSteps(ctx, run, stage, emit)
		if err != nil {
			o.abort(ctx, run.ID, err, emit)
			return nil, err
		}

		results, err := o.runStage(ctx, run, pending, emit)
		if err != nil {
			o.abort(ctx, run.ID, err, emit)
			return nil, err
		}

		for _, res := range results {
			if !res.Succeeded() && o.pipeline.IsFatal(res.Step) {
				log.Error().Str("step", string(res.Step)).Str("kind", string(res.ErrorKind)).Msg("fatal step failed")
				return o.finish(ctx, run, true, emit)
			}
		}
	}

	return o.finish(ctx, run, false, emit)
}

// pendingSteps filters a stage down to the steps that still need to execute.
func (o *Orchestrator) pendingSteps(ctx context.Context, run *types.Run, stage []types.StepType, emit *emitter) ([]types.StepType, error) {
	records, err := o.store.ListStepRecords(ctx, run.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}
	latest := steps.LatestRecords(records)

	var pending []types.StepType
	for _, st := range stage {
		if rec, ok := latest[st]; ok && rec.Status == types.StepStatusCompleted {
			continue
		}
		def, _ := o.pipeline.Definition(st)
		if def.RequiresSourceImage && run.ImageRef == "" {
			emit.emit(ProgressEvent{Type: EventStepSkipped, Step: st, Category: def.Category, Message: "No source image provided"})
			continue
		}
		pending = append(pending, st)
	}
	return pending, nil
}

// runStage executes the steps of one stage concurrently and waits for all of them.
func (o *Orchestrator) runStage(ctx context.Context, run *types.Run, pending []types.StepType, emit *emitter) ([]StepResult, error) {
	results := make([]StepResult, len(pending))
	if len(pending) == 1 {
		_, res, err := o.runStep(ctx, run, pending[0], emit)
		results[0] = res
		return results, err
	}

	var g errgroup.Group
	for i, st := range pending {
		g.Go(func() error {
			_, res, err := o.runStep(ctx, run, st, emit)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	return results, err
}

// runStep creates a record for the next attempt of st, executes it, and
// persists the outcome along with its snapshot patch and assets.
func (o *Orchestrator) runStep(ctx context.Context, run *types.Run, st types.StepType, emit *emitter) (*types.StepRecord, StepResult, error) {
	// Store writes outlive caller cancellation so the log stays consistent.
	persist := context.WithoutCancel(ctx)
	def, _ := o.pipeline.Definition(st)

	records, err := o.store.ListStepRecords(persist, run.ID, nil)
	if err != nil {
		return nil, StepResult{}, fmt.Errorf("failed to list step records: %w", err)
	}
	latest := steps.LatestRecords(records)

	prior, err := decodePrior(latest)
	if err != nil {
		return nil, StepResult{}, err
	}
	input, err := buildInput(run, st, prior)
	if err != nil {
		return nil, StepResult{}, err
	}
	snapshot, err := toMap(input)
	if err != nil {
		return nil, StepResult{}, fmt.Errorf("failed to snapshot %s input: %w", st, err)
	}

	attempt := 1
	if prev, ok := latest[st]; ok {
		attempt = prev.Attempt + 1
	}
	started := o.now()
	rec := &types.StepRecord{
		RunID:     run.ID,
		Step:      st,
		Attempt:   attempt,
		Status:    types.StepStatusRunning,
		Input:     snapshot,
		StartedAt: &started,
	}
	if err := o.store.CreateStepRecord(persist, rec); err != nil {
		return nil, StepResult{}, fmt.Errorf("failed to create %s record: %w", st, err)
	}
	emit.emit(ProgressEvent{Type: EventStepStarted, Step: st, Category: def.Category, Message: fmt.Sprintf("Running %s (attempt %d)", st, attempt)})

	res, execErr := o.runner.Execute(ctx, st, input)
	if execErr != nil {
		res = failure(st, types.ErrorKindContract, execErr.Error(), time.Since(started))
	}

	completed := o.now()
	if res.Succeeded() {
		if err := o.store.CompleteStepRecord(persist, rec.ID, res.Output, completed); err != nil {
			return rec, res, fmt.Errorf("failed to complete %s record: %w", st, err)
		}
		if err := o.applyEffects(persist, rec, res.Output); err != nil {
			return rec, res, err
		}
		emit.emit(ProgressEvent{Type: EventStepCompleted, Step: st, Category: def.Category, Message: fmt.Sprintf("Completed %s", st), Content: res.Output})
	} else {
		if err := o.store.FailStepRecord(persist, rec.ID, res.ErrorKind, res.Message, completed); err != nil {
			return rec, res, fmt.Errorf("failed to fail %s record: %w", st, err)
		}
		emit.emit(ProgressEvent{Type: EventStepFailed, Step: st, Category: def.Category, Message: res.Message, Content: map[string]any{"error_kind": res.ErrorKind}})
	}

	stored, err := o.store.GetStepRecord(persist, rec.ID)
	if err != nil {
		return rec, res, fmt.Errorf("failed to reload %s record: %w", st, err)
	}
	if stored != nil {
		rec = stored
	}
	return rec, res, execErr
}

func (o *Orchestrator) applyEffects(ctx context.Context, rec *types.StepRecord, output map[string]any) error {
	fx, err := outputEffects(rec, output)
	if err != nil {
		return fmt.Errorf("failed to derive %s effects: %w", rec.Step, err)
	}
	if !fx.patch.IsEmpty() {
		if err := o.store.UpdateRunSnapshot(ctx, rec.RunID, fx.patch); err != nil {
			return fmt.Errorf("failed to update run snapshot: %w", err)
		}
	}
	for i := range fx.assets {
		if err := o.store.CreateAsset(ctx, &fx.assets[i]); err != nil {
			return fmt.Errorf("failed to create %s asset: %w", fx.assets[i].Type, err)
		}
	}
	return nil
}

// finish settles the run. A run completes only when every applicable fatal
// step has a completed latest record; forceFail marks it failed regardless.
func (o *Orchestrator) finish(ctx context.Context, run *types.Run, forceFail bool, emit *emitter) (*types.Run, error) {
	persist := context.WithoutCancel(ctx)

	status := types.RunStatusFailed
	if !forceFail {
		settled, err := o.settledStatus(persist, run)
		if err != nil {
			return nil, err
		}
		status = settled
	}

	if err := o.store.TransitionRun(persist, run.ID, status); err != nil {
		return nil, fmt.Errorf("failed to settle run: %w", err)
	}
	updated, err := o.loadRun(persist, run.ID)
	if err != nil {
		return nil, err
	}

	event := EventRunCompleted
	if status == types.RunStatusFailed {
		event = EventRunFailed
	}
	emit.emit(ProgressEvent{Type: event, Message: fmt.Sprintf("Run %s", status), Content: updated})
	o.logger.Info().Str("run_id", run.ID.String()).Str("status", string(status)).Msg("run settled")
	return updated, nil
}

func (o *Orchestrator) settledStatus(ctx context.Context, run *types.Run) (types.RunStatus, error) {
	records, err := o.store.ListStepRecords(ctx, run.ID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list step records: %w", err)
	}
	latest := steps.LatestRecords(records)

	for _, st := range o.pipeline.Policy().FatalSteps() {
		def, _ := o.pipeline.Definition(st)
		if def.RequiresSourceImage && run.ImageRef == "" {
			continue
		}
		if rec, ok := latest[st]; !ok || rec.Status != types.StepStatusCompleted {
			return types.RunStatusFailed, nil
		}
	}
	return types.RunStatusCompleted, nil
}

// abort marks the run failed after a defect; the defect itself is returned to the caller.
func (o *Orchestrator) abort(ctx context.Context, runID uuid.UUID, cause error, emit *emitter) {
	persist := context.WithoutCancel(ctx)
	o.logger.Error().Err(cause).Str("run_id", runID.String()).Msg("run aborted")

	if err := o.store.TransitionRun(persist, runID, types.RunStatusFailed); err != nil {
		o.logger.Error().Err(err).Str("run_id", runID.String()).Msg("failed to mark run failed")
	}
	emit.emit(ProgressEvent{Type: EventRunFailed, Message: cause.Error()})
}

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/schemas"
	"github.com/jonathan/catalyst/internal/types"
)

// DefaultPoolSize bounds concurrent collaborator calls across all runs
const DefaultPoolSize = 16

// StepResult is the outcome of executing one step
type StepResult struct {
	Step      types.StepType   `json:"step"`
	Status    types.StepStatus `json:"status"`
	Output    map[string]any   `json:"output,omitempty"`
	ErrorKind types.ErrorKind  `json:"error_kind,omitempty"`
	Message   string           `json:"message,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// Succeeded reports whether the step completed
func (r StepResult) Succeeded() bool {
	return r.Status == types.StepStatusCompleted
}

// StepRunner executes a single step against its collaborator.
// Expected failures come back as a failed StepResult; the error return is
// reserved for defects.
type StepRunner interface {
	Execute(ctx context.Context, st types.StepType, input any) (StepResult, error)
}

// Executor dispatches step work onto a bounded worker pool
type Executor struct {
	collaborators Collaborators
	pool          *ants.Pool
	poolSize      int
	timeouts      map[types.StepType]time.Duration
	logger        zerolog.Logger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithTimeouts sets per-step call deadlines
func WithTimeouts(timeouts map[types.StepType]time.Duration) ExecutorOption {
	return func(e *Executor) {
		for st, d := range timeouts {
			e.timeouts[st] = d
		}
	}
}

// WithPoolSize sets the worker pool capacity
func WithPoolSize(size int) ExecutorOption {
	return func(e *Executor) {
		if size > 0 {
			e.poolSize = size
		}
	}
}

// WithExecutorLogger sets the logger
func WithExecutorLogger(logger zerolog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an Executor over the given collaborators
func NewExecutor(collaborators Collaborators, opts ...ExecutorOption) (*Executor, error) {
	e := &Executor{
		collaborators: collaborators,
		poolSize:      DefaultPoolSize,
		timeouts:      make(map[types.StepType]time.Duration),
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	pool, err := ants.NewPool(e.poolSize, ants.WithPanicHandler(func(p any) {
		e.logger.Error().Interface("panic", p).Msg("step worker panicked")
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	e.pool = pool
	return e, nil
}

// Release stops the worker pool
func (e *Executor) Release() {
	e.pool.Release()
}

type callOutcome struct {
	output   any
	err      error
	panicked any
}

// Execute runs st's collaborator with input and classifies the outcome
func (e *Executor) Execute(ctx context.Context, st types.StepType, input any) (StepResult, error) {
	collab, ok := e.collaborators[st]
	if !ok {
		return StepResult{}, fmt.Errorf("%w: no collaborator registered for %s", ErrContractViolation, st)
	}

	var callCtx context.Context
	var cancel context.CancelFunc
	if timeout := e.timeouts[st]; timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	done := make(chan callOutcome, 1)
	if err := e.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callOutcome{panicked: r}
			}
		}()
		out, err := collab.Run(callCtx, input)
		done <- callOutcome{output: out, err: err}
	}); err != nil {
		return StepResult{}, fmt.Errorf("failed to dispatch %s: %w", st, err)
	}

	var outcome callOutcome
	select {
	case outcome = <-done:
	case <-callCtx.Done():
		outcome = callOutcome{err: callCtx.Err()}
	}
	elapsed := time.Since(start)

	if outcome.panicked != nil {
		return StepResult{}, fmt.Errorf("%w: %s collaborator panicked: %v", ErrContractViolation, st, outcome.panicked)
	}
	if outcome.err != nil {
		if errors.Is(outcome.err, ErrContractViolation) {
			return StepResult{}, outcome.err
		}
		kind := Classify(outcome.err)
		e.logger.Warn().Str("step", string(st)).Str("kind", string(kind)).Err(outcome.err).Msg("step failed")
		return failure(st, kind, outcome.err.Error(), elapsed), nil
	}

	data, err := json.Marshal(outcome.output)
	if err != nil {
		return failure(st, types.ErrorKindMalformedOutput, fmt.Sprintf("output is not serializable: %v", err), elapsed), nil
	}
	if err := schemas.ValidateStepOutput(string(st), data); err != nil {
		var validationErr *schemas.ValidationError
		if errors.As(err, &validationErr) {
			return failure(st, types.ErrorKindMalformedOutput, validationErr.Summary(), elapsed), nil
		}
		return StepResult{}, err
	}

	var output map[string]any
	if err := json.Unmarshal(data, &output); err != nil || output == nil {
		return failure(st, types.ErrorKindMalformedOutput, "output is not a JSON object", elapsed), nil
	}

	e.logger.Debug().Str("step", string(st)).Dur("duration", elapsed).Msg("step completed")
	return StepResult{
		Step:     st,
		Status:   types.StepStatusCompleted,
		Output:   output,
		Duration: elapsed,
	}, nil
}

func failure(st types.StepType, kind types.ErrorKind, message string, d time.Duration) StepResult {
	return StepResult{
		Step:      st,
		Status:    types.StepStatusFailed,
		ErrorKind: kind,
		Message:   message,
		Duration:  d,
	}
}

// Classify maps a collaborator error to the error kind recorded on the step
func Classify(err error) types.ErrorKind {
	var collabErr *types.CollaboratorError
	if errors.As(err, &collabErr) {
		return collabErr.Kind
	}

	var missing *config.MissingSettingError
	switch {
	case errors.As(err, &missing):
		return types.ErrorKindMissingCredential
	case errors.Is(err, context.DeadlineExceeded):
		return types.ErrorKindTimeout
	case errors.Is(err, context.Canceled):
		return types.ErrorKindCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return types.ErrorKindTimeout
		}
		return types.ErrorKindNetwork
	}
	return types.ErrorKindUpstream
}

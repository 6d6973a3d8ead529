package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/catalyst/internal/types"
)

// EventType names a progress event
type EventType string

// Progress event types
const (
	EventRunStarted    EventType = "run_started"
	EventStepStarted   EventType = "step_started"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventStepSkipped   EventType = "step_skipped"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Type     EventType      `json:"type"`
	RunID    string         `json:"run_id"`
	Step     types.StepType `json:"step,omitempty"`
	Category string         `json:"category,omitempty"`
	Message  string         `json:"message"`
	Content  any            `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// emitter serializes callback invocations; concurrent steps in one stage
// report through the same callback.
type emitter struct {
	mu    sync.Mutex
	runID string
	fn    ProgressCallback
}

func newEmitter(runID uuid.UUID, fn ProgressCallback) *emitter {
	return &emitter{runID: runID.String(), fn: fn}
}

func (e *emitter) emit(event ProgressEvent) {
	if e == nil || e.fn == nil {
		return
	}
	event.RunID = e.runID
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fn(event)
}

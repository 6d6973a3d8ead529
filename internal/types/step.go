package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StepType names one unit of work in the campaign pipeline
type StepType string

// Pipeline step types
const (
	StepCategoryDetection     StepType = "category_detection"
	StepVisionAnalysis        StepType = "vision_analysis"
	StepCompetitorAnalysis    StepType = "competitor_analysis"
	StepEmotionalAnalysis     StepType = "emotional_analysis"
	StepHookGeneration        StepType = "hook_generation"
	StepMarketResearch        StepType = "market_research"
	StepVideoGeneration       StepType = "video_generation"
	StepPosterGeneration      StepType = "poster_generation"
	StepContentGeneration     StepType = "content_generation"
	StepPerformancePrediction StepType = "performance_prediction"
	StepSocialPublishing      StepType = "social_publishing"
	StepImageGeneration       StepType = "image_generation"
)

// AllStepTypes lists every step type in pipeline order
var AllStepTypes = []StepType{
	StepCategoryDetection,
	StepVisionAnalysis,
	StepCompetitorAnalysis,
	StepEmotionalAnalysis,
	StepHookGeneration,
	StepMarketResearch,
	StepVideoGeneration,
	StepPosterGeneration,
	StepContentGeneration,
	StepPerformancePrediction,
	StepSocialPublishing,
	StepImageGeneration,
}

// ParseStepType validates a step name
func ParseStepType(name string) (StepType, error) {
	for _, st := range AllStepTypes {
		if string(st) == name {
			return st, nil
		}
	}
	// accepted alias for the publishing step
	if name == "social_media_publishing" {
		return StepSocialPublishing, nil
	}
	return "", fmt.Errorf("unknown step type: %s", name)
}

// StepStatus is the lifecycle state of a step record
type StepStatus string

// Step status constants
const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed
}

// StepRecord is the durable log entry for one execution attempt of a step
type StepRecord struct {
	ID           uuid.UUID      `json:"id"`
	RunID        uuid.UUID      `json:"run_id"`
	Step         StepType       `json:"step"`
	Attempt      int            `json:"attempt"`
	Status       StepStatus     `json:"status"`
	Input        map[string]any `json:"input,omitempty"`
	Output       map[string]any `json:"output,omitempty"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   *int           `json:"duration_ms,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// StepRecordFilters narrows step record listings
type StepRecordFilters struct {
	Step   *StepType
	Status *StepStatus
}

// ErrorKind classifies why a step failed
type ErrorKind string

// Error kinds recorded on failed step records
const (
	ErrorKindNetwork           ErrorKind = "network"
	ErrorKindTimeout           ErrorKind = "timeout"
	ErrorKindMalformedOutput   ErrorKind = "malformed_output"
	ErrorKindMissingCredential ErrorKind = "missing_credential"
	ErrorKindUpstream          ErrorKind = "upstream"
	ErrorKindCancelled         ErrorKind = "cancelled"
	ErrorKindContract          ErrorKind = "contract_violation"
)

// CollaboratorError is an expected failure reported by an external collaborator
type CollaboratorError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CollaboratorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Cause
}

// NewCollaboratorError builds a CollaboratorError
func NewCollaboratorError(kind ErrorKind, message string, cause error) *CollaboratorError {
	return &CollaboratorError{Kind: kind, Message: message, Cause: cause}
}

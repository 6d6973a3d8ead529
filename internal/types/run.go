// Package types provides type definitions for structured data used throughout the campaign orchestrator.
package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the aggregate status of a campaign run
type RunStatus string

// Run status constants
const (
	RunStatusCreated    RunStatus = "created"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// IsTerminal reports whether the status is completed or failed
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// CanTransition reports whether a run may move from s to next.
// Terminal runs only leave their state through retry/resume, which move them back to processing.
func (s RunStatus) CanTransition(next RunStatus) bool {
	switch s {
	case RunStatusCreated:
		return next == RunStatusProcessing
	case RunStatusProcessing:
		return next == RunStatusCompleted || next == RunStatusFailed
	case RunStatusCompleted, RunStatusFailed:
		return next == RunStatusProcessing
	default:
		return false
	}
}

// Platform identifies a social publishing target
type Platform string

// Supported publishing platforms
const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformMeta      Platform = "meta"
	PlatformInstagram Platform = "instagram"
)

// DefaultPlatforms is the platform set used when a request names none
var DefaultPlatforms = []Platform{PlatformLinkedIn, PlatformMeta, PlatformInstagram}

// Run is one end-to-end campaign generation request and its accumulated state
type Run struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	ProductName string    `json:"product_name"`
	Description string    `json:"description,omitempty"`
	ImageRef    string    `json:"image_ref,omitempty"`

	BrandName      string     `json:"brand_name,omitempty"`
	Price          string     `json:"price,omitempty"`
	CampaignGoal   string     `json:"campaign_goal,omitempty"`
	TargetAudience string     `json:"target_audience,omitempty"`
	BrandPersona   string     `json:"brand_persona,omitempty"`
	Platforms      []Platform `json:"platforms,omitempty"`

	Status RunStatus `json:"status"`
	RunSnapshot

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunSnapshot mirrors the latest successful outputs of the enrichment steps
type RunSnapshot struct {
	Category            string         `json:"category,omitempty"`
	Subcategory         string         `json:"subcategory,omitempty"`
	CategoryConfidence  *float64       `json:"category_confidence,omitempty"`
	CompetitorSnapshot  map[string]any `json:"competitor_snapshot,omitempty"`
	EmotionalSnapshot   map[string]any `json:"emotional_snapshot,omitempty"`
	HookSnapshot        map[string]any `json:"hook_snapshot,omitempty"`
	PerformanceSnapshot map[string]any `json:"performance_snapshot,omitempty"`
}

// SnapshotPatch is a partial update of a RunSnapshot; nil fields are left unchanged
type SnapshotPatch struct {
	Category           *string
	Subcategory        *string
	CategoryConfidence *float64
	Competitor         map[string]any
	Emotional          map[string]any
	Hook               map[string]any
	Performance        map[string]any
}

// IsEmpty reports whether the patch changes nothing
func (p SnapshotPatch) IsEmpty() bool {
	return p.Category == nil && p.Subcategory == nil && p.CategoryConfidence == nil &&
		p.Competitor == nil && p.Emotional == nil && p.Hook == nil && p.Performance == nil
}

// Apply writes the non-nil fields of the patch onto s
func (p SnapshotPatch) Apply(s *RunSnapshot) {
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Subcategory != nil {
		s.Subcategory = *p.Subcategory
	}
	if p.CategoryConfidence != nil {
		v := *p.CategoryConfidence
		s.CategoryConfidence = &v
	}
	if p.Competitor != nil {
		s.CompetitorSnapshot = p.Competitor
	}
	if p.Emotional != nil {
		s.EmotionalSnapshot = p.Emotional
	}
	if p.Hook != nil {
		s.HookSnapshot = p.Hook
	}
	if p.Performance != nil {
		s.PerformanceSnapshot = p.Performance
	}
}

// RunFilters narrows run listings
type RunFilters struct {
	OwnerID *uuid.UUID
	Status  *RunStatus
	Limit   int
}

// ErrNotFound is returned by stores when a mutation targets a missing row
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a run status change violates the run state machine
var ErrInvalidTransition = errors.New("invalid run status transition")

// SourceStatuses returns the statuses from which a run may move to next
func SourceStatuses(next RunStatus) []RunStatus {
	var from []RunStatus
	for _, s := range []RunStatus{RunStatusCreated, RunStatusProcessing, RunStatusCompleted, RunStatusFailed} {
		if s.CanTransition(next) {
			from = append(from, s)
		}
	}
	return from
}

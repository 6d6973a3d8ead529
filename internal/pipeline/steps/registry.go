// Package steps provides the static pipeline definition: which steps exist, what
// each depends on, which run concurrently, and which failures are fatal.
package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonathan/catalyst/internal/types"
)

// Step categories group steps by the kind of collaborator they call
const (
	CategoryAnalysis   = "analysis"
	CategoryResearch   = "research"
	CategoryMedia      = "media"
	CategoryContent    = "content"
	CategoryPublishing = "publishing"
)

// StepDefinition defines metadata for a pipeline step
type StepDefinition struct {
	Type     types.StepType
	Category string

	// Dependencies must have a completed record before the step may run.
	Dependencies []types.StepType

	// Optional dependencies are substituted with their empty value when absent or failed.
	Optional []types.StepType

	// Stage orders execution; steps sharing a stage run concurrently.
	Stage int

	// RequiresSourceImage skips the step entirely when the run has no image.
	RequiresSourceImage bool
}

// StepRegistry holds all step definitions
var StepRegistry = map[types.StepType]StepDefinition{
	types.StepCategoryDetection: {
		Type:     types.StepCategoryDetection,
		Category: CategoryAnalysis,
		Stage:    1,
	},
	types.StepVisionAnalysis: {
		Type:     types.StepVisionAnalysis,
		Category: CategoryAnalysis,
		Optional: []types.StepType{types.StepCategoryDetection},
		Stage:    2,
	},
	types.StepCompetitorAnalysis: {
		Type:         types.StepCompetitorAnalysis,
		Category:     CategoryAnalysis,
		Dependencies: []types.StepType{types.StepVisionAnalysis},
		Optional:     []types.StepType{types.StepCategoryDetection},
		Stage:        3,
	},
	types.StepEmotionalAnalysis: {
		Type:         types.StepEmotionalAnalysis,
		Category:     CategoryAnalysis,
		Dependencies: []types.StepType{types.StepVisionAnalysis},
		Optional:     []types.StepType{types.StepCategoryDetection},
		Stage:        4,
	},
	types.StepHookGeneration: {
		Type:         types.StepHookGeneration,
		Category:     CategoryAnalysis,
		Dependencies: []types.StepType{types.StepVisionAnalysis},
		Optional:     []types.StepType{types.StepEmotionalAnalysis, types.StepCompetitorAnalysis},
		Stage:        5,
	},
	types.StepMarketResearch: {
		Type:         types.StepMarketResearch,
		Category:     CategoryResearch,
		Dependencies: []types.StepType{types.StepVisionAnalysis},
		Optional:     []types.StepType{types.StepCategoryDetection},
		Stage:        6,
	},
	types.StepVideoGeneration: {
		Type:         types.StepVideoGeneration,
		Category:     CategoryMedia,
		Dependencies: []types.StepType{types.StepVisionAnalysis, types.StepMarketResearch},
		Optional:     []types.StepType{types.StepHookGeneration, types.StepEmotionalAnalysis},
		Stage:        7,
	},
	types.StepPosterGeneration: {
		Type:         types.StepPosterGeneration,
		Category:     CategoryMedia,
		Dependencies: []types.StepType{types.StepVisionAnalysis, types.StepMarketResearch},
		Optional:     []types.StepType{types.StepHookGeneration, types.StepEmotionalAnalysis},
		Stage:        7,
	},
	types.StepContentGeneration: {
		Type:         types.StepContentGeneration,
		Category:     CategoryContent,
		Dependencies: []types.StepType{types.StepVisionAnalysis, types.StepMarketResearch},
		Optional:     []types.StepType{types.StepHookGeneration},
		Stage:        8,
	},
	types.StepPerformancePrediction: {
		Type:         types.StepPerformancePrediction,
		Category:     CategoryContent,
		Dependencies: []types.StepType{types.StepContentGeneration},
		Optional:     []types.StepType{types.StepEmotionalAnalysis},
		Stage:        9,
	},
	types.StepSocialPublishing: {
		Type:         types.StepSocialPublishing,
		Category:     CategoryPublishing,
		Dependencies: []types.StepType{types.StepContentGeneration},
		Optional:     []types.StepType{types.StepVideoGeneration, types.StepPosterGeneration},
		Stage:        10,
	},
	types.StepImageGeneration: {
		Type:                types.StepImageGeneration,
		Category:            CategoryMedia,
		Dependencies:        []types.StepType{types.StepVisionAnalysis, types.StepMarketResearch},
		Stage:               11,
		RequiresSourceImage: true,
	},
}

// Pipeline is the dependency graph plus the fatal/non-fatal policy table
type Pipeline struct {
	registry map[types.StepType]StepDefinition
	stages   [][]types.StepType
	policy   Policy
}

// Default returns the standard campaign pipeline with the default policy
func Default() *Pipeline {
	p, err := New(StepRegistry, DefaultPolicy())
	if err != nil {
		panic(fmt.Sprintf("invalid default pipeline: %v", err))
	}
	return p
}

// New builds a pipeline from step definitions, rejecting graphs where a step
// depends on a step that does not run in an earlier stage.
func New(registry map[types.StepType]StepDefinition, policy Policy) (*Pipeline, error) {
	byStage := make(map[int][]types.StepType)
	for st, def := range registry {
		if def.Type != st {
			return nil, fmt.Errorf("step %s registered under %s", def.Type, st)
		}
		deps := append(append([]types.StepType{}, def.Dependencies...), def.Optional...)
		for _, dep := range deps {
			depDef, ok := registry[dep]
			if !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %s", st, dep)
			}
			if depDef.Stage >= def.Stage {
				return nil, fmt.Errorf("step %s (stage %d) depends on %s (stage %d) which does not run earlier",
					st, def.Stage, dep, depDef.Stage)
			}
		}
		byStage[def.Stage] = append(byStage[def.Stage], st)
	}
	for st := range policy.fatal {
		if _, ok := registry[st]; !ok {
			return nil, fmt.Errorf("policy marks unknown step %s as fatal", st)
		}
	}

	stageNums := make([]int, 0, len(byStage))
	for n := range byStage {
		stageNums = append(stageNums, n)
	}
	sort.Ints(stageNums)

	stages := make([][]types.StepType, 0, len(stageNums))
	for _, n := range stageNums {
		group := byStage[n]
		sort.Slice(group, func(i, j int) bool { return group[i] < group[j] })
		stages = append(stages, group)
	}

	return &Pipeline{registry: registry, stages: stages, policy: policy}, nil
}

// Stages returns step groups in execution order
func (p *Pipeline) Stages() [][]types.StepType {
	return p.stages
}

// Definition looks up a step definition
func (p *Pipeline) Definition(st types.StepType) (StepDefinition, bool) {
	def, ok := p.registry[st]
	return def, ok
}

// IsFatal reports whether a failure of st halts the run
func (p *Pipeline) IsFatal(st types.StepType) bool {
	return p.policy.IsFatal(st)
}

// Policy returns the fatal/non-fatal policy table
func (p *Pipeline) Policy() Policy {
	return p.policy
}

// Len returns the number of steps in the pipeline
func (p *Pipeline) Len() int {
	return len(p.registry)
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Step                types.StepType
	MissingDependencies []types.StepType
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("step %s has missing dependencies: %v", e.Step, e.MissingDependencies)
}

// RecordLister reads step records for a run
type RecordLister interface {
	ListStepRecords(ctx context.Context, runID uuid.UUID, filters *types.StepRecordFilters) ([]types.StepRecord, error)
}

// LatestRecords returns the most recent record per step type
func LatestRecords(records []types.StepRecord) map[types.StepType]types.StepRecord {
	latest := make(map[types.StepType]types.StepRecord, len(records))
	for _, rec := range records {
		cur, ok := latest[rec.Step]
		if !ok || rec.Attempt > cur.Attempt || (rec.Attempt == cur.Attempt && rec.CreatedAt.After(cur.CreatedAt)) {
			latest[rec.Step] = rec
		}
	}
	return latest
}

// CheckDependencies verifies every hard dependency of st has a completed latest record.
// A hard dependency outside the fatal tier degrades to an empty input instead of blocking.
func (p *Pipeline) CheckDependencies(latest map[types.StepType]types.StepRecord, st types.StepType) error {
	def, ok := p.registry[st]
	if !ok {
		return fmt.Errorf("unknown step: %s", st)
	}

	var missing []types.StepType
	for _, dep := range def.Dependencies {
		if !p.policy.IsFatal(dep) {
			continue
		}
		rec, ok := latest[dep]
		if !ok || rec.Status != types.StepStatusCompleted {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{Step: st, MissingDependencies: missing}
	}
	return nil
}

// ValidateDependencies checks if all required dependencies for a step are completed
func (p *Pipeline) ValidateDependencies(ctx context.Context, store RecordLister, runID uuid.UUID, st types.StepType) error {
	records, err := store.ListStepRecords(ctx, runID, nil)
	if err != nil {
		return fmt.Errorf("failed to list step records: %w", err)
	}
	return p.CheckDependencies(LatestRecords(records), st)
}

// settled reports whether st needs no further execution: its latest record is
// completed or running, or it needs a source image the run does not have.
func (p *Pipeline) settled(latest map[types.StepType]types.StepRecord, st types.StepType, hasImage bool) bool {
	if p.registry[st].RequiresSourceImage && !hasImage {
		return true
	}
	rec, ok := latest[st]
	return ok && (rec.Status == types.StepStatusCompleted || rec.Status == types.StepStatusRunning)
}

// AvailableSteps returns steps whose dependencies are met and whose latest record is
// not completed or running. Steps needing a source image are left out when hasImage is false.
func (p *Pipeline) AvailableSteps(latest map[types.StepType]types.StepRecord, hasImage bool) []types.StepType {
	var available []types.StepType
	for _, stage := range p.stages {
		for _, st := range stage {
			if p.settled(latest, st, hasImage) {
				continue
			}
			if p.CheckDependencies(latest, st) == nil {
				available = append(available, st)
			}
		}
	}
	return available
}

// BlockedSteps returns steps that cannot run yet because a dependency is not completed
func (p *Pipeline) BlockedSteps(latest map[types.StepType]types.StepRecord, hasImage bool) []types.StepType {
	var blocked []types.StepType
	for _, stage := range p.stages {
		for _, st := range stage {
			if p.settled(latest, st, hasImage) {
				continue
			}
			if p.CheckDependencies(latest, st) != nil {
				blocked = append(blocked, st)
			}
		}
	}
	return blocked
}

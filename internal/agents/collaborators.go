package agents

import (
	"context"

	"github.com/jonathan/catalyst/internal/pipeline"
	"github.com/jonathan/catalyst/internal/types"
)

// Researcher performs the market research step
type Researcher interface {
	Research(ctx context.Context, in *types.MarketResearchInput) (*types.MarketResearchResult, error)
}

// Reconciler performs the social publishing step
type Reconciler interface {
	Reconcile(ctx context.Context, in *types.PublishingInput) (*types.PublishingResult, error)
}

// Set groups the collaborators backing every step. A nil member leaves its
// steps bound to a collaborator that fails with Unconfigured.
type Set struct {
	Analyst      *Analyst
	Studio       *Studio
	Researcher   Researcher
	Reconciler   Reconciler
	Unconfigured map[types.StepType]error
}

// Collaborators binds every step type to its collaborator
func (s Set) Collaborators() pipeline.Collaborators {
	c := pipeline.Collaborators{}
	if a := s.Analyst; a != nil && a.client != nil {
		c[types.StepCategoryDetection] = pipeline.Adapt(a.DetectCategory)
		c[types.StepVisionAnalysis] = pipeline.Adapt(a.AnalyzeVision)
		c[types.StepCompetitorAnalysis] = pipeline.Adapt(a.AnalyzeCompetitors)
		c[types.StepEmotionalAnalysis] = pipeline.Adapt(a.AnalyzeEmotions)
		c[types.StepHookGeneration] = pipeline.Adapt(a.GenerateHooks)
		c[types.StepContentGeneration] = pipeline.Adapt(a.GenerateContent)
		c[types.StepPerformancePrediction] = pipeline.Adapt(a.PredictPerformance)
	}
	if st := s.Studio; st != nil {
		c[types.StepVideoGeneration] = pipeline.Adapt(st.GenerateVideo)
		c[types.StepPosterGeneration] = pipeline.Adapt(st.GeneratePoster)
		c[types.StepImageGeneration] = pipeline.Adapt(st.GenerateImage)
	}
	if s.Researcher != nil {
		c[types.StepMarketResearch] = pipeline.Adapt(s.Researcher.Research)
	}
	if s.Reconciler != nil {
		c[types.StepSocialPublishing] = pipeline.Adapt(s.Reconciler.Reconcile)
	}

	for _, st := range types.AllStepTypes {
		if _, ok := c[st]; ok {
			continue
		}
		err := s.Unconfigured[st]
		if err == nil {
			err = types.NewCollaboratorError(types.ErrorKindMissingCredential, string(st)+" is not configured", nil)
		}
		c[st] = Unavailable(err)
	}
	return c
}

type unavailable struct{ err error }

// Unavailable returns a collaborator that always fails with err
func Unavailable(err error) pipeline.Collaborator {
	return unavailable{err: err}
}

func (u unavailable) Run(context.Context, any) (any, error) {
	return nil, u.err
}

package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/catalyst/internal/types"
)

// priorOutputs holds the decoded output of the latest completed record of
// each upstream step. A step that failed or never ran leaves its zero value.
type priorOutputs struct {
	category   types.CategoryResult
	vision     types.VisionResult
	competitor types.CompetitorResult
	emotional  types.EmotionalResult
	hooks      types.HookResult
	market     types.MarketResearchResult
	video      *types.VideoResult
	poster     *types.PosterResult
	content    types.ContentResult
}

func decodePrior(latest map[types.StepType]types.StepRecord) (*priorOutputs, error) {
	p := &priorOutputs{}
	var video types.VideoResult
	var poster types.PosterResult

	targets := map[types.StepType]any{
		types.StepCategoryDetection:  &p.category,
		types.StepVisionAnalysis:     &p.vision,
		types.StepCompetitorAnalysis: &p.competitor,
		types.StepEmotionalAnalysis:  &p.emotional,
		types.StepHookGeneration:     &p.hooks,
		types.StepMarketResearch:     &p.market,
		types.StepVideoGeneration:    &video,
		types.StepPosterGeneration:   &poster,
		types.StepContentGeneration:  &p.content,
	}

	for st, target := range targets {
		rec, ok := latest[st]
		if !ok || rec.Status != types.StepStatusCompleted {
			continue
		}
		if err := decodeOutput(rec.Output, target); err != nil {
			return nil, fmt.Errorf("failed to decode %s output: %w", st, err)
		}
	}

	if p.category.Category == "" {
		p.category.Category = types.DefaultCategory
	}
	if video.VideoRef != "" {
		p.video = &video
	}
	if poster.PosterRef != "" {
		p.poster = &poster
	}
	return p, nil
}

func (p *priorOutputs) product(run *types.Run) types.ProductContext {
	return types.ProductContext{
		Name:        run.ProductName,
		Description: run.Description,
		BrandName:   run.BrandName,
		Price:       run.Price,
		Category:    p.category.Category,
		ImageRef:    run.ImageRef,
		Vision:      p.vision,
	}
}

// buildInput assembles the typed input for st from the run and prior outputs.
func buildInput(run *types.Run, st types.StepType, p *priorOutputs) (any, error) {
	switch st {
	case types.StepCategoryDetection:
		return &types.CategoryInput{
			ProductName: run.ProductName,
			Description: run.Description,
			ImageRef:    run.ImageRef,
		}, nil
	case types.StepVisionAnalysis:
		return &types.VisionInput{
			ProductName: run.ProductName,
			Description: run.Description,
			ImageRef:    run.ImageRef,
			Category:    p.category,
		}, nil
	case types.StepCompetitorAnalysis:
		return &types.CompetitorInput{
			ProductName: run.ProductName,
			Category:    p.category,
			Vision:      p.vision,
		}, nil
	case types.StepEmotionalAnalysis:
		return &types.EmotionalInput{Product: p.product(run), Category: p.category}, nil
	case types.StepHookGeneration:
		return &types.HookInput{
			Product:    p.product(run),
			Emotional:  p.emotional,
			Competitor: p.competitor,
		}, nil
	case types.StepMarketResearch:
		return &types.MarketResearchInput{
			ProductName: run.ProductName,
			BrandName:   run.BrandName,
			Category:    p.category.Category,
			Vision:      p.vision,
		}, nil
	case types.StepVideoGeneration, types.StepPosterGeneration, types.StepImageGeneration:
		return &types.MediaInput{
			Product:   p.product(run),
			Hooks:     p.hooks,
			Emotional: p.emotional,
			Market:    p.market,
		}, nil
	case types.StepContentGeneration:
		return &types.ContentInput{
			Product: p.product(run),
			Market:  p.market,
			Hooks:   p.hooks,
			Strategy: types.CampaignStrategy{
				Goal:     run.CampaignGoal,
				Audience: run.TargetAudience,
				Persona:  run.BrandPersona,
			},
		}, nil
	case types.StepPerformancePrediction:
		return &types.PredictionInput{Content: p.content, Emotional: p.emotional}, nil
	case types.StepSocialPublishing:
		platforms := run.Platforms
		if len(platforms) == 0 {
			platforms = types.DefaultPlatforms
		}
		return &types.PublishingInput{
			Content:   p.content,
			Video:     p.video,
			Poster:    p.poster,
			Platforms: platforms,
		}, nil
	default:
		return nil, fmt.Errorf("%w: no input binding for step %s", ErrContractViolation, st)
	}
}

// effects is what a completed step writes beyond its own record.
type effects struct {
	patch  types.SnapshotPatch
	assets []types.Asset
}

// outputEffects derives the run snapshot patch and the assets owned by a
// completed step record.
func outputEffects(rec *types.StepRecord, output map[string]any) (effects, error) {
	var fx effects
	newAsset := func(assetType types.AssetType, content map[string]any, fileRef string) types.Asset {
		recordID := rec.ID
		return types.Asset{
			ID:           uuid.New(),
			RunID:        rec.RunID,
			StepRecordID: &recordID,
			Type:         assetType,
			Content:      content,
			FileRef:      fileRef,
		}
	}

	switch rec.Step {
	case types.StepCategoryDetection:
		var res types.CategoryResult
		if err := decodeOutput(output, &res); err != nil {
			return fx, err
		}
		fx.patch.Category = &res.Category
		fx.patch.Subcategory = &res.Subcategory
		fx.patch.CategoryConfidence = &res.Confidence
	case types.StepCompetitorAnalysis:
		fx.patch.Competitor = output
	case types.StepEmotionalAnalysis:
		fx.patch.Emotional = output
	case types.StepHookGeneration:
		fx.patch.Hook = output
	case types.StepPerformancePrediction:
		fx.patch.Performance = output
	case types.StepContentGeneration:
		var res types.ContentResult
		if err := decodeOutput(output, &res); err != nil {
			return fx, err
		}
		for _, a := range []struct {
			assetType types.AssetType
			content   any
		}{
			{types.AssetLinkedInPost, res.LinkedInPost},
			{types.AssetMetaPost, res.MetaPost},
			{types.AssetBlogPost, res.BlogPost},
		} {
			content, err := toMap(a.content)
			if err != nil {
				return fx, err
			}
			fx.assets = append(fx.assets, newAsset(a.assetType, content, ""))
		}
	case types.StepVideoGeneration:
		var res types.VideoResult
		if err := decodeOutput(output, &res); err != nil {
			return fx, err
		}
		fx.assets = append(fx.assets, newAsset(types.AssetVideoShort, map[string]any{
			"script":           res.Script,
			"task_id":          res.TaskID,
			"duration_seconds": res.DurationSeconds,
		}, res.VideoRef))
	case types.StepPosterGeneration:
		var res types.PosterResult
		if err := decodeOutput(output, &res); err != nil {
			return fx, err
		}
		fx.assets = append(fx.assets, newAsset(types.AssetImagePoster, map[string]any{"prompt": res.Prompt}, res.PosterRef))
	case types.StepImageGeneration:
		var res types.ImageResult
		if err := decodeOutput(output, &res); err != nil {
			return fx, err
		}
		fx.assets = append(fx.assets, newAsset(types.AssetImageMarketing, map[string]any{"prompt": res.Prompt}, res.ImageRef))
	}
	return fx, nil
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func decodeOutput(output map[string]any, target any) error {
	data, err := json.Marshal(output)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

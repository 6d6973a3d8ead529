package agents

import (
	"context"
	"strings"

	"github.com/jonathan/catalyst/internal/llm"
	"github.com/jonathan/catalyst/internal/prompts"
	"github.com/jonathan/catalyst/internal/types"
)

var contentSchema = llm.OutputSchema{
	Name: "ContentResult",
	Fields: []llm.SchemaField{
		{Name: "linkedin_post", Type: `{"title": "string", "content": "string", "hashtags": ["string"]}`, Required: true},
		{Name: "meta_post", Type: `{"caption": "string", "hashtags": ["string"]}`, Required: true},
		{Name: "blog_post", Type: `{"title": "string", "content": "string", "seo_keywords": ["string"]}`, Required: true},
	},
	Rules: []string{
		"Hashtags are single words without the # sign.",
		"Do not invent prices, specifications or reviews that are not in the input.",
	},
}

var predictionSchema = llm.OutputSchema{
	Name: "PredictionResult",
	Fields: []llm.SchemaField{
		{Name: "engagement_score", Type: "number", Description: "0 to 100", Required: true},
		{Name: "platform_scores", Type: `{"linkedin": number, "meta": number, "blog": number}`},
		{Name: "recommendations", Type: `["string"]`, Description: "concrete improvements"},
	},
}

const maxPromptReviews = 5

// GenerateContent writes the LinkedIn, Meta and blog copy for the campaign
func (a *Analyst) GenerateContent(ctx context.Context, in *types.ContentInput) (*types.ContentResult, error) {
	if err := requireProduct(in.Product.Name); err != nil {
		return nil, err
	}
	category := orDefault(in.Product.Category, types.DefaultCategory)
	hooks := make([]string, 0, len(in.Hooks.Hooks))
	for _, h := range in.Hooks.Hooks {
		hooks = append(hooks, h.Text)
	}
	reviews := in.Market.Reviews
	if len(reviews) > maxPromptReviews {
		reviews = reviews[:maxPromptReviews]
	}
	features := in.Product.Vision.Features
	if len(features) == 0 {
		features = in.Market.Features
	}

	prompt, err := buildPrompt("content.json", "content", map[string]string{
		"Persona":       orDefault(in.Strategy.Persona, types.DefaultBrandPersona),
		"Goal":          orDefault(in.Strategy.Goal, types.DefaultCampaignGoal),
		"Audience":      orDefault(in.Strategy.Audience, orDefault(in.Product.Vision.TargetAudience, types.DefaultTargetAudience)),
		"Tone":          prompts.ForCategory("tone", category),
		"ProductName":   in.Product.Name,
		"BrandName":     orDefault(in.Product.BrandName, types.DefaultBrandName),
		"Price":         orDefault(in.Product.Price, "not provided"),
		"Category":      category,
		"Description":   orDefault(in.Product.Description, orDefault(in.Product.Vision.Summary, "not provided")),
		"Features":      joinList(features),
		"BestHook":      orDefault(bestHook(in.Hooks), "not available"),
		"Hooks":         joinList(hooks),
		"MarketSummary": orDefault(in.Market.Summary, "not available"),
		"Reviews":       joinList(reviews),
	}, contentSchema)
	if err != nil {
		return nil, err
	}

	var out types.ContentResult
	if err := generate(ctx, a.client, prompt, llm.TierAdvanced, &out); err != nil {
		return nil, err
	}
	out.LinkedInPost.Hashtags = cleanTags(out.LinkedInPost.Hashtags)
	out.MetaPost.Hashtags = cleanTags(out.MetaPost.Hashtags)
	out.BlogPost.SEOKeywords = cleanList(out.BlogPost.SEOKeywords)
	if strings.TrimSpace(out.LinkedInPost.Content) == "" && strings.TrimSpace(out.MetaPost.Caption) == "" && strings.TrimSpace(out.BlogPost.Content) == "" {
		return nil, types.NewCollaboratorError(types.ErrorKindMalformedOutput, "content generation returned no copy", nil)
	}
	return &out, nil
}

// PredictPerformance scores the generated copy. The result is advisory.
func (a *Analyst) PredictPerformance(ctx context.Context, in *types.PredictionInput) (*types.PredictionResult, error) {
	c := in.Content
	if c.LinkedInPost.Content == "" && c.MetaPost.Caption == "" && c.BlogPost.Content == "" {
		return nil, types.NewCollaboratorError(types.ErrorKindContract, "no content to score", nil)
	}
	prompt, err := buildPrompt("analysis.json", "prediction", map[string]string{
		"LinkedInTitle":   orDefault(c.LinkedInPost.Title, "none"),
		"LinkedInContent": orDefault(c.LinkedInPost.Content, "none"),
		"MetaCaption":     orDefault(c.MetaPost.Caption, "none"),
		"BlogTitle":       orDefault(c.BlogPost.Title, "none"),
		"Emotion":         orDefault(in.Emotional.PrimaryEmotion, "not available"),
	}, predictionSchema)
	if err != nil {
		return nil, err
	}

	var out types.PredictionResult
	if err := generate(ctx, a.client, prompt, llm.TierLite, &out); err != nil {
		return nil, err
	}
	out.EngagementScore = clamp(out.EngagementScore, 0, 100)
	for platform, score := range out.PlatformScores {
		out.PlatformScores[platform] = clamp(score, 0, 100)
	}
	out.Recommendations = cleanList(out.Recommendations)
	return &out, nil
}

// cleanTags trims, strips leading '#' and drops duplicates
func cleanTags(tags []string) []string {
	for i, t := range tags {
		tags[i] = strings.TrimLeft(strings.TrimSpace(t), "#")
	}
	return cleanList(tags)
}

func cleanList(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		key := strings.ToLower(item)
		if item == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

package agents

import (
	"context"
	"strings"

	"github.com/jonathan/catalyst/internal/llm"
	"github.com/jonathan/catalyst/internal/prompts"
	"github.com/jonathan/catalyst/internal/types"
)

// Categories are the product categories the classifier may return
var Categories = []string{
	"tech_gadgets",
	"fashion_apparel",
	"beauty_wellness",
	"food_beverage",
	"home_decor",
	"fitness_sports",
	"b2b_saas",
}

var categorySchema = llm.OutputSchema{
	Name: "CategoryResult",
	Fields: []llm.SchemaField{
		{Name: "category", Description: "one of " + strings.Join(Categories, ", "), Required: true},
		{Name: "subcategory", Description: "a more specific niche"},
		{Name: "confidence", Type: "number", Description: "0.0 to 1.0"},
	},
	Rules: []string{"category must be exactly one of the listed values."},
}

var visionSchema = llm.OutputSchema{
	Name: "VisionResult",
	Fields: []llm.SchemaField{
		{Name: "product_type", Description: "what the product is", Required: true},
		{Name: "summary", Description: "one or two sentence visual description"},
		{Name: "features", Type: `["string"]`, Description: "key product features", Required: true},
		{Name: "colors", Type: `["string"]`},
		{Name: "materials", Type: `["string"]`},
		{Name: "style", Description: "visual style, e.g. minimalist, rugged, luxury"},
		{Name: "target_audience", Description: "who the product is for"},
	},
	Rules: []string{"Only describe what is visible or stated in the description."},
}

var competitorSchema = llm.OutputSchema{
	Name: "CompetitorResult",
	Fields: []llm.SchemaField{
		{Name: "competitors", Type: `[{"name": "string", "positioning": "string"}]`, Description: "3-5 closest competitors", Required: true},
		{Name: "differentiators", Type: `["string"]`, Description: "what sets this product apart"},
		{Name: "price_tier", Description: "budget, mid or premium"},
	},
}

var emotionalSchema = llm.OutputSchema{
	Name: "EmotionalResult",
	Fields: []llm.SchemaField{
		{Name: "primary_emotion", Description: "one emotion from the framework, uppercase", Required: true},
		{Name: "triggers", Type: `["string"]`, Description: "specific purchase triggers"},
		{Name: "tone", Description: "recommended copy tone"},
	},
}

var hookSchema = llm.OutputSchema{
	Name: "HookResult",
	Fields: []llm.SchemaField{
		{Name: "hooks", Type: `[{"text": "string", "angle": "string"}]`, Description: "5 hooks, each with its angle", Required: true},
		{Name: "best_hook", Description: "the text of the strongest hook"},
	},
	Rules: []string{"Do not include any emojis."},
}

// buildPrompt renders <name>-system and <name>-user from file with the same data
func buildPrompt(file, name string, data map[string]string, schema llm.OutputSchema) (string, error) {
	system, err := prompts.Render(file, name+"-system", data)
	if err != nil {
		return "", promptError(err)
	}
	user, err := prompts.Render(file, name+"-user", data)
	if err != nil {
		return "", promptError(err)
	}
	return llm.BuildStructuredPrompt(system, schema, user), nil
}

// NormalizeCategory maps a model answer onto a known category, or the default
func NormalizeCategory(raw string) string {
	c := strings.ToLower(strings.TrimSpace(raw))
	c = strings.NewReplacer(" ", "_", "-", "_", "&", "_", "/", "_").Replace(c)
	for strings.Contains(c, "__") {
		c = strings.ReplaceAll(c, "__", "_")
	}
	for _, known := range Categories {
		if c == known {
			return known
		}
	}
	return types.DefaultCategory
}

// DetectCategory classifies the product into one of Categories
func (a *Analyst) DetectCategory(ctx context.Context, in *types.CategoryInput) (*types.CategoryResult, error) {
	if err := requireProduct(in.ProductName); err != nil {
		return nil, err
	}
	prompt, err := buildPrompt("analysis.json", "category", map[string]string{
		"ProductName": in.ProductName,
		"Description": orDefault(in.Description, "not provided"),
	}, categorySchema)
	if err != nil {
		return nil, err
	}

	var out types.CategoryResult
	if err := generate(ctx, a.client, prompt, llm.TierLite, &out); err != nil {
		return nil, err
	}
	normalized := NormalizeCategory(out.Category)
	if normalized != out.Category {
		a.logger.Debug().Str("raw", out.Category).Str("category", normalized).Msg("normalized category")
	}
	out.Category = normalized
	out.Subcategory = strings.TrimSpace(out.Subcategory)
	out.Confidence = clamp(out.Confidence, 0, 1)
	return &out, nil
}

// AnalyzeVision extracts product attributes from the source image and description.
// Without an image, or when the image cannot be read, it works from text alone.
func (a *Analyst) AnalyzeVision(ctx context.Context, in *types.VisionInput) (*types.VisionResult, error) {
	if err := requireProduct(in.ProductName); err != nil {
		return nil, err
	}
	category := orDefault(in.Category.Category, types.DefaultCategory)
	prompt, err := buildPrompt("analysis.json", "vision", map[string]string{
		"ProductName":   in.ProductName,
		"Description":   orDefault(in.Description, "not provided"),
		"Category":      category,
		"CategoryFocus": prompts.ForCategory("focus", category),
	}, visionSchema)
	if err != nil {
		return nil, err
	}

	image, mimeType := a.loadImage(ctx, in.ImageRef)
	var raw string
	if image != nil {
		raw, err = a.client.GenerateJSONWithImage(ctx, prompt, image, mimeType, llm.TierStandard)
	} else {
		raw, err = a.client.GenerateJSON(ctx, prompt, llm.TierStandard)
	}
	if err != nil {
		return nil, err
	}

	var out types.VisionResult
	if err := decode(raw, &out); err != nil {
		return nil, err
	}
	out.ProductType = strings.TrimSpace(out.ProductType)
	if out.ProductType == "" || len(out.Features) == 0 {
		return nil, types.NewCollaboratorError(types.ErrorKindMalformedOutput, "vision analysis returned no product type or features", nil)
	}
	return &out, nil
}

func (a *Analyst) loadImage(ctx context.Context, ref string) ([]byte, string) {
	if ref == "" || a.opener == nil {
		return nil, ""
	}
	data, mimeType, err := a.opener.Open(ctx, ref)
	if err != nil {
		a.logger.Warn().Err(err).Str("image_ref", ref).Msg("source image unreadable, analyzing description only")
		return nil, ""
	}
	if !strings.HasPrefix(mimeType, "image/") {
		a.logger.Warn().Str("image_ref", ref).Str("mime_type", mimeType).Msg("source reference is not an image, analyzing description only")
		return nil, ""
	}
	return data, mimeType
}

// AnalyzeCompetitors maps the competitive landscape for the product
func (a *Analyst) AnalyzeCompetitors(ctx context.Context, in *types.CompetitorInput) (*types.CompetitorResult, error) {
	if err := requireProduct(in.ProductName); err != nil {
		return nil, err
	}
	prompt, err := buildPrompt("analysis.json", "competitor", map[string]string{
		"ProductName": in.ProductName,
		"Category":    orDefault(in.Category.Category, types.DefaultCategory),
		"ProductType": orDefault(in.Vision.ProductType, "not available"),
		"Features":    joinList(in.Vision.Features),
		"Style":       orDefault(in.Vision.Style, "not available"),
	}, competitorSchema)
	if err != nil {
		return nil, err
	}

	var out types.CompetitorResult
	if err := generate(ctx, a.client, prompt, llm.TierStandard, &out); err != nil {
		return nil, err
	}
	competitors := out.Competitors[:0]
	for _, c := range out.Competitors {
		if c.Name = strings.TrimSpace(c.Name); c.Name != "" {
			competitors = append(competitors, c)
		}
	}
	out.Competitors = competitors
	if len(out.Competitors) == 0 {
		return nil, types.NewCollaboratorError(types.ErrorKindMalformedOutput, "competitor analysis returned no competitors", nil)
	}
	out.PriceTier = strings.ToLower(strings.TrimSpace(out.PriceTier))
	return &out, nil
}

// AnalyzeEmotions identifies the emotional triggers behind a purchase
func (a *Analyst) AnalyzeEmotions(ctx context.Context, in *types.EmotionalInput) (*types.EmotionalResult, error) {
	if err := requireProduct(in.Product.Name); err != nil {
		return nil, err
	}
	prompt, err := buildPrompt("analysis.json", "emotional", map[string]string{
		"ProductName": in.Product.Name,
		"Category":    orDefault(in.Category.Category, types.DefaultCategory),
		"Style":       orDefault(in.Product.Vision.Style, "not available"),
		"Colors":      joinList(in.Product.Vision.Colors),
		"Features":    joinList(in.Product.Vision.Features),
	}, emotionalSchema)
	if err != nil {
		return nil, err
	}

	var out types.EmotionalResult
	if err := generate(ctx, a.client, prompt, llm.TierStandard, &out); err != nil {
		return nil, err
	}
	out.PrimaryEmotion = strings.ToUpper(strings.TrimSpace(out.PrimaryEmotion))
	if out.PrimaryEmotion == "" {
		return nil, types.NewCollaboratorError(types.ErrorKindMalformedOutput, "emotional analysis returned no primary emotion", nil)
	}
	return &out, nil
}

// GenerateHooks writes scroll-stopping opening lines from the emotional and competitive data
func (a *Analyst) GenerateHooks(ctx context.Context, in *types.HookInput) (*types.HookResult, error) {
	if err := requireProduct(in.Product.Name); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(in.Competitor.Competitors))
	for _, c := range in.Competitor.Competitors {
		names = append(names, c.Name)
	}
	prompt, err := buildPrompt("analysis.json", "hook", map[string]string{
		"ProductName":     in.Product.Name,
		"Category":        orDefault(in.Product.Category, types.DefaultCategory),
		"Emotion":         orDefault(in.Emotional.PrimaryEmotion, "not available"),
		"Triggers":        joinList(in.Emotional.Triggers),
		"Competitors":     joinList(names),
		"Differentiators": joinList(in.Competitor.Differentiators),
	}, hookSchema)
	if err != nil {
		return nil, err
	}

	var out types.HookResult
	if err := generate(ctx, a.client, prompt, llm.TierStandard, &out); err != nil {
		return nil, err
	}
	hooks := out.Hooks[:0]
	for _, h := range out.Hooks {
		if h.Text = strings.TrimSpace(h.Text); h.Text != "" {
			hooks = append(hooks, h)
		}
	}
	out.Hooks = hooks
	if len(out.Hooks) == 0 {
		return nil, types.NewCollaboratorError(types.ErrorKindMalformedOutput, "hook generation returned no hooks", nil)
	}
	out.BestHook = bestHook(out)
	return &out, nil
}

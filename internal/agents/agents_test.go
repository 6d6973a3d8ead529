package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/catalyst/internal/llm"
	"github.com/jonathan/catalyst/internal/llm/llmtest"
	"github.com/jonathan/catalyst/internal/types"
)

type fakeOpener struct {
	data     []byte
	mimeType string
	err      error
}

func (f fakeOpener) Open(context.Context, string) ([]byte, string, error) {
	return f.data, f.mimeType, f.err
}

func errorKind(t *testing.T, err error) types.ErrorKind {
	t.Helper()
	var collabErr *types.CollaboratorError
	require.True(t, errors.As(err, &collabErr), "expected CollaboratorError, got %v", err)
	return collabErr.Kind
}

func earbuds() types.ProductContext {
	return types.ProductContext{
		Name:        "Wireless Earbuds",
		Description: "noise-cancelling earbuds",
		Category:    "tech_gadgets",
		Vision: types.VisionResult{
			ProductType: "earbuds",
			Features:    []string{"active noise cancelling", "24h battery"},
			Style:       "minimalist",
		},
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"tech_gadgets", "tech_gadgets"},
		{"Tech Gadgets", "tech_gadgets"},
		{" fashion-apparel ", "fashion_apparel"},
		{"Food & Beverage", "food_beverage"},
		{"automotive", types.DefaultCategory},
		{"", types.DefaultCategory},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCategory(tt.raw))
		})
	}
}

func TestDetectCategory(t *testing.T) {
	client := llmtest.Static("```json\n{\"category\": \"Tech Gadgets\", \"subcategory\": \" audio \", \"confidence\": 1.4}\n```")
	a := NewAnalyst(client, nil, zerolog.Nop())

	res, err := a.DetectCategory(context.Background(), &types.CategoryInput{ProductName: "Wireless Earbuds", Description: "noise-cancelling earbuds"})
	require.NoError(t, err)
	assert.Equal(t, "tech_gadgets", res.Category)
	assert.Equal(t, "audio", res.Subcategory)
	assert.Equal(t, 1.0, res.Confidence)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, llm.TierLite, calls[0].Tier)
	assert.True(t, calls[0].JSON)
	assert.Contains(t, calls[0].Prompt, "Product: Wireless Earbuds")
	assert.Contains(t, calls[0].Prompt, "noise-cancelling earbuds")
}

func TestDetectCategory_UnknownFallsBackToDefault(t *testing.T) {
	a := NewAnalyst(llmtest.Static(`{"category": "automotive"}`), nil, zerolog.Nop())
	res, err := a.DetectCategory(context.Background(), &types.CategoryInput{ProductName: "Roof Box"})
	require.NoError(t, err)
	assert.Equal(t, types.DefaultCategory, res.Category)
}

func TestDetectCategory_InvalidJSON(t *testing.T) {
	a := NewAnalyst(llmtest.Static("I think this is a gadget"), nil, zerolog.Nop())
	_, err := a.DetectCategory(context.Background(), &types.CategoryInput{ProductName: "Wireless Earbuds"})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMalformedOutput, errorKind(t, err))
}

func TestDetectCategory_RequiresProductName(t *testing.T) {
	client := llmtest.Static(`{}`)
	a := NewAnalyst(client, nil, zerolog.Nop())
	_, err := a.DetectCategory(context.Background(), &types.CategoryInput{ProductName: "  "})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindContract, errorKind(t, err))
	assert.Empty(t, client.Calls())
}

func TestDetectCategory_PropagatesClientError(t *testing.T) {
	upstream := types.NewCollaboratorError(types.ErrorKindUpstream, "rate limited", nil)
	a := NewAnalyst(llmtest.Failing(upstream), nil, zerolog.Nop())
	_, err := a.DetectCategory(context.Background(), &types.CategoryInput{ProductName: "Wireless Earbuds"})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindUpstream, errorKind(t, err))
}

const visionJSON = `{"product_type": "earbuds", "features": ["ANC"], "colors": ["black"], "style": "minimalist"}`

func TestAnalyzeVision_SendsImage(t *testing.T) {
	client := llmtest.Static(visionJSON)
	opener := fakeOpener{data: []byte{0xff, 0xd8, 0xff}, mimeType: "image/jpeg"}
	a := NewAnalyst(client, opener, zerolog.Nop())

	res, err := a.AnalyzeVision(context.Background(), &types.VisionInput{
		ProductName: "Wireless Earbuds",
		ImageRef:    "static/uploads/earbuds.jpg",
		Category:    types.CategoryResult{Category: "tech_gadgets"},
	})
	require.NoError(t, err)
	assert.Equal(t, "earbuds", res.ProductType)
	assert.Equal(t, []string{"ANC"}, res.Features)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, calls[0].Image)
	assert.Equal(t, "image/jpeg", calls[0].MIMEType)
	assert.Equal(t, llm.TierStandard, calls[0].Tier)
	assert.Contains(t, calls[0].Prompt, "Category: tech_gadgets")
}

func TestAnalyzeVision_UsesGeneralFocusWithoutCategory(t *testing.T) {
	client := llmtest.Static(visionJSON)
	a := NewAnalyst(client, nil, zerolog.Nop())

	_, err := a.AnalyzeVision(context.Background(), &types.VisionInput{ProductName: "Wireless Earbuds"})
	require.NoError(t, err)
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Category: general")
	assert.Contains(t, calls[0].Prompt, "most distinctive visual and functional attributes")
	assert.Nil(t, calls[0].Image)
}

func TestAnalyzeVision_UnreadableImageFallsBackToText(t *testing.T) {
	client := llmtest.Static(visionJSON)
	a := NewAnalyst(client, fakeOpener{err: errors.New("no such file")}, zerolog.Nop())

	_, err := a.AnalyzeVision(context.Background(), &types.VisionInput{ProductName: "Wireless Earbuds", ImageRef: "missing.jpg"})
	require.NoError(t, err)
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].Image)
}

func TestAnalyzeVision_NonImageReferenceIgnored(t *testing.T) {
	client := llmtest.Static(visionJSON)
	a := NewAnalyst(client, fakeOpener{data: []byte("%PDF"), mimeType: "application/pdf"}, zerolog.Nop())

	_, err := a.AnalyzeVision(context.Background(), &types.VisionInput{ProductName: "Wireless Earbuds", ImageRef: "brochure.pdf"})
	require.NoError(t, err)
	assert.Nil(t, client.Calls()[0].Image)
}

func TestAnalyzeVision_MissingFeaturesIsMalformed(t *testing.T) {
	a := NewAnalyst(llmtest.Static(`{"product_type": "earbuds"}`), nil, zerolog.Nop())
	_, err := a.AnalyzeVision(context.Background(), &types.VisionInput{ProductName: "Wireless Earbuds"})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMalformedOutput, errorKind(t, err))
}

func TestAnalyzeCompetitors(t *testing.T) {
	client := llmtest.Static(`{"competitors": [{"name": "AirPods Pro", "positioning": "ecosystem"}, {"name": " "}], "differentiators": ["price"], "price_tier": " Mid "}`)
	a := NewAnalyst(client, nil, zerolog.Nop())

	res, err := a.AnalyzeCompetitors(context.Background(), &types.CompetitorInput{
		ProductName: "Wireless Earbuds",
		Vision:      earbuds().Vision,
	})
	require.NoError(t, err)
	require.Len(t, res.Competitors, 1)
	assert.Equal(t, "AirPods Pro", res.Competitors[0].Name)
	assert.Equal(t, "mid", res.PriceTier)
	assert.Contains(t, client.Calls()[0].Prompt, "active noise cancelling, 24h battery")
}

func TestAnalyzeCompetitors_NoneNamed(t *testing.T) {
	a := NewAnalyst(llmtest.Static(`{"competitors": [{"name": ""}]}`), nil, zerolog.Nop())

	_, err := a.AnalyzeCompetitors(context.Background(), &types.CompetitorInput{ProductName: "Wireless Earbuds"})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMalformedOutput, errorKind(t, err))
}

func TestAnalyzeEmotions(t *testing.T) {
	client := llmtest.Static(`{"primary_emotion": "relief", "triggers": ["quiet commute"], "tone": "calm"}`)
	a := NewAnalyst(client, nil, zerolog.Nop())

	res, err := a.AnalyzeEmotions(context.Background(), &types.EmotionalInput{
		Product:  earbuds(),
		Category: types.CategoryResult{Category: "tech_gadgets"},
	})
	require.NoError(t, err)
	assert.Equal(t, "RELIEF", res.PrimaryEmotion)
	assert.Equal(t, []string{"quiet commute"}, res.Triggers)
	assert.Contains(t, client.Calls()[0].Prompt, "PRODUCT CATEGORY: tech_gadgets")
}

func TestAnalyzeEmotions_EmptyEmotionIsMalformed(t *testing.T) {
	a := NewAnalyst(llmtest.Static(`{"triggers": ["x"]}`), nil, zerolog.Nop())
	_, err := a.AnalyzeEmotions(context.Background(), &types.EmotionalInput{Product: earbuds()})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMalformedOutput, errorKind(t, err))
}

func TestGenerateHooks_DefaultsBestHook(t *testing.T) {
	client := llmtest.Static(`{"hooks": [{"text": " "}, {"text": "Silence the city.", "angle": "relief"}]}`)
	a := NewAnalyst(client, nil, zerolog.Nop())

	res, err := a.GenerateHooks(context.Background(), &types.HookInput{Product: earbuds()})
	require.NoError(t, err)
	require.Len(t, res.Hooks, 1)
	assert.Equal(t, "Silence the city.", res.BestHook)

	prompt := client.Calls()[0].Prompt
	assert.Contains(t, prompt, "Primary emotion: not available")
	assert.Contains(t, prompt, "Competitors: not available")
}

func TestGenerateHooks_NoHooksIsMalformed(t *testing.T) {
	a := NewAnalyst(llmtest.Static(`{"hooks": []}`), nil, zerolog.Nop())
	_, err := a.GenerateHooks(context.Background(), &types.HookInput{Product: earbuds()})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMalformedOutput, errorKind(t, err))
}

const contentJSON = `{
  "linkedin_post": {"title": "Focus, amplified", "content": "Meet the earbuds.", "hashtags": ["#audio", "Audio", "tech"]},
  "meta_post": {"caption": "Silence the city.", "hashtags": ["#earbuds"]},
  "blog_post": {"title": "Why ANC matters", "content": "Long form.", "seo_keywords": ["anc earbuds", " "]}
}`

func TestGenerateContent(t *testing.T) {
	client := llmtest.Static(contentJSON)
	a := NewAnalyst(client, nil, zerolog.Nop())

	res, err := a.GenerateContent(context.Background(), &types.ContentInput{
		Product: earbuds(),
		Market:  types.MarketResearchResult{Summary: "Buyers prize battery life.", Reviews: []string{"great battery"}},
		Hooks:   types.HookResult{BestHook: "Silence the city."},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"audio", "tech"}, res.LinkedInPost.Hashtags)
	assert.Equal(t, []string{"earbuds"}, res.MetaPost.Hashtags)
	assert.Equal(t, []string{"anc earbuds"}, res.BlogPost.SEOKeywords)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, llm.TierAdvanced, calls[0].Tier)
	prompt := calls[0].Prompt
	assert.Contains(t, prompt, "Tone: innovative, authoritative")
	assert.Contains(t, prompt, "Brand: "+types.DefaultBrandName)
	assert.Contains(t, prompt, "Best hook: Silence the city.")
	assert.Contains(t, prompt, "What customers say: great battery")
	assert.NotContains(t, prompt, "{{.")
}

func TestGenerateContent_EmptyCopyIsMalformed(t *testing.T) {
	a := NewAnalyst(llmtest.Static(`{"linkedin_post": {}, "meta_post": {}, "blog_post": {}}`), nil, zerolog.Nop())
	_, err := a.GenerateContent(context.Background(), &types.ContentInput{Product: earbuds()})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMalformedOutput, errorKind(t, err))
}

func TestPredictPerformance(t *testing.T) {
	client := llmtest.Static(`{"engagement_score": 140, "platform_scores": {"linkedin": -3, "meta": 72}, "recommendations": ["add a CTA", "add a CTA"]}`)
	a := NewAnalyst(client, nil, zerolog.Nop())

	res, err := a.PredictPerformance(context.Background(), &types.PredictionInput{
		Content: types.ContentResult{MetaPost: types.MetaPost{Caption: "Silence the city."}},
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, res.EngagementScore)
	assert.Equal(t, 0.0, res.PlatformScores["linkedin"])
	assert.Equal(t, 72.0, res.PlatformScores["meta"])
	assert.Equal(t, []string{"add a CTA"}, res.Recommendations)
	assert.Equal(t, llm.TierLite, client.Calls()[0].Tier)
}

func TestPredictPerformance_NoContent(t *testing.T) {
	client := llmtest.Static(`{}`)
	a := NewAnalyst(client, nil, zerolog.Nop())
	_, err := a.PredictPerformance(context.Background(), &types.PredictionInput{})
	require.Error(t, err)
	assert.Empty(t, client.Calls())
}

func TestJoinList(t *testing.T) {
	assert.Equal(t, "not available", joinList(nil))
	assert.Equal(t, "not available", joinList([]string{" ", ""}))
	assert.Equal(t, "a, b", joinList([]string{"a", " ", "b "}))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Len(t, []rune(truncateRunes(strings.Repeat("x", 400), maxVideoPromptRunes)), maxVideoPromptRunes)
}

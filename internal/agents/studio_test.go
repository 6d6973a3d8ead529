package agents

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/catalyst/internal/llm"
	"github.com/jonathan/catalyst/internal/llm/llmtest"
	"github.com/jonathan/catalyst/internal/media"
	"github.com/jonathan/catalyst/internal/pipeline"
	"github.com/jonathan/catalyst/internal/types"
)

type fakeVideo struct {
	prompt    string
	image     []byte
	imageType string
	err       error
}

func (f *fakeVideo) Generate(_ context.Context, prompt string, image []byte, imageType string) (*media.Video, error) {
	f.prompt, f.image, f.imageType = prompt, image, imageType
	if f.err != nil {
		return nil, f.err
	}
	return &media.Video{TaskID: "task-1", Ref: "static/videos/video_task-1.mp4", DurationSeconds: 10}, nil
}

type imageCall struct {
	kind   media.Kind
	prefix string
	prompt string
}

type fakeImages struct {
	mu    sync.Mutex
	calls []imageCall
}

func (f *fakeImages) Generate(_ context.Context, kind media.Kind, prefix, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, imageCall{kind: kind, prefix: prefix, prompt: prompt})
	return "static/" + string(kind) + "/" + prefix + ".png", nil
}

func mediaInput() *types.MediaInput {
	return &types.MediaInput{
		Product:   earbuds(),
		Hooks:     types.HookResult{Hooks: []types.Hook{{Text: "Silence the city."}}},
		Emotional: types.EmotionalResult{PrimaryEmotion: "RELIEF"},
		Market:    types.MarketResearchResult{Summary: "Buyers prize battery life."},
	}
}

func TestGenerateVideo(t *testing.T) {
	client := llmtest.Static(`{"script": "0-3s: hook", "video_prompt": "` + strings.Repeat("a", 350) + `"}`)
	video := &fakeVideo{}
	opener := fakeOpener{data: []byte("jpeg"), mimeType: "image/jpeg"}
	s := NewStudio(client, video, nil, opener, zerolog.Nop())

	in := mediaInput()
	in.Product.ImageRef = "static/uploads/earbuds.jpg"
	res, err := s.GenerateVideo(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "0-3s: hook", res.Script)
	assert.Equal(t, "static/videos/video_task-1.mp4", res.VideoRef)
	assert.Equal(t, "task-1", res.TaskID)
	assert.Equal(t, 10, res.DurationSeconds)

	assert.Len(t, video.prompt, maxVideoPromptRunes)
	assert.Equal(t, []byte("jpeg"), video.image)
	assert.Equal(t, "image/jpeg", video.imageType)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, llm.TierAdvanced, calls[0].Tier)
	assert.Contains(t, calls[0].Prompt, "HOOK: Silence the city.")
	assert.Contains(t, calls[0].Prompt, "EMOTION: RELIEF")
}

func TestGenerateVideo_WithoutSourceImage(t *testing.T) {
	video := &fakeVideo{}
	s := NewStudio(llmtest.Static(`{"script": "s", "video_prompt": "a quiet train ride"}`), video, nil, fakeOpener{err: errors.New("unused")}, zerolog.Nop())

	_, err := s.GenerateVideo(context.Background(), mediaInput())
	require.NoError(t, err)
	assert.Equal(t, "a quiet train ride", video.prompt)
	assert.Nil(t, video.image)
}

func TestGenerateVideo_Unconfigured(t *testing.T) {
	s := NewStudio(llmtest.Static(`{}`), nil, nil, nil, zerolog.Nop())
	_, err := s.GenerateVideo(context.Background(), mediaInput())
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMissingCredential, errorKind(t, err))
}

func TestGenerateVideo_EmptyPromptIsMalformed(t *testing.T) {
	video := &fakeVideo{}
	s := NewStudio(llmtest.Static(`{"script": "s", "video_prompt": "  "}`), video, nil, nil, zerolog.Nop())
	_, err := s.GenerateVideo(context.Background(), mediaInput())
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMalformedOutput, errorKind(t, err))
	assert.Empty(t, video.prompt)
}

func TestGenerateVideo_PropagatesGeneratorError(t *testing.T) {
	timeout := types.NewCollaboratorError(types.ErrorKindTimeout, "video not ready after 20 checks", nil)
	s := NewStudio(llmtest.Static(`{"script": "s", "video_prompt": "p"}`), &fakeVideo{err: timeout}, nil, nil, zerolog.Nop())
	_, err := s.GenerateVideo(context.Background(), mediaInput())
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindTimeout, errorKind(t, err))
}

func TestGeneratePoster(t *testing.T) {
	images := &fakeImages{}
	s := NewStudio(nil, nil, images, nil, zerolog.Nop())

	res, err := s.GeneratePoster(context.Background(), mediaInput())
	require.NoError(t, err)
	assert.Equal(t, "static/posters/poster.png", res.PosterRef)

	require.Len(t, images.calls, 1)
	call := images.calls[0]
	assert.Equal(t, media.KindPoster, call.kind)
	assert.Equal(t, res.Prompt, call.prompt)
	assert.Contains(t, call.prompt, "Wireless Earbuds by Your Brand")
	assert.Contains(t, call.prompt, `"Silence the city."`)
	assert.Contains(t, call.prompt, "Mood: relief")
}

func TestPosterPrompt_Defaults(t *testing.T) {
	prompt, err := PosterPrompt(&types.MediaInput{Product: types.ProductContext{Name: "Desk Lamp"}})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Product with not available")
	assert.Contains(t, prompt, `"Desk Lamp"`)
	assert.NotContains(t, prompt, "{{.")
}

func TestGenerateImage(t *testing.T) {
	images := &fakeImages{}
	s := NewStudio(nil, nil, images, nil, zerolog.Nop())

	res, err := s.GenerateImage(context.Background(), mediaInput())
	require.NoError(t, err)
	assert.Equal(t, "static/images/marketing.png", res.ImageRef)
	require.Len(t, images.calls, 1)
	assert.Equal(t, media.KindImage, images.calls[0].kind)
	assert.Contains(t, res.Prompt, "Style: minimalist")
}

func TestGeneratePoster_Unconfigured(t *testing.T) {
	s := NewStudio(nil, nil, nil, nil, zerolog.Nop())
	_, err := s.GeneratePoster(context.Background(), mediaInput())
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMissingCredential, errorKind(t, err))
}

func TestSet_Collaborators(t *testing.T) {
	noVideo := errors.New("video generation: missing VIDEO_API_URL")
	set := Set{
		Analyst:      NewAnalyst(llmtest.Static(`{"category": "tech_gadgets"}`), nil, zerolog.Nop()),
		Unconfigured: map[types.StepType]error{types.StepVideoGeneration: noVideo},
	}
	c := set.Collaborators()
	for _, st := range types.AllStepTypes {
		assert.Contains(t, c, st)
	}

	out, err := c[types.StepCategoryDetection].Run(context.Background(), &types.CategoryInput{ProductName: "Wireless Earbuds"})
	require.NoError(t, err)
	assert.Equal(t, "tech_gadgets", out.(*types.CategoryResult).Category)

	_, err = c[types.StepVideoGeneration].Run(context.Background(), &types.MediaInput{})
	assert.ErrorIs(t, err, noVideo)

	_, err = c[types.StepMarketResearch].Run(context.Background(), &types.MarketResearchInput{})
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindMissingCredential, errorKind(t, err))
}

func TestSet_WrongInputIsContractViolation(t *testing.T) {
	c := Set{Analyst: NewAnalyst(llmtest.Static(`{}`), nil, zerolog.Nop())}.Collaborators()
	_, err := c[types.StepCategoryDetection].Run(context.Background(), &types.VisionInput{})
	assert.ErrorIs(t, err, pipeline.ErrContractViolation)
}

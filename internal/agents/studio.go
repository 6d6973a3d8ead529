package agents

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonathan/catalyst/internal/llm"
	"github.com/jonathan/catalyst/internal/media"
	"github.com/jonathan/catalyst/internal/prompts"
	"github.com/jonathan/catalyst/internal/types"
)

// VideoGenerator renders a short video from a prompt and an optional source image
type VideoGenerator interface {
	Generate(ctx context.Context, prompt string, image []byte, imageType string) (*media.Video, error)
}

// ImageGenerator renders and stores one image, returning its reference
type ImageGenerator interface {
	Generate(ctx context.Context, kind media.Kind, prefix, prompt string) (string, error)
}

// maxVideoPromptRunes is the longest prompt the video model accepts
const maxVideoPromptRunes = 300

var videoScriptSchema = llm.OutputSchema{
	Name: "VideoScript",
	Fields: []llm.SchemaField{
		{Name: "script", Description: "the full 15-second script with timestamps", Required: true},
		{Name: "video_prompt", Description: "text-to-video prompt, at most 300 characters", Required: true},
	},
}

type videoScript struct {
	Script      string `json:"script"`
	VideoPrompt string `json:"video_prompt"`
}

// Studio runs the media generation steps. A nil generator marks that
// medium as unconfigured; its step then fails with a missing credential.
type Studio struct {
	client llm.Client
	video  VideoGenerator
	images ImageGenerator
	opener MediaOpener
	logger zerolog.Logger
}

// NewStudio creates a Studio
func NewStudio(client llm.Client, video VideoGenerator, images ImageGenerator, opener MediaOpener, logger zerolog.Logger) *Studio {
	return &Studio{client: client, video: video, images: images, opener: opener, logger: logger}
}

// GenerateVideo writes a short-form script, then renders the clip from the
// script's video prompt. The source image is used as a reference frame when readable.
func (s *Studio) GenerateVideo(ctx context.Context, in *types.MediaInput) (*types.VideoResult, error) {
	if err := requireProduct(in.Product.Name); err != nil {
		return nil, err
	}
	if s.video == nil {
		return nil, types.NewCollaboratorError(types.ErrorKindMissingCredential, "video generation is not configured", nil)
	}
	if s.client == nil {
		return nil, types.NewCollaboratorError(types.ErrorKindMissingCredential, "video script writing requires a language model", nil)
	}

	prompt, err := buildPrompt("media.json", "video-script", map[string]string{
		"ProductName":   in.Product.Name,
		"BestHook":      orDefault(bestHook(in.Hooks), in.Product.Name),
		"Emotion":       orDefault(in.Emotional.PrimaryEmotion, "excitement"),
		"MarketSummary": orDefault(in.Market.Summary, "not available"),
	}, videoScriptSchema)
	if err != nil {
		return nil, err
	}
	var script videoScript
	if err := generate(ctx, s.client, prompt, llm.TierAdvanced, &script); err != nil {
		return nil, err
	}
	videoPrompt := truncateRunes(strings.TrimSpace(script.VideoPrompt), maxVideoPromptRunes)
	if videoPrompt == "" {
		return nil, types.NewCollaboratorError(types.ErrorKindMalformedOutput, "video script has no video prompt", nil)
	}

	image, imageType := s.sourceImage(ctx, in.Product.ImageRef)
	video, err := s.video.Generate(ctx, videoPrompt, image, imageType)
	if err != nil {
		return nil, err
	}
	return &types.VideoResult{
		Script:          strings.TrimSpace(script.Script),
		VideoRef:        video.Ref,
		TaskID:          video.TaskID,
		DurationSeconds: video.DurationSeconds,
	}, nil
}

// GeneratePoster renders an advertising poster from a fixed prompt template
func (s *Studio) GeneratePoster(ctx context.Context, in *types.MediaInput) (*types.PosterResult, error) {
	if err := requireProduct(in.Product.Name); err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, types.NewCollaboratorError(types.ErrorKindMissingCredential, "image generation is not configured", nil)
	}
	prompt, err := PosterPrompt(in)
	if err != nil {
		return nil, err
	}
	ref, err := s.images.Generate(ctx, media.KindPoster, "poster", prompt)
	if err != nil {
		return nil, err
	}
	return &types.PosterResult{Prompt: prompt, PosterRef: ref}, nil
}

// GenerateImage renders a marketing image for social feeds
func (s *Studio) GenerateImage(ctx context.Context, in *types.MediaInput) (*types.ImageResult, error) {
	if err := requireProduct(in.Product.Name); err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, types.NewCollaboratorError(types.ErrorKindMissingCredential, "image generation is not configured", nil)
	}
	prompt, err := prompts.Render("media.json", "image-prompt", map[string]string{
		"ProductName": in.Product.Name,
		"Summary":     orDefault(in.Product.Vision.Summary, in.Product.Description),
		"Style":       orDefault(in.Product.Vision.Style, "modern"),
		"Emotion":     strings.ToLower(orDefault(in.Emotional.PrimaryEmotion, "delight")),
	})
	if err != nil {
		return nil, promptError(err)
	}
	ref, err := s.images.Generate(ctx, media.KindImage, "marketing", prompt)
	if err != nil {
		return nil, err
	}
	return &types.ImageResult{Prompt: prompt, ImageRef: ref}, nil
}

// PosterPrompt renders the poster prompt for a product
func PosterPrompt(in *types.MediaInput) (string, error) {
	features := in.Product.Vision.Features
	if len(features) > 3 {
		features = features[:3]
	}
	prompt, err := prompts.Render("media.json", "poster-prompt", map[string]string{
		"ProductName": in.Product.Name,
		"BrandName":   orDefault(in.Product.BrandName, types.DefaultBrandName),
		"ProductType": orDefault(in.Product.Vision.ProductType, "Product"),
		"Features":    joinList(features),
		"BestHook":    orDefault(bestHook(in.Hooks), in.Product.Name),
		"Emotion":     strings.ToLower(orDefault(in.Emotional.PrimaryEmotion, "confidence")),
	})
	if err != nil {
		return "", promptError(err)
	}
	return prompt, nil
}

func (s *Studio) sourceImage(ctx context.Context, ref string) ([]byte, string) {
	if ref == "" || s.opener == nil {
		return nil, ""
	}
	data, mimeType, err := s.opener.Open(ctx, ref)
	if err != nil {
		s.logger.Warn().Err(err).Str("image_ref", ref).Msg("source image unreadable, generating video from text")
		return nil, ""
	}
	return data, mimeType
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

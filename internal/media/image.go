package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/fetch"
	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/types"
)

// Image API defaults
const (
	DefaultImageModel = "dall-e-3"
	DefaultImageSize  = "1024x1024"
	ImageProvider     = "image_api"
)

// ImageConfig configures an ImageClient
type ImageConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Size       string
	HTTPClient *http.Client
	Gate       *ratelimit.Gate
	Logger     zerolog.Logger
}

// ImageClient generates images from prompts and stores them
type ImageClient struct {
	api    apiClient
	model  string
	size   string
	store  Store
	logger zerolog.Logger
}

// NewImageClient validates cfg and creates a client saving images to store
func NewImageClient(cfg ImageConfig, store Store) (*ImageClient, error) {
	if err := config.Require("image generation",
		config.Setting{Name: config.EnvImageAPIURL, Value: cfg.BaseURL},
		config.Setting{Name: config.EnvImageAPIKey, Value: cfg.APIKey},
	); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultImageModel
	}
	if cfg.Size == "" {
		cfg.Size = DefaultImageSize
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}

	return &ImageClient{
		api: apiClient{
			provider: ImageProvider,
			baseURL:  cfg.BaseURL,
			apiKey:   cfg.APIKey,
			http:     cfg.HTTPClient,
			gate:     cfg.Gate,
		},
		model:  cfg.Model,
		size:   cfg.Size,
		store:  store,
		logger: cfg.Logger,
	}, nil
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// Generate renders prompt and saves the image as <prefix>_<uuid>.png under kind
func (c *ImageClient) Generate(ctx context.Context, kind Kind, prefix, prompt string) (string, error) {
	var resp imageResponse
	if err := c.api.postJSON(ctx, "/images/generations", imageRequest{
		Model:  c.model,
		Prompt: prompt,
		N:      1,
		Size:   c.size,
	}, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", types.NewCollaboratorError(types.ErrorKindMalformedOutput, "image API returned no images", nil)
	}

	item := resp.Data[0]
	var data []byte
	switch {
	case item.B64JSON != "":
		decoded, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return "", types.NewCollaboratorError(types.ErrorKindMalformedOutput, "image API returned invalid base64", err)
		}
		data = decoded
	case item.URL != "":
		res, err := fetch.URL(ctx, item.URL, &fetch.Options{Client: c.api.http})
		if err != nil {
			return "", fmt.Errorf("failed to download generated image: %w", err)
		}
		data = res.Body
	default:
		return "", types.NewCollaboratorError(types.ErrorKindMalformedOutput, "image API returned neither b64_json nor url", nil)
	}

	ref, err := c.store.Save(ctx, kind, UniqueName(prefix, ".png"), data, "image/png")
	if err != nil {
		return "", err
	}
	c.logger.Debug().Str("ref", ref).Str("kind", string(kind)).Msg("image saved")
	return ref, nil
}

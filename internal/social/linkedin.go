package social

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/publishing"
	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/types"
)

// DefaultLinkedInURL is the LinkedIn REST API root
const DefaultLinkedInURL = "https://api.linkedin.com"

const uploadMechanismKey = "com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest"

// LinkedInConfig configures the LinkedIn publisher
type LinkedInConfig struct {
	AccessToken string
	AuthorURN   string // e.g. urn:li:organization:123
	BaseURL     string
	HTTPClient  *http.Client
	Gate        *ratelimit.Gate
}

// LinkedIn publishes UGC posts with an optional image or video
type LinkedIn struct {
	client  httpClient
	token   string
	author  string
	baseURL string
	media   MediaOpener
}

// NewLinkedIn validates cfg and creates the publisher
func NewLinkedIn(cfg LinkedInConfig, media MediaOpener) (*LinkedIn, error) {
	if err := config.Require("LinkedIn publishing",
		config.Setting{Name: config.EnvLinkedInToken, Value: cfg.AccessToken},
		config.Setting{Name: config.EnvLinkedInAuthorURN, Value: cfg.AuthorURN},
	); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLinkedInURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &LinkedIn{
		client:  httpClient{platform: string(types.PlatformLinkedIn), http: cfg.HTTPClient, gate: cfg.Gate},
		token:   cfg.AccessToken,
		author:  cfg.AuthorURN,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		media:   media,
	}, nil
}

type registerUploadResponse struct {
	Value struct {
		Asset           string `json:"asset"`
		UploadMechanism map[string]struct {
			UploadURL string `json:"uploadUrl"`
		} `json:"uploadMechanism"`
	} `json:"value"`
}

// Publish uploads the attached media if any, then creates the post.
// It returns the X-RestLi-Id of the created post.
func (l *LinkedIn) Publish(ctx context.Context, post publishing.Post) (string, error) {
	category := "NONE"
	var asset string

	switch post.Media.Kind {
	case types.MediaVideo, types.MediaImage:
		var err error
		asset, err = l.upload(ctx, post.Media)
		if err != nil {
			return "", err
		}
		category = "VIDEO"
		if post.Media.Kind == types.MediaImage {
			category = "IMAGE"
		}
	}

	text := postText(post)
	if post.Title != "" {
		text = post.Title + "\n\n" + text
	}

	share := map[string]any{
		"shareCommentary":    map[string]string{"text": text},
		"shareMediaCategory": category,
	}
	if asset != "" {
		share["media"] = []map[string]string{{"status": "READY", "media": asset}}
	}
	payload := map[string]any{
		"author":          l.author,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": share},
		"visibility":      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	header, err := l.client.postJSON(ctx, "post", l.baseURL+"/v2/ugcPosts", l.headers(), payload, nil)
	if err != nil {
		return "", err
	}
	id := header.Get("X-RestLi-Id")
	if id == "" {
		return "", fmt.Errorf("linkedin post created without an id")
	}
	return id, nil
}

// upload registers the asset and PUTs the bytes, returning the asset URN
func (l *LinkedIn) upload(ctx context.Context, m publishing.Media) (string, error) {
	data, contentType, err := l.media.Open(ctx, m.Ref)
	if err != nil {
		return "", fmt.Errorf("linkedin: %w", err)
	}

	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if m.Kind == types.MediaVideo {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
		contentType = "application/octet-stream"
	}
	register := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{recipe},
			"owner":   l.author,
			"serviceRelationships": []map[string]string{
				{"relationshipType": "OWNER", "identifier": "urn:li:userGeneratedContent"},
			},
		},
	}

	var reg registerUploadResponse
	if _, err := l.client.postJSON(ctx, "register upload", l.baseURL+"/v2/assets?action=registerUpload", l.headers(), register, &reg); err != nil {
		return "", err
	}
	uploadURL := reg.Value.UploadMechanism[uploadMechanismKey].UploadURL
	if uploadURL == "" || reg.Value.Asset == "" {
		return "", fmt.Errorf("linkedin register upload returned no upload url")
	}

	req, err := http.NewRequest(http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	req.Header.Set("Content-Type", contentType)
	if _, err := l.client.do(ctx, "media upload", req, nil); err != nil {
		return "", err
	}
	return reg.Value.Asset, nil
}

func (l *LinkedIn) headers() map[string]string {
	return map[string]string{
		"Authorization":             "Bearer " + l.token,
		"X-Restli-Protocol-Version": "2.0.0",
	}
}

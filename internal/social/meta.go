package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/publishing"
	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/types"
)

// Meta Graph API roots
const (
	DefaultGraphURL      = "https://graph.facebook.com/v18.0"
	DefaultGraphVideoURL = "https://graph-video.facebook.com/v18.0"
)

// MetaConfig configures the Facebook Page publisher
type MetaConfig struct {
	PageToken     string
	PageID        string
	GraphURL      string
	GraphVideoURL string
	HTTPClient    *http.Client
	Gate          *ratelimit.Gate
}

// Meta publishes to a Facebook Page feed
type Meta struct {
	client   httpClient
	token    string
	pageID   string
	graph    string
	graphVid string
	media    MediaOpener
}

// NewMeta validates cfg and creates the publisher
func NewMeta(cfg MetaConfig, media MediaOpener) (*Meta, error) {
	if err := config.Require("Meta publishing",
		config.Setting{Name: config.EnvMetaPageToken, Value: cfg.PageToken},
		config.Setting{Name: config.EnvMetaPageID, Value: cfg.PageID},
	); err != nil {
		return nil, err
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	if cfg.GraphVideoURL == "" {
		cfg.GraphVideoURL = DefaultGraphVideoURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Meta{
		client:   httpClient{platform: string(types.PlatformMeta), http: cfg.HTTPClient, gate: cfg.Gate},
		token:    cfg.PageToken,
		pageID:   cfg.PageID,
		graph:    strings.TrimRight(cfg.GraphURL, "/"),
		graphVid: strings.TrimRight(cfg.GraphVideoURL, "/"),
		media:    media,
	}, nil
}

type graphID struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// Publish posts a video, a photo with caption, or a text-only status
func (m *Meta) Publish(ctx context.Context, post publishing.Post) (string, error) {
	text := postText(post)

	switch post.Media.Kind {
	case types.MediaVideo:
		return m.publishVideo(ctx, post.Media.Ref, text)
	case types.MediaImage:
		photoID, err := m.uploadPhoto(ctx, post.Media.Ref)
		if err != nil {
			return "", err
		}
		attached, _ := json.Marshal(map[string]string{"media_fbid": photoID})
		return m.feed(ctx, url.Values{
			"message":           {text},
			"attached_media[0]": {string(attached)},
		})
	default:
		return m.feed(ctx, url.Values{"message": {text}})
	}
}

func (m *Meta) feed(ctx context.Context, form url.Values) (string, error) {
	form.Set("access_token", m.token)
	var out graphID
	if err := m.client.postForm(ctx, "feed post", m.graph+"/"+m.pageID+"/feed", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("meta feed post returned no id")
	}
	return out.ID, nil
}

// uploadPhoto stores an unpublished photo and returns its id for attachment
func (m *Meta) uploadPhoto(ctx context.Context, ref string) (string, error) {
	data, contentType, err := m.media.Open(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("meta: %w", err)
	}
	var out graphID
	if err := m.client.postMultipart(ctx, "photo upload", m.graph+"/"+m.pageID+"/photos", map[string]string{
		"access_token": m.token,
		"published":    "false",
	}, path.Base(ref), contentType, data, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("meta photo upload returned no id")
	}
	return out.ID, nil
}

// publishVideo uploads and publishes the video in one call
func (m *Meta) publishVideo(ctx context.Context, ref, text string) (string, error) {
	data, _, err := m.media.Open(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("meta: %w", err)
	}
	var out graphID
	if err := m.client.postMultipart(ctx, "video upload", m.graphVid+"/"+m.pageID+"/videos", map[string]string{
		"access_token": m.token,
		"description":  text,
		"published":    "true",
	}, path.Base(ref), "video/mp4", data, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("meta video upload returned no id")
	}
	return out.ID, nil
}

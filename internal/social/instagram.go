package social

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/publishing"
	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/types"
)

// Instagram defaults
const (
	DefaultInstagramGraphURL     = "https://graph.facebook.com/v19.0"
	DefaultInstagramPollInterval = 5 * time.Second
	DefaultInstagramPollAttempts = 20
)

// InstagramConfig configures the Instagram reels publisher
type InstagramConfig struct {
	AccessToken  string
	AccountID    string
	GraphURL     string
	PollInterval time.Duration
	PollAttempts int
	HTTPClient   *http.Client
	Gate         *ratelimit.Gate
}

// Instagram publishes reels through the resumable upload flow
type Instagram struct {
	client       httpClient
	token        string
	accountID    string
	graph        string
	pollInterval time.Duration
	pollAttempts int
	media        MediaOpener
}

// NewInstagram validates cfg and creates the publisher
func NewInstagram(cfg InstagramConfig, media MediaOpener) (*Instagram, error) {
	if err := config.Require("Instagram publishing",
		config.Setting{Name: config.EnvMetaPageToken, Value: cfg.AccessToken},
		config.Setting{Name: config.EnvInstagramAccountID, Value: cfg.AccountID},
	); err != nil {
		return nil, err
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultInstagramGraphURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultInstagramPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultInstagramPollAttempts
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Instagram{
		client:       httpClient{platform: string(types.PlatformInstagram), http: cfg.HTTPClient, gate: cfg.Gate},
		token:        cfg.AccessToken,
		accountID:    cfg.AccountID,
		graph:        strings.TrimRight(cfg.GraphURL, "/"),
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollAttempts,
		media:        media,
	}, nil
}

type reelContainer struct {
	ID  string `json:"id"`
	URI string `json:"uri"`
}

type containerStatus struct {
	StatusCode string `json:"status_code"`
}

// Publish uploads the video as a reel container, waits for processing, and publishes it
func (ig *Instagram) Publish(ctx context.Context, post publishing.Post) (string, error) {
	if post.Media.Kind != types.MediaVideo {
		return "", fmt.Errorf("instagram requires a video")
	}
	data, _, err := ig.media.Open(ctx, post.Media.Ref)
	if err != nil {
		return "", fmt.Errorf("instagram: %w", err)
	}

	var container reelContainer
	if err := ig.client.postForm(ctx, "create container", ig.graph+"/"+ig.accountID+"/media", url.Values{
		"media_type":   {"REELS"},
		"upload_type":  {"resumable"},
		"caption":      {postText(post)},
		"access_token": {ig.token},
	}, &container); err != nil {
		return "", err
	}
	if container.ID == "" || container.URI == "" {
		return "", fmt.Errorf("instagram container response missing id or upload uri")
	}

	req, err := http.NewRequest(http.MethodPost, container.URI, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "OAuth "+ig.token)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", strconv.Itoa(len(data)))
	if _, err := ig.client.do(ctx, "video upload", req, nil); err != nil {
		return "", err
	}

	if err := ig.waitFinished(ctx, container.ID); err != nil {
		return "", err
	}

	var published graphID
	if err := ig.client.postForm(ctx, "publish", ig.graph+"/"+ig.accountID+"/media_publish", url.Values{
		"creation_id":  {container.ID},
		"access_token": {ig.token},
	}, &published); err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", fmt.Errorf("instagram publish returned no id")
	}
	return published.ID, nil
}

// waitFinished polls the container until processing finishes, bounded by the attempt ceiling
func (ig *Instagram) waitFinished(ctx context.Context, containerID string) error {
	endpoint := ig.graph + "/" + containerID + "?" + url.Values{
		"fields":       {"status_code"},
		"access_token": {ig.token},
	}.Encode()

	timer := time.NewTimer(ig.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= ig.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		var status containerStatus
		if _, err := ig.client.do(ctx, "status check", req, &status); err == nil {
			switch status.StatusCode {
			case "FINISHED":
				return nil
			case "ERROR", "EXPIRED":
				return fmt.Errorf("instagram processing of %s ended with %s", containerID, status.StatusCode)
			}
		}
		timer.Reset(ig.pollInterval)
	}
	return fmt.Errorf("instagram container %s not ready after %d checks", containerID, ig.pollAttempts)
}

package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/types"
)

// Video API defaults
const (
	DefaultVideoModel       = "openai/sora-2"
	DefaultVideoLength      = 10
	DefaultVideoAspectRatio = "9:16"
	VideoProvider           = "video_api"
)

// VideoConfig configures a VideoClient
type VideoConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	PollInterval time.Duration
	PollAttempts int
	HTTPClient   *http.Client
	Gate         *ratelimit.Gate
	Logger       zerolog.Logger
}

// Video is a finished generation
type Video struct {
	TaskID          string
	Ref             string
	DurationSeconds int
}

// VideoClient submits text/image-to-video jobs and polls until the file is ready
type VideoClient struct {
	api          apiClient
	model        string
	pollInterval time.Duration
	pollAttempts int
	store        Store
	logger       zerolog.Logger
}

// NewVideoClient validates cfg and creates a client saving finished videos to store
func NewVideoClient(cfg VideoConfig, store Store) (*VideoClient, error) {
	if err := config.Require("video generation",
		config.Setting{Name: config.EnvVideoAPIURL, Value: cfg.BaseURL},
		config.Setting{Name: config.EnvVideoAPIKey, Value: cfg.APIKey},
	); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVideoModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultVideoPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = config.DefaultVideoPollAttempts
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}

	return &VideoClient{
		api: apiClient{
			provider: VideoProvider,
			baseURL:  cfg.BaseURL,
			apiKey:   cfg.APIKey,
			http:     cfg.HTTPClient,
			gate:     cfg.Gate,
		},
		model:        cfg.Model,
		pollInterval: cfg.PollInterval,
		pollAttempts: cfg.PollAttempts,
		store:        store,
		logger:       cfg.Logger,
	}, nil
}

type videoRequest struct {
	Model       string `json:"model"`
	Length      int    `json:"length"`
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Image       string `json:"image,omitempty"`
}

type videoTask struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Data *struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	} `json:"data"`
}

type pollRequest struct {
	TaskID string `json:"taskId"`
	Model  string `json:"model"`
}

type pollStatus struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// Generate submits prompt (plus an optional reference image) and waits for the
// finished video. Polling is bounded by the attempt ceiling and ctx.
func (c *VideoClient) Generate(ctx context.Context, prompt string, image []byte, imageType string) (*Video, error) {
	req := videoRequest{
		Model:       c.model,
		Length:      DefaultVideoLength,
		Prompt:      prompt,
		AspectRatio: DefaultVideoAspectRatio,
	}
	if len(image) > 0 {
		if imageType == "" {
			imageType = "image/jpeg"
		}
		req.Image = fmt.Sprintf("data:%s;base64,%s", imageType, base64.StdEncoding.EncodeToString(image))
	}

	var task videoTask
	if err := c.api.postJSON(ctx, "/videos", req, &task); err != nil {
		return nil, err
	}

	taskID, directURL := task.ID, task.URL
	if task.Data != nil {
		if taskID == "" {
			taskID = task.Data.ID
		}
		if directURL == "" {
			directURL = task.Data.URL
		}
	}
	if taskID == "" {
		if directURL == "" {
			return nil, types.NewCollaboratorError(types.ErrorKindMalformedOutput, "video API returned neither a task id nor a url", nil)
		}
		return &Video{Ref: directURL, DurationSeconds: DefaultVideoLength}, nil
	}

	c.logger.Debug().Str("task_id", taskID).Msg("video task submitted")
	data, err := c.poll(ctx, taskID)
	if err != nil {
		return nil, err
	}

	ref, err := c.store.Save(ctx, KindVideo, fmt.Sprintf("video_%s.mp4", safeName(taskID)), data, "video/mp4")
	if err != nil {
		return nil, err
	}
	return &Video{TaskID: taskID, Ref: ref, DurationSeconds: DefaultVideoLength}, nil
}

// poll waits one interval before each status check and returns the video bytes
func (c *VideoClient) poll(ctx context.Context, taskID string) ([]byte, error) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		data, done, err := c.check(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if done {
			return data, nil
		}
		c.logger.Debug().Str("task_id", taskID).Int("attempt", attempt).Int("max_attempts", c.pollAttempts).Msg("video not ready")
		timer.Reset(c.pollInterval)
	}

	return nil, types.NewCollaboratorError(types.ErrorKindTimeout,
		fmt.Sprintf("video %s not ready after %d polls", taskID, c.pollAttempts), nil)
}

// check performs one status call. A binary body means the video is ready.
func (c *VideoClient) check(ctx context.Context, taskID string) ([]byte, bool, error) {
	resp, err := c.api.post(ctx, "/getVideoResponse", pollRequest{TaskID: taskID, Model: c.model})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode == http.StatusOK && (strings.HasPrefix(contentType, "video/") || strings.HasPrefix(contentType, "application/octet-stream")) {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("failed to download video %s: %w", taskID, err)
		}
		return data, true, nil
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, statusError(VideoProvider, resp)
	case resp.StatusCode == http.StatusOK:
		var status pollStatus
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&status); err == nil {
			if s := strings.ToLower(status.Status); s == "failed" || s == "error" {
				return nil, false, types.NewCollaboratorError(types.ErrorKindUpstream,
					fmt.Sprintf("video %s failed: %s", taskID, status.Error), nil)
			}
		}
	}
	// still processing
	return nil, false, nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/catalyst/internal/config"
	"github.com/jonathan/catalyst/internal/types"
)

func newVideoClient(t *testing.T, url string, attempts int) (*VideoClient, string) {
	t.Helper()
	root := t.TempDir()
	client, err := NewVideoClient(VideoConfig{
		BaseURL:      url,
		APIKey:       "secret",
		PollInterval: time.Millisecond,
		PollAttempts: attempts,
	}, NewLocalStore(root))
	require.NoError(t, err)
	return client, root
}

func kindOf(t *testing.T, err error) types.ErrorKind {
	t.Helper()
	var collabErr *types.CollaboratorError
	require.True(t, errors.As(err, &collabErr), "expected CollaboratorError, got %v", err)
	return collabErr.Kind
}

func TestNewVideoClient_MissingSettings(t *testing.T) {
	_, err := NewVideoClient(VideoConfig{}, NewLocalStore(t.TempDir()))
	require.Error(t, err)

	var missing *config.MissingSettingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{config.EnvVideoAPIURL, config.EnvVideoAPIKey}, missing.Settings)
}

func TestVideoClient_SubmitAndPoll(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/videos":
			var req videoRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, DefaultVideoModel, req.Model)
			assert.Equal(t, DefaultVideoLength, req.Length)
			assert.Equal(t, DefaultVideoAspectRatio, req.AspectRatio)
			assert.Equal(t, "data:image/png;base64,aW1n", req.Image)
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"id": "task-1"}})
		case "/getVideoResponse":
			var req pollRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "task-1", req.TaskID)
			if polls.Add(1) < 3 {
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "processing"})
				return
			}
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("mp4-bytes"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, root := newVideoClient(t, server.URL, 5)
	video, err := client.Generate(context.Background(), "a vertical reel", []byte("img"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "task-1", video.TaskID)
	assert.Equal(t, filepath.Join(root, "videos", "video_task-1.mp4"), video.Ref)
	assert.Equal(t, DefaultVideoLength, video.DurationSeconds)
	assert.Equal(t, int32(3), polls.Load())

	data, err := os.ReadFile(video.Ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp4-bytes"), data)
}

func TestVideoClient_DirectURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/videos", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"url": "https://cdn.example.com/v.mp4"})
	}))
	defer server.Close()

	client, _ := newVideoClient(t, server.URL, 5)
	video, err := client.Generate(context.Background(), "prompt", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/v.mp4", video.Ref)
	assert.Empty(t, video.TaskID)
}

func TestVideoClient_PollCeiling(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/videos" {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "slow"})
			return
		}
		polls.Add(1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client, _ := newVideoClient(t, server.URL, 3)
	_, err := client.Generate(context.Background(), "prompt", nil, "")
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindTimeout, kindOf(t, err))
	assert.Equal(t, int32(3), polls.Load())
}

func TestVideoClient_TaskFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/videos" {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "bad"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "failed", "error": "content policy"})
	}))
	defer server.Close()

	client, _ := newVideoClient(t, server.URL, 3)
	_, err := client.Generate(context.Background(), "prompt", nil, "")
	require.Error(t, err)
	assert.Equal(t, types.ErrorKindUpstream, kindOf(t, err))
	assert.Contains(t, err.Error(), "content policy")
}

func TestVideoClient_SubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   types.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, types.ErrorKindMissingCredential},
		{"server error", http.StatusBadGateway, `oops`, types.ErrorKindUpstream},
		{"no task id", http.StatusOK, `{}`, types.ErrorKindMalformedOutput},
		{"invalid json", http.StatusOK, `not json`, types.ErrorKindMalformedOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, _ := newVideoClient(t, server.URL, 1)
			_, err := client.Generate(context.Background(), "prompt", nil, "")
			require.Error(t, err)
			assert.Equal(t, tt.kind, kindOf(t, err))
		})
	}
}

func TestVideoClient_ContextCancelledWhilePolling(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/videos" {
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "t"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	root := t.TempDir()
	client, err := NewVideoClient(VideoConfig{
		BaseURL:      server.URL,
		APIKey:       "k",
		PollInterval: time.Hour,
		PollAttempts: 2,
	}, NewLocalStore(root))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Generate(ctx, "prompt", nil, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

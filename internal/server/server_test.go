package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/catalyst/internal/db"
	"github.com/jonathan/catalyst/internal/pipeline"
	"github.com/jonathan/catalyst/internal/publishing"
	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/types"
)

type testServer struct {
	*Server
	store   *db.Memory
	handler http.Handler
}

func fakeCollaborators() pipeline.Collaborators {
	publish := publishing.PublisherFunc(func(_ context.Context, post publishing.Post) (string, error) {
		return string(post.Platform) + "-post", nil
	})
	reconciler := publishing.NewReconciler(map[types.Platform]publishing.Publisher{
		types.PlatformLinkedIn: publish,
		types.PlatformMeta:     publish,
	}, zerolog.Nop())

	return pipeline.Collaborators{
		types.StepCategoryDetection: pipeline.Adapt(func(context.Context, *types.CategoryInput) (*types.CategoryResult, error) {
			return &types.CategoryResult{Category: "tech_gadgets", Confidence: 0.9}, nil
		}),
		types.StepVisionAnalysis: pipeline.Adapt(func(context.Context, *types.VisionInput) (*types.VisionResult, error) {
			return &types.VisionResult{ProductType: "earbuds", Features: []string{"ANC"}}, nil
		}),
		types.StepCompetitorAnalysis: pipeline.Adapt(func(context.Context, *types.CompetitorInput) (*types.CompetitorResult, error) {
			return &types.CompetitorResult{Competitors: []types.Competitor{{Name: "AirPods Pro"}}}, nil
		}),
		types.StepEmotionalAnalysis: pipeline.Adapt(func(context.Context, *types.EmotionalInput) (*types.EmotionalResult, error) {
			return &types.EmotionalResult{PrimaryEmotion: "RELIEF"}, nil
		}),
		types.StepHookGeneration: pipeline.Adapt(func(context.Context, *types.HookInput) (*types.HookResult, error) {
			return &types.HookResult{Hooks: []types.Hook{{Text: "Silence the city."}}}, nil
		}),
		types.StepMarketResearch: pipeline.Adapt(func(context.Context, *types.MarketResearchInput) (*types.MarketResearchResult, error) {
			return &types.MarketResearchResult{Sources: []types.Source{{Title: "Review", URL: "https://example.com"}}, QueryCount: 2}, nil
		}),
		types.StepVideoGeneration: pipeline.Adapt(func(context.Context, *types.MediaInput) (*types.VideoResult, error) {
			return &types.VideoResult{Script: "script", VideoRef: "static/videos/v.mp4"}, nil
		}),
		types.StepPosterGeneration: pipeline.Adapt(func(context.Context, *types.MediaInput) (*types.PosterResult, error) {
			return &types.PosterResult{Prompt: "poster", PosterRef: "static/posters/p.png"}, nil
		}),
		types.StepContentGeneration: pipeline.Adapt(func(context.Context, *types.ContentInput) (*types.ContentResult, error) {
			return &types.ContentResult{
				LinkedInPost: types.LinkedInPost{Title: "Meet Aura", Content: "Sound, reimagined."},
				MetaPost:     types.MetaPost{Caption: "Quiet commute."},
				BlogPost:     types.BlogPost{Title: "Why ANC", Content: "Long form"},
			}, nil
		}),
		types.StepPerformancePrediction: pipeline.Adapt(func(context.Context, *types.PredictionInput) (*types.PredictionResult, error) {
			return &types.PredictionResult{EngagementScore: 70}, nil
		}),
		types.StepSocialPublishing: pipeline.Adapt(reconciler.Reconcile),
		types.StepImageGeneration: pipeline.Adapt(func(context.Context, *types.MediaInput) (*types.ImageResult, error) {
			return &types.ImageResult{ImageRef: "static/images/i.png"}, nil
		}),
	}
}

func newTestServer(t *testing.T, overrides pipeline.Collaborators, limits *ratelimit.Config) *testServer {
	t.Helper()
	collaborators := fakeCollaborators()
	for st, c := range overrides {
		collaborators[st] = c
	}
	executor, err := pipeline.NewExecutor(collaborators)
	require.NoError(t, err)
	t.Cleanup(executor.Release)

	if limits == nil {
		limits = &ratelimit.Config{Enabled: false}
	}
	store := db.NewMemory()
	s, err := New(Config{Orchestrator: pipeline.New(store, executor), RateLimit: limits, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &testServer{Server: s, store: store, handler: s.Handler()}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

// startRun creates a run through the API and waits for its background pipeline
func (ts *testServer) startRun(t *testing.T) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/runs", map[string]any{"product_name": "Wireless Earbuds", "description": "noise-cancelling earbuds"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.RunStatusCreated, resp.Status)
	ts.runs.Wait()
	return resp.RunID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestCreateRun_RunsPipelineInBackground(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	runID := ts.startRun(t)

	w := ts.do(t, http.MethodGet, "/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[pipeline.RunStatus](t, w)
	assert.Equal(t, types.RunStatusCompleted, status.Run.Status)
	assert.Equal(t, "tech_gadgets", status.Run.Category)
	assert.False(t, status.Active)
	assert.NotEmpty(t, status.Steps)
	assert.Empty(t, status.Available)
}

func TestCreateRun_Validation(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	w := ts.do(t, http.MethodPost, "/runs", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/runs", map[string]any{"description": "no name"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/runs", map[string]any{"product_name": "Earbuds", "platforms": []string{"myspace"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	runs, err := ts.store.ListRuns(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestGetRun_Errors(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/runs/not-a-uuid", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/runs/"+"6f1c2a1e-5b0c-4c53-9f8e-3d2b1a0c9e7f", nil).Code)
}

func TestListRuns(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.startRun(t)
	ts.startRun(t)

	w := ts.do(t, http.MethodGet, "/runs?status=completed&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[RunListResponse](t, w).Count)

	w = ts.do(t, http.MethodGet, "/runs?status=failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[RunListResponse](t, w)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Runs)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/runs?status=exploded", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/runs?limit=-3", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/runs?owner_id=bob", nil).Code)
}

func TestListRunSteps(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	runID := ts.startRun(t)

	w := ts.do(t, http.MethodGet, "/runs/"+runID+"/steps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[RunStepsListResponse](t, w)
	assert.Equal(t, types.RunStatusCompleted, resp.Status)
	assert.Equal(t, 12, resp.Summary.Total)
	// no source image, so image generation never ran
	assert.Equal(t, 11, resp.Summary.Completed)
	assert.Equal(t, 1, resp.Summary.NotRun)
}

func TestGetStepStatus(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	runID := ts.startRun(t)

	w := ts.do(t, http.MethodGet, "/runs/"+runID+"/steps/social_media_publishing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StepStatusResponse](t, w)
	assert.Equal(t, types.StepSocialPublishing, resp.Step)
	require.NotNil(t, resp.Latest)
	assert.Equal(t, types.StepStatusCompleted, resp.Latest.Status)
	assert.Len(t, resp.Attempts, 1)

	w = ts.do(t, http.MethodGet, "/runs/"+runID+"/steps/vision_analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[StepStatusResponse](t, w).Fatal)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/runs/"+runID+"/steps/teleport", nil).Code)
}

func failOnce(next pipeline.Collaborator) pipeline.Collaborator {
	var calls atomic.Int32
	return collaboratorFunc(func(ctx context.Context, input any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, types.NewCollaboratorError(types.ErrorKindUpstream, "transient", nil)
		}
		return next.Run(ctx, input)
	})
}

type collaboratorFunc func(ctx context.Context, input any) (any, error)

func (f collaboratorFunc) Run(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

func TestRetryThenResume(t *testing.T) {
	vision := fakeCollaborators()[types.StepVisionAnalysis]
	ts := newTestServer(t, pipeline.Collaborators{types.StepVisionAnalysis: failOnce(vision)}, nil)
	runID := ts.startRun(t)

	run := decode[pipeline.RunStatus](t, ts.do(t, http.MethodGet, "/runs/"+runID, nil)).Run
	require.Equal(t, types.RunStatusFailed, run.Status)

	// category detection completed and cannot be retried
	w := ts.do(t, http.MethodPost, "/runs/"+runID+"/steps/category_detection/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(t, http.MethodPost, "/runs/"+runID+"/steps/vision_analysis/retry", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	retry := decode[map[string]any](t, w)
	// downstream fatal steps have not run yet
	assert.Equal(t, string(types.RunStatusFailed), retry["run_status"])

	w = ts.do(t, http.MethodPost, "/runs/"+runID+"/resume", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	ts.runs.Wait()

	status := decode[pipeline.RunStatus](t, ts.do(t, http.MethodGet, "/runs/"+runID, nil))
	assert.Equal(t, types.RunStatusCompleted, status.Run.Status)

	w = ts.do(t, http.MethodPost, "/runs/"+runID+"/resume", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelRun_NotActive(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	runID := ts.startRun(t)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/runs/"+runID+"/cancel", nil).Code)
}

func TestCancelRun_Active(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	slowCategory := collaboratorFunc(func(ctx context.Context, input any) (any, error) {
		close(entered)
		<-release
		return &types.CategoryResult{Category: "tech_gadgets"}, nil
	})
	ts := newTestServer(t, pipeline.Collaborators{types.StepCategoryDetection: slowCategory}, nil)

	w := ts.do(t, http.MethodPost, "/runs", map[string]any{"product_name": "Wireless Earbuds"})
	require.Equal(t, http.StatusAccepted, w.Code)
	runID := decode[RunResponse](t, w).RunID

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("category detection never started")
	}
	assert.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/runs/"+runID+"/cancel", nil).Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodDelete, "/runs/"+runID, nil).Code)
	close(release)
	ts.runs.Wait()

	status := decode[pipeline.RunStatus](t, ts.do(t, http.MethodGet, "/runs/"+runID, nil))
	assert.Equal(t, types.RunStatusFailed, status.Run.Status)
	assert.Len(t, status.Steps, 1)
}

func TestDeleteRun(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	runID := ts.startRun(t)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/runs/"+runID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/runs/"+runID, nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/runs/"+runID, nil).Code)
}

func TestAssetsAndFeedback(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	runID := ts.startRun(t)

	w := ts.do(t, http.MethodGet, "/runs/"+runID+"/assets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[AssetListResponse](t, w)
	// three copy assets plus the video and the poster
	assert.Equal(t, 5, all.Count)

	w = ts.do(t, http.MethodGet, "/runs/"+runID+"/assets?type=linkedin_post", nil)
	require.Equal(t, http.StatusOK, w.Code)
	linkedin := decode[AssetListResponse](t, w)
	require.Equal(t, 1, linkedin.Count)
	assetID := linkedin.Assets[0].ID.String()

	w = ts.do(t, http.MethodGet, "/assets/"+assetID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.AssetLinkedInPost, decode[types.Asset](t, w).Type)

	w = ts.do(t, http.MethodPost, "/assets/"+assetID+"/feedback", map[string]any{
		"metrics":     map[string]any{"likes": 42, "ctr": 0.031},
		"qualitative": "hook landed",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	asset := decode[types.Asset](t, w)
	assert.Equal(t, 42.0, asset.Metrics["likes"])
	assert.Equal(t, "hook landed", asset.Metrics[types.QualitativeMetricsKey])

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/assets/"+assetID+"/feedback", map[string]any{}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/assets/6f1c2a1e-5b0c-4c53-9f8e-3d2b1a0c9e7f/feedback", map[string]any{"metrics": map[string]any{"likes": 1}}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/assets/6f1c2a1e-5b0c-4c53-9f8e-3d2b1a0c9e7f", nil).Code)
}

func TestRunStream(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	w := ts.do(t, http.MethodPost, "/runs/stream", map[string]any{"product_name": "Wireless Earbuds"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: step\n")
	assert.Contains(t, body, `"type":"step_completed"`)
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"status":"completed"`)
	assert.True(t, strings.Index(body, "event: step") < strings.Index(body, "event: complete"))
}

func TestRunStream_ValidationIsJSON(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.do(t, http.MethodPost, "/runs/stream", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestRateLimit(t *testing.T) {
	limits := &ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  1000,
		DefaultWindow: time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{
			{Path: "/runs", Method: http.MethodPost, Limit: 1, Window: time.Hour, Burst: 1},
		},
	}
	ts := newTestServer(t, nil, limits)

	ts.startRun(t)
	w := ts.do(t, http.MethodPost, "/runs", map[string]any{"product_name": "Wireless Earbuds"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode[map[string]any](t, w)["error"])

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	w := ts.do(t, http.MethodOptions, "/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

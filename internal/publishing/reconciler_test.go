package publishing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/catalyst/internal/types"
)

type recordingPublisher struct {
	mu    sync.Mutex
	posts []Post
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, post Post) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, post)
	if p.err != nil {
		return "", p.err
	}
	return string(post.Platform) + "-post", nil
}

func sampleInput() *types.PublishingInput {
	return &types.PublishingInput{
		Content: types.ContentResult{
			LinkedInPost: types.LinkedInPost{Title: "Meet Aura", Content: "Sound, reimagined.", Hashtags: []string{"audio", "#tech"}},
			MetaPost:     types.MetaPost{Caption: "Your commute just got quieter.", Hashtags: []string{"earbuds"}},
			BlogPost:     types.BlogPost{Title: "Why ANC matters", Content: "Long form"},
		},
		Platforms: []types.Platform{types.PlatformLinkedIn, types.PlatformMeta, types.PlatformInstagram},
	}
}

func TestPlan_VideoPreferred(t *testing.T) {
	in := sampleInput()
	in.Video = &types.VideoResult{VideoRef: "static/videos/aura.mp4"}
	in.Poster = &types.PosterResult{PosterRef: "static/posters/aura.png"}

	posts := Plan(in)
	require.Len(t, posts, 3)
	for _, post := range posts {
		assert.Equal(t, types.MediaVideo, post.Media.Kind)
		assert.Equal(t, "static/videos/aura.mp4", post.Media.Ref)
		assert.Equal(t, types.PostKindPrimary, post.Kind)
	}
	assert.Equal(t, types.PlatformInstagram, posts[2].Platform)
	assert.Equal(t, in.Content.MetaPost.Caption, posts[2].Text)
}

func TestPlan_PosterFallbackSkipsInstagram(t *testing.T) {
	in := sampleInput()
	in.Poster = &types.PosterResult{PosterRef: "static/posters/aura.png"}

	posts := Plan(in)
	require.Len(t, posts, 2)
	for _, post := range posts {
		assert.Equal(t, types.MediaImage, post.Media.Kind)
		assert.Equal(t, "static/posters/aura.png", post.Media.Ref)
		assert.NotEqual(t, types.PlatformInstagram, post.Platform)
	}
}

func TestPlan_TextOnly(t *testing.T) {
	posts := Plan(sampleInput())
	require.Len(t, posts, 2)
	for _, post := range posts {
		assert.Equal(t, types.MediaNone, post.Media.Kind)
		assert.Empty(t, post.Media.Ref)
	}
}

func TestPlan_DeduplicatesPlatforms(t *testing.T) {
	in := sampleInput()
	in.Platforms = []types.Platform{types.PlatformMeta, types.PlatformMeta}
	assert.Len(t, Plan(in), 1)
}

func TestReconcile_VideoAndPosterAddsBonusPosts(t *testing.T) {
	linkedin, meta, instagram := &recordingPublisher{}, &recordingPublisher{}, &recordingPublisher{}
	r := NewReconciler(map[types.Platform]Publisher{
		types.PlatformLinkedIn:  linkedin,
		types.PlatformMeta:      meta,
		types.PlatformInstagram: instagram,
	}, zerolog.Nop())

	in := sampleInput()
	in.Video = &types.VideoResult{VideoRef: "static/videos/aura.mp4"}
	in.Poster = &types.PosterResult{PosterRef: "static/posters/aura.png"}

	result, err := r.Reconcile(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	require.Len(t, linkedin.posts, 2)
	bonus := linkedin.posts[1]
	assert.Equal(t, types.PostKindPosterBonus, bonus.Kind)
	assert.Equal(t, "Meet Aura [Official Poster]", bonus.Title)
	assert.Contains(t, bonus.Text, "#audio")
	assert.Equal(t, Media{Kind: types.MediaImage, Ref: "static/posters/aura.png"}, bonus.Media)

	require.Len(t, meta.posts, 2)
	assert.Equal(t, types.PostKindPosterBonus, meta.posts[1].Kind)
	assert.Len(t, instagram.posts, 1)
}

func TestReconcile_NoBonusWithoutVideo(t *testing.T) {
	linkedin := &recordingPublisher{}
	r := NewReconciler(map[types.Platform]Publisher{types.PlatformLinkedIn: linkedin}, zerolog.Nop())

	in := sampleInput()
	in.Platforms = []types.Platform{types.PlatformLinkedIn}
	in.Poster = &types.PosterResult{PosterRef: "static/posters/aura.png"}

	result, err := r.Reconcile(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, types.MediaImage, result.Results[0].Media)
}

func TestReconcile_FailureIsIsolated(t *testing.T) {
	linkedin := &recordingPublisher{err: errors.New("LinkedIn API error: 401")}
	meta := &recordingPublisher{}
	panicking := PublisherFunc(func(context.Context, Post) (string, error) {
		panic("boom")
	})
	r := NewReconciler(map[types.Platform]Publisher{
		types.PlatformLinkedIn:  linkedin,
		types.PlatformMeta:      meta,
		types.PlatformInstagram: panicking,
	}, zerolog.Nop())

	in := sampleInput()
	in.Video = &types.VideoResult{VideoRef: "static/videos/aura.mp4"}
	in.Poster = &types.PosterResult{PosterRef: "static/posters/aura.png"}

	result, err := r.Reconcile(context.Background(), in)
	require.NoError(t, err)

	byKey := map[string]types.PlatformResult{}
	for _, res := range result.Results {
		byKey[string(res.Platform)+"/"+string(res.Kind)] = res
	}

	assert.Equal(t, types.PublishStatusError, byKey["linkedin/primary"].Status)
	assert.Contains(t, byKey["linkedin/primary"].Message, "401")
	_, hasLinkedInBonus := byKey["linkedin/poster_bonus"]
	assert.False(t, hasLinkedInBonus, "bonus only follows a successful primary post")

	assert.Equal(t, types.PublishStatusSuccess, byKey["meta/primary"].Status)
	assert.Equal(t, "meta-post", byKey["meta/primary"].PostID)
	assert.Equal(t, types.PublishStatusSuccess, byKey["meta/poster_bonus"].Status)

	assert.Equal(t, types.PublishStatusError, byKey["instagram/primary"].Status)
	assert.Contains(t, byKey["instagram/primary"].Message, "panicked")

	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
}

func TestReconcile_MissingPublisher(t *testing.T) {
	r := NewReconciler(map[types.Platform]Publisher{}, zerolog.Nop())

	result, err := r.Reconcile(context.Background(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	for _, res := range result.Results {
		assert.Contains(t, res.Message, "not configured")
	}
}

func TestPlan_DoesNotMutateInput(t *testing.T) {
	in := sampleInput()
	in.Video = &types.VideoResult{VideoRef: "v.mp4"}
	before := *in

	first := Plan(in)
	second := Plan(in)
	assert.Equal(t, first, second)
	assert.Equal(t, before.Content, in.Content)
	assert.Equal(t, before.Platforms, in.Platforms)
}

func TestFormatText(t *testing.T) {
	assert.Equal(t, "Hello", FormatText("Hello", nil))
	assert.Equal(t, "Hello\n\n#a #b", FormatText("Hello ", []string{"a", "#b", " "}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 50))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
}

// Package publishing decides what gets posted where and aggregates the
// per-platform outcomes of the social publishing step.
package publishing

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonathan/catalyst/internal/types"
)

// PosterTitleSuffix marks the bonus poster post on LinkedIn
const PosterTitleSuffix = " [Official Poster]"

// Media is the attachment for a post
type Media struct {
	Kind types.MediaKind
	Ref  string
}

// Post is one publish call to one platform
type Post struct {
	Platform types.Platform
	Kind     types.PostKind
	Title    string
	Text     string
	Hashtags []string
	Media    Media
}

// Publisher posts to a single platform and returns the platform's post ID
type Publisher interface {
	Publish(ctx context.Context, post Post) (string, error)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, post Post) (string, error)

// Publish calls f
func (f PublisherFunc) Publish(ctx context.Context, post Post) (string, error) {
	return f(ctx, post)
}

// Reconciler turns generated content and media into platform posts
type Reconciler struct {
	publishers map[types.Platform]Publisher
	logger     zerolog.Logger
}

// NewReconciler creates a Reconciler over the configured platform publishers
func NewReconciler(publishers map[types.Platform]Publisher, logger zerolog.Logger) *Reconciler {
	return &Reconciler{publishers: publishers, logger: logger}
}

// PrimaryMedia picks the attachment for primary posts: the video when one
// was generated, otherwise the poster, otherwise nothing.
func PrimaryMedia(in *types.PublishingInput) Media {
	if in.Video != nil && in.Video.VideoRef != "" {
		return Media{Kind: types.MediaVideo, Ref: in.Video.VideoRef}
	}
	if in.Poster != nil && in.Poster.PosterRef != "" {
		return Media{Kind: types.MediaImage, Ref: in.Poster.PosterRef}
	}
	return Media{Kind: types.MediaNone}
}

// Plan returns the primary posts for every requested platform. Instagram
// only accepts video, so it is left out when no video exists.
func Plan(in *types.PublishingInput) []Post {
	media := PrimaryMedia(in)
	seen := make(map[types.Platform]bool, len(in.Platforms))

	var posts []Post
	for _, platform := range in.Platforms {
		if seen[platform] {
			continue
		}
		seen[platform] = true

		switch platform {
		case types.PlatformLinkedIn:
			posts = append(posts, Post{
				Platform: platform,
				Kind:     types.PostKindPrimary,
				Title:    in.Content.LinkedInPost.Title,
				Text:     in.Content.LinkedInPost.Content,
				Hashtags: in.Content.LinkedInPost.Hashtags,
				Media:    media,
			})
		case types.PlatformMeta:
			posts = append(posts, Post{
				Platform: platform,
				Kind:     types.PostKindPrimary,
				Text:     in.Content.MetaPost.Caption,
				Hashtags: in.Content.MetaPost.Hashtags,
				Media:    media,
			})
		case types.PlatformInstagram:
			if media.Kind != types.MediaVideo {
				continue
			}
			posts = append(posts, Post{
				Platform: platform,
				Kind:     types.PostKindPrimary,
				Text:     in.Content.MetaPost.Caption,
				Hashtags: in.Content.MetaPost.Hashtags,
				Media:    media,
			})
		}
	}
	return posts
}

// BonusPost returns the secondary poster post for a platform whose primary
// post carried the video. Only LinkedIn and Meta take one.
func BonusPost(in *types.PublishingInput, platform types.Platform) (Post, bool) {
	if in.Poster == nil || in.Poster.PosterRef == "" {
		return Post{}, false
	}
	poster := Media{Kind: types.MediaImage, Ref: in.Poster.PosterRef}

	switch platform {
	case types.PlatformLinkedIn:
		li := in.Content.LinkedInPost
		text := "Check out our official campaign poster! #Poster #Design"
		if len(li.Hashtags) > 0 {
			text += " " + hashtag(li.Hashtags[0])
		}
		return Post{
			Platform: platform,
			Kind:     types.PostKindPosterBonus,
			Title:    li.Title + PosterTitleSuffix,
			Text:     text,
			Media:    poster,
		}, true
	case types.PlatformMeta:
		return Post{
			Platform: platform,
			Kind:     types.PostKindPosterBonus,
			Text:     "Official Campaign Poster " + truncate(in.Content.MetaPost.Caption, 50) + " #Poster",
			Media:    poster,
		}, true
	}
	return Post{}, false
}

// Reconcile publishes the planned posts. A failing platform is recorded and
// never prevents the others from being attempted.
func (r *Reconciler) Reconcile(ctx context.Context, in *types.PublishingInput) (*types.PublishingResult, error) {
	result := &types.PublishingResult{Results: []types.PlatformResult{}}

	for _, post := range Plan(in) {
		primary := r.publish(ctx, post)
		record(result, primary)

		if primary.Status != types.PublishStatusSuccess || post.Media.Kind != types.MediaVideo {
			continue
		}
		if bonus, ok := BonusPost(in, post.Platform); ok {
			record(result, r.publish(ctx, bonus))
		}
	}

	r.logger.Info().Int("succeeded", result.Succeeded).Int("failed", result.Failed).Msg("publishing reconciled")
	return result, nil
}

func (r *Reconciler) publish(ctx context.Context, post Post) (res types.PlatformResult) {
	res = types.PlatformResult{
		Platform: post.Platform,
		Kind:     post.Kind,
		Media:    post.Media.Kind,
	}

	publisher, ok := r.publishers[post.Platform]
	if !ok {
		res.Status = types.PublishStatusError
		res.Message = fmt.Sprintf("%s publisher not configured", post.Platform)
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			res.Status = types.PublishStatusError
			res.Message = fmt.Sprintf("%s publisher panicked: %v", post.Platform, p)
		}
	}()

	id, err := publisher.Publish(ctx, post)
	if err != nil {
		r.logger.Warn().Str("platform", string(post.Platform)).Str("kind", string(post.Kind)).Err(err).Msg("publish failed")
		res.Status = types.PublishStatusError
		res.Message = err.Error()
		return res
	}
	res.Status = types.PublishStatusSuccess
	res.PostID = id
	return res
}

func record(result *types.PublishingResult, res types.PlatformResult) {
	result.Results = append(result.Results, res)
	if res.Status == types.PublishStatusSuccess {
		result.Succeeded++
	} else {
		result.Failed++
	}
}

func hashtag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" || strings.HasPrefix(tag, "#") {
		return tag
	}
	return "#" + tag
}

// FormatText joins body text and hashtags the way every platform expects
func FormatText(text string, hashtags []string) string {
	tags := make([]string, 0, len(hashtags))
	for _, h := range hashtags {
		if t := hashtag(h); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		return text
	}
	return strings.TrimSpace(text) + "\n\n" + strings.Join(tags, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

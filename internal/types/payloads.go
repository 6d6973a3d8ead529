package types

// Typed inputs and outputs for each pipeline step. Every output field is
// omitempty so the zero value of a result marshals to an empty payload, which
// is what downstream steps receive when an optional dependency failed.

// DefaultCategory is substituted when category detection fails
const DefaultCategory = "general"

// ProductContext is the static description of the product plus what vision analysis extracted
type ProductContext struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	BrandName   string       `json:"brand_name,omitempty"`
	Price       string       `json:"price,omitempty"`
	Category    string       `json:"category,omitempty"`
	ImageRef    string       `json:"image_ref,omitempty"`
	Vision      VisionResult `json:"vision"`
}

// CampaignStrategy carries the campaign-level intent fed to content generation
type CampaignStrategy struct {
	Goal     string `json:"goal,omitempty"`
	Audience string `json:"audience,omitempty"`
	Persona  string `json:"persona,omitempty"`
}

// CategoryInput feeds category detection
type CategoryInput struct {
	ProductName string `json:"product_name"`
	Description string `json:"description,omitempty"`
	ImageRef    string `json:"image_ref,omitempty"`
}

// CategoryResult is the detected product category
type CategoryResult struct {
	Category    string  `json:"category,omitempty"`
	Subcategory string  `json:"subcategory,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

// VisionInput feeds vision analysis
type VisionInput struct {
	ProductName string         `json:"product_name"`
	Description string         `json:"description,omitempty"`
	ImageRef    string         `json:"image_ref,omitempty"`
	Category    CategoryResult `json:"category"`
}

// VisionResult holds product attributes extracted from the image and description
type VisionResult struct {
	ProductType    string   `json:"product_type,omitempty"`
	Summary        string   `json:"summary,omitempty"`
	Features       []string `json:"features,omitempty"`
	Colors         []string `json:"colors,omitempty"`
	Materials      []string `json:"materials,omitempty"`
	Style          string   `json:"style,omitempty"`
	TargetAudience string   `json:"target_audience,omitempty"`
}

// CompetitorInput feeds competitor analysis
type CompetitorInput struct {
	ProductName string         `json:"product_name"`
	Category    CategoryResult `json:"category"`
	Vision      VisionResult   `json:"vision"`
}

// Competitor is one competing product or brand
type Competitor struct {
	Name        string `json:"name"`
	Positioning string `json:"positioning,omitempty"`
}

// CompetitorResult summarizes the competitive landscape
type CompetitorResult struct {
	Competitors     []Competitor `json:"competitors,omitempty"`
	Differentiators []string     `json:"differentiators,omitempty"`
	PriceTier       string       `json:"price_tier,omitempty"`
}

// EmotionalInput feeds emotional analysis
type EmotionalInput struct {
	Product  ProductContext `json:"product"`
	Category CategoryResult `json:"category"`
}

// EmotionalResult maps the product to buyer emotions
type EmotionalResult struct {
	PrimaryEmotion string   `json:"primary_emotion,omitempty"`
	Triggers       []string `json:"triggers,omitempty"`
	Tone           string   `json:"tone,omitempty"`
}

// HookInput feeds hook generation
type HookInput struct {
	Product    ProductContext   `json:"product"`
	Emotional  EmotionalResult  `json:"emotional"`
	Competitor CompetitorResult `json:"competitor"`
}

// Hook is one attention-grabbing opening line
type Hook struct {
	Text  string `json:"text"`
	Angle string `json:"angle,omitempty"`
}

// HookResult holds generated hooks
type HookResult struct {
	Hooks    []Hook `json:"hooks,omitempty"`
	BestHook string `json:"best_hook,omitempty"`
}

// MarketResearchInput feeds market research
type MarketResearchInput struct {
	ProductName string       `json:"product_name"`
	BrandName   string       `json:"brand_name,omitempty"`
	Category    string       `json:"category,omitempty"`
	Vision      VisionResult `json:"vision"`
}

// Source is one search result used as research evidence
type Source struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// MarketResearchResult is search-derived market context
type MarketResearchResult struct {
	Summary    string   `json:"summary,omitempty"`
	Features   []string `json:"features,omitempty"`
	Reviews    []string `json:"reviews,omitempty"`
	Sources    []Source `json:"sources,omitempty"`
	QueryCount int      `json:"query_count"`
}

// MediaInput feeds the video, poster, and image generation steps
type MediaInput struct {
	Product   ProductContext       `json:"product"`
	Hooks     HookResult           `json:"hooks"`
	Emotional EmotionalResult      `json:"emotional"`
	Market    MarketResearchResult `json:"market"`
}

// VideoResult references a generated short video
type VideoResult struct {
	Script          string `json:"script,omitempty"`
	VideoRef        string `json:"video_ref,omitempty"`
	TaskID          string `json:"task_id,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// PosterResult references a generated poster image
type PosterResult struct {
	Prompt    string `json:"prompt,omitempty"`
	PosterRef string `json:"poster_ref,omitempty"`
}

// ImageResult references a generated marketing image
type ImageResult struct {
	Prompt   string `json:"prompt,omitempty"`
	ImageRef string `json:"image_ref,omitempty"`
}

// ContentInput feeds content generation
type ContentInput struct {
	Product  ProductContext       `json:"product"`
	Market   MarketResearchResult `json:"market"`
	Hooks    HookResult           `json:"hooks"`
	Strategy CampaignStrategy     `json:"strategy"`
}

// LinkedInPost is the generated LinkedIn copy
type LinkedInPost struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// MetaPost is the generated Facebook/Instagram copy
type MetaPost struct {
	Caption  string   `json:"caption"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// BlogPost is the generated long-form article
type BlogPost struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	SEOKeywords []string `json:"seo_keywords,omitempty"`
}

// ContentResult holds all generated copy
type ContentResult struct {
	LinkedInPost LinkedInPost `json:"linkedin_post"`
	MetaPost     MetaPost     `json:"meta_post"`
	BlogPost     BlogPost     `json:"blog_post"`
}

// PredictionInput feeds performance prediction
type PredictionInput struct {
	Content   ContentResult   `json:"content"`
	Emotional EmotionalResult `json:"emotional"`
}

// PredictionResult is the advisory performance forecast
type PredictionResult struct {
	EngagementScore float64            `json:"engagement_score"`
	PlatformScores  map[string]float64 `json:"platform_scores,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// PublishingInput feeds the publication reconciler
type PublishingInput struct {
	Content   ContentResult `json:"content"`
	Video     *VideoResult  `json:"video,omitempty"`
	Poster    *PosterResult `json:"poster,omitempty"`
	Platforms []Platform    `json:"platforms"`
}

// PublishStatus is the outcome of one platform call
type PublishStatus string

// Publish outcomes
const (
	PublishStatusSuccess PublishStatus = "success"
	PublishStatusError   PublishStatus = "error"
)

// PostKind distinguishes the primary post from the bonus poster post
type PostKind string

// Post kinds
const (
	PostKindPrimary     PostKind = "primary"
	PostKindPosterBonus PostKind = "poster_bonus"
)

// MediaKind is the media attached to a post
type MediaKind string

// Media kinds
const (
	MediaNone  MediaKind = "none"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// PlatformResult is the tagged outcome of one publish call
type PlatformResult struct {
	Platform Platform      `json:"platform"`
	Kind     PostKind      `json:"kind"`
	Media    MediaKind     `json:"media"`
	Status   PublishStatus `json:"status"`
	PostID   string        `json:"platform_post_id,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// PublishingResult aggregates every platform result of one reconciliation
type PublishingResult struct {
	Results   []PlatformResult `json:"results"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
}

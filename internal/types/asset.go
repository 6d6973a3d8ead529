package types

import (
	"time"

	"github.com/google/uuid"
)

// AssetType identifies the kind of content artifact
type AssetType string

// Asset type constants
const (
	AssetLinkedInPost   AssetType = "linkedin_post"
	AssetMetaPost       AssetType = "meta_post"
	AssetBlogPost       AssetType = "blog_post"
	AssetImagePoster    AssetType = "image_poster"
	AssetVideoShort     AssetType = "video_short"
	AssetImageMarketing AssetType = "image_marketing"
)

// QualitativeMetricsKey holds free-text feedback inside an asset's metrics
const QualitativeMetricsKey = "_qualitative"

// Asset is a durable content artifact produced by a generation step
type Asset struct {
	ID           uuid.UUID      `json:"id"`
	RunID        uuid.UUID      `json:"run_id"`
	StepRecordID *uuid.UUID     `json:"step_record_id,omitempty"`
	Type         AssetType      `json:"asset_type"`
	Content      map[string]any `json:"content"`
	FileRef      string         `json:"file_ref,omitempty"`
	Metrics      map[string]any `json:"performance_metrics"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// MergeMetrics merges updates into existing metrics without dropping keys
func MergeMetrics(existing, updates map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

package observability

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/catalyst/internal/types"
)

func TestPrintRun(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRun(&types.Run{
		ID:          uuid.New(),
		ProductName: "Wireless Earbuds",
		Status:      types.RunStatusCompleted,
		Platforms:   []types.Platform{types.PlatformLinkedIn, types.PlatformMeta},
		RunSnapshot: types.RunSnapshot{
			Category:            "electronics",
			Subcategory:         "audio",
			PerformanceSnapshot: map[string]any{"engagement_score": 72.0},
		},
	})
	output := buf.String()

	assert.Contains(t, output, "CAMPAIGN RUN")
	assert.Contains(t, output, "Wireless Earbuds")
	assert.Contains(t, output, "electronics / audio")
	assert.Contains(t, output, "linkedin, meta")
	assert.Contains(t, output, "72")
}

func TestPrintRun_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRun(nil)
	assert.Empty(t, buf.String())
}

func TestPrintSteps(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	ms := 120
	p.PrintSteps([]types.StepRecord{
		{Step: types.StepVisionAnalysis, Attempt: 1, Status: types.StepStatusCompleted, DurationMs: &ms},
		{Step: types.StepEmotionalAnalysis, Attempt: 1, Status: types.StepStatusFailed, ErrorKind: types.ErrorKindTimeout},
	})
	output := buf.String()

	assert.Contains(t, output, "STEP RECORDS")
	assert.Contains(t, output, "vision_analysis")
	assert.Contains(t, output, "120ms")
	assert.Contains(t, output, "✗")
	assert.Contains(t, output, "timeout")
}

func TestPrintAssets(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	var assets []types.Asset
	for i := 0; i < 7; i++ {
		assets = append(assets, types.Asset{ID: uuid.New(), Type: types.AssetLinkedInPost, Content: map[string]any{"title": "Post"}})
	}
	assets = append(assets, types.Asset{ID: uuid.New(), Type: types.AssetVideoShort, FileRef: "static/videos/a.mp4"})

	p.PrintAssets(assets)
	output := buf.String()

	assert.Contains(t, output, "linkedin_post (7)")
	assert.Contains(t, output, "... and 2 more")
	assert.Contains(t, output, "static/videos/a.mp4")
}

func TestPrintPublishing(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintPublishing(&types.PublishingResult{
		Results: []types.PlatformResult{
			{Platform: types.PlatformLinkedIn, Kind: types.PostKindPrimary, Media: types.MediaVideo, Status: types.PublishStatusSuccess, PostID: "urn:li:share:1"},
			{Platform: types.PlatformMeta, Kind: types.PostKindPrimary, Media: types.MediaVideo, Status: types.PublishStatusError, Message: "token expired"},
		},
		Succeeded: 1,
		Failed:    1,
	})
	output := buf.String()

	assert.Contains(t, output, "Succeeded: 1  Failed: 1")
	assert.Contains(t, output, "urn:li:share:1")
	assert.Contains(t, output, "token expired")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	long := "This is a very long line that should definitely be truncated because it exceeds the box width"
	p.printBox("TEST", long)

	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), "box width")
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false, false)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	verbose := NewLogger(&buf, true, false)
	verbose.Debug().Msg("details")
	assert.Contains(t, buf.String(), "details")
}

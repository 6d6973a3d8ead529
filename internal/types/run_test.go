package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from RunStatus
		to   RunStatus
		want bool
	}{
		{RunStatusCreated, RunStatusProcessing, true},
		{RunStatusCreated, RunStatusCompleted, false},
		{RunStatusCreated, RunStatusFailed, false},
		{RunStatusProcessing, RunStatusCompleted, true},
		{RunStatusProcessing, RunStatusFailed, true},
		{RunStatusProcessing, RunStatusCreated, false},
		{RunStatusCompleted, RunStatusFailed, false},
		{RunStatusFailed, RunStatusCompleted, false},
		{RunStatusCompleted, RunStatusProcessing, true},
		{RunStatusFailed, RunStatusProcessing, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestSnapshotPatch_Apply(t *testing.T) {
	category := "electronics"
	confidence := 0.92
	snap := RunSnapshot{Subcategory: "audio"}

	patch := SnapshotPatch{
		Category:           &category,
		CategoryConfidence: &confidence,
		Hook:               map[string]any{"best_hook": "Silence the world"},
	}
	require.False(t, patch.IsEmpty())
	patch.Apply(&snap)

	assert.Equal(t, "electronics", snap.Category)
	assert.Equal(t, "audio", snap.Subcategory)
	require.NotNil(t, snap.CategoryConfidence)
	assert.InDelta(t, 0.92, *snap.CategoryConfidence, 1e-9)
	assert.Equal(t, "Silence the world", snap.HookSnapshot["best_hook"])
	assert.Nil(t, snap.EmotionalSnapshot)

	assert.True(t, SnapshotPatch{}.IsEmpty())
}

func TestParseStepType(t *testing.T) {
	st, err := ParseStepType("vision_analysis")
	require.NoError(t, err)
	assert.Equal(t, StepVisionAnalysis, st)

	st, err = ParseStepType("social_media_publishing")
	require.NoError(t, err)
	assert.Equal(t, StepSocialPublishing, st)

	_, err = ParseStepType("tailor_resume")
	assert.Error(t, err)
}

func TestZeroResultsMarshalEmpty(t *testing.T) {
	for name, v := range map[string]any{
		"emotional":  EmotionalResult{},
		"competitor": CompetitorResult{},
		"hooks":      HookResult{},
		"category":   CategoryResult{},
	} {
		data, err := json.Marshal(v)
		require.NoError(t, err, name)
		assert.JSONEq(t, `{}`, string(data), name)
	}
}

func TestMergeMetrics(t *testing.T) {
	existing := map[string]any{"likes": 10.0, "shares": 2.0}
	merged := MergeMetrics(existing, map[string]any{"likes": 25.0, "clicks": 4.0})

	assert.Equal(t, map[string]any{"likes": 25.0, "shares": 2.0, "clicks": 4.0}, merged)
	assert.Equal(t, 10.0, existing["likes"], "input map must not be mutated")
}

func TestSourceStatuses(t *testing.T) {
	assert.Equal(t, []RunStatus{RunStatusCreated, RunStatusCompleted, RunStatusFailed}, SourceStatuses(RunStatusProcessing))
	assert.Equal(t, []RunStatus{RunStatusProcessing}, SourceStatuses(RunStatusFailed))
	assert.Empty(t, SourceStatuses(RunStatusCreated))
}

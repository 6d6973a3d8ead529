package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"json fence", "```json\n{\"category\": \"fashion\"}\n```", `{"category": "fashion"}`},
		{"bare fence", "```\n{\"category\": \"fashion\"}\n```", `{"category": "fashion"}`},
		{"fence with language tag", "```javascript\n{\"hooks\": []}\n```", `{"hooks": []}`},
		{"plain object", `{"tone": "playful"}`, `{"tone": "playful"}`},
		{
			"preamble before object",
			"As requested, here is the JSON:\n{\"category\": \"tech_gadgets\"}",
			`{"category": "tech_gadgets"}`,
		},
		{
			"conversational preamble",
			"I've mapped the emotional triggers. Here's the output:\n\n{\"primary_emotion\": \"aspiration\", \"tone\": \"confident\"}",
			`{"primary_emotion": "aspiration", "tone": "confident"}`,
		},
		{
			"preamble before array",
			"Here are the hooks:\n[\"Hear nothing but the beat\", \"Silence the commute\"]",
			`["Hear nothing but the beat", "Silence the commute"]`,
		},
		{
			"trailing sign-off",
			"{\"engagement_score\": 0.8}\n\nLet me know if you need anything else!",
			`{"engagement_score": 0.8}`,
		},
		{
			"escaped quotes",
			"Result: {\"caption\": \"She said \\\"wow\\\"\"}",
			`{"caption": "She said \"wow\""}`,
		},
		{
			"braces inside strings",
			"Hook: {\"hook\": \"Meet the {new} you\"} done",
			`{"hook": "Meet the {new} you"}`,
		},
		{"unterminated object", "Here: {\"a\": 1", "Here: {\"a\": 1"},
		{"no json at all", "  sorry, I cannot help  ", "sorry, I cannot help"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractBalanced(t *testing.T) {
	assert.Equal(t, `{"a": {"b": [1, 2]}}`, extractJSONObject(`{"a": {"b": [1, 2]}} tail`))
	assert.Equal(t, `[{"id": 1}, {"id": 2}]`, extractJSONArray(`[{"id": 1}, {"id": 2}] tail`))
	assert.Empty(t, extractJSONObject(""))
	assert.Empty(t, extractJSONObject("not json"))
	assert.Empty(t, extractJSONArray(`{"a": 1}`))
	assert.Empty(t, extractJSONArray(`["open"`))
}

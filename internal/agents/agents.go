// Package agents implements the language-model collaborators of the campaign
// pipeline: product analysis, copywriting, performance prediction and the
// script and prompt writing that precedes media generation.
package agents

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jonathan/catalyst/internal/llm"
	"github.com/jonathan/catalyst/internal/types"
)

// MediaOpener reads the bytes behind a media reference (local path or URL)
type MediaOpener interface {
	Open(ctx context.Context, ref string) ([]byte, string, error)
}

// Analyst runs the text and vision analysis steps against an LLM
type Analyst struct {
	client llm.Client
	opener MediaOpener
	logger zerolog.Logger
}

// NewAnalyst creates an Analyst. opener may be nil, in which case vision
// analysis works from the description alone.
func NewAnalyst(client llm.Client, opener MediaOpener, logger zerolog.Logger) *Analyst {
	return &Analyst{client: client, opener: opener, logger: logger}
}

// generate asks the model for JSON and decodes it into out
func generate(ctx context.Context, client llm.Client, prompt string, tier llm.ModelTier, out any) error {
	text, err := client.GenerateJSON(ctx, prompt, tier)
	if err != nil {
		return err
	}
	return decode(text, out)
}

// decode parses a model response, tolerating markdown fences and preambles
func decode(text string, out any) error {
	cleaned := llm.CleanJSONBlock(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return types.NewCollaboratorError(types.ErrorKindMalformedOutput, "model response is not valid JSON", err)
	}
	return nil
}

// joinList renders a list for prompts, with a placeholder when empty
func joinList(items []string) string {
	var kept []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return "not available"
	}
	return strings.Join(kept, ", ")
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// bestHook picks the hook to lead with
func bestHook(h types.HookResult) string {
	if h.BestHook != "" {
		return h.BestHook
	}
	for _, hook := range h.Hooks {
		if hook.Text != "" {
			return hook.Text
		}
	}
	return ""
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func requireProduct(name string) error {
	if strings.TrimSpace(name) == "" {
		return types.NewCollaboratorError(types.ErrorKindContract, "product name is required", nil)
	}
	return nil
}

func promptError(err error) error {
	return types.NewCollaboratorError(types.ErrorKindContract, "failed to build prompt", err)
}

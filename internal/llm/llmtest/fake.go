// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/jonathan/catalyst/internal/llm"
)

// Request is one recorded call
type Request struct {
	Prompt   string
	Tier     llm.ModelTier
	JSON     bool
	Image    []byte
	MIMEType string
}

// Client answers every call with Respond and records the requests
type Client struct {
	Respond func(req Request) (string, error)

	mu    sync.Mutex
	calls []Request
}

// Static returns a client that always answers text
func Static(text string) *Client {
	return &Client{Respond: func(Request) (string, error) { return text, nil }}
}

// Failing returns a client that always fails with err
func Failing(err error) *Client {
	return &Client{Respond: func(Request) (string, error) { return "", err }}
}

// Calls returns the recorded requests in order
func (c *Client) Calls() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Request(nil), c.calls...)
}

func (c *Client) call(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.calls = append(c.calls, req)
	c.mu.Unlock()
	return c.Respond(req)
}

// GenerateContent implements llm.Client
func (c *Client) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return c.call(ctx, Request{Prompt: prompt, Tier: tier})
}

// GenerateJSON implements llm.Client
func (c *Client) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return c.call(ctx, Request{Prompt: prompt, Tier: tier, JSON: true})
}

// GenerateJSONWithImage implements llm.Client
func (c *Client) GenerateJSONWithImage(ctx context.Context, prompt string, image []byte, mimeType string, tier llm.ModelTier) (string, error) {
	return c.call(ctx, Request{Prompt: prompt, Tier: tier, JSON: true, Image: image, MIMEType: mimeType})
}

// GetModel implements llm.Client
func (c *Client) GetModel(tier llm.ModelTier) string {
	return "fake-" + string(tier)
}

// Close implements llm.Client
func (c *Client) Close() error {
	return nil
}

var _ llm.Client = (*Client)(nil)

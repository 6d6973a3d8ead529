package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jonathan/catalyst/internal/ratelimit"
	"github.com/jonathan/catalyst/internal/types"
)

// maxErrorBody bounds how much of a failed response is kept in error messages
const maxErrorBody = 200

// apiClient is the JSON-over-HTTP transport shared by the vendor clients
type apiClient struct {
	provider string
	baseURL  string
	apiKey   string
	http     *http.Client
	gate     *ratelimit.Gate
}

// post sends body as JSON and returns the raw response. The caller closes it.
func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", c.provider, err)
	}

	if c.gate != nil {
		if err := c.gate.Wait(ctx, c.provider); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	return resp, nil
}

// postJSON sends body and decodes a 200 response into out
func (c *apiClient) postJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return statusError(c.provider, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewCollaboratorError(types.ErrorKindMalformedOutput, c.provider+" returned invalid JSON", err)
	}
	return nil
}

// statusError maps a non-200 vendor response onto a step error kind
func statusError(provider string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("%s API error %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(snippet)))

	kind := types.ErrorKindUpstream
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = types.ErrorKindMissingCredential
	}
	return types.NewCollaboratorError(kind, msg, nil)
}

// Package social implements the LinkedIn, Meta and Instagram publishers used
// by the social publishing step.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/jonathan/catalyst/internal/publishing"
	"github.com/jonathan/catalyst/internal/ratelimit"
)

// maxErrorBody bounds how much of a failed response is kept in error messages
const maxErrorBody = 300

// MediaOpener resolves a media reference to its bytes and content type
type MediaOpener interface {
	Open(ctx context.Context, ref string) ([]byte, string, error)
}

// APIError is a non-success platform response
type APIError struct {
	Platform   string
	Operation  string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed (%d): %s", e.Platform, e.Operation, e.StatusCode, e.Message)
}

// graphError is the error envelope of the Meta Graph API
type graphError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// httpClient carries the transport shared by every platform client
type httpClient struct {
	platform string
	http     *http.Client
	gate     *ratelimit.Gate
}

func (c *httpClient) do(ctx context.Context, op string, req *http.Request, out any) (http.Header, error) {
	if c.gate != nil {
		if err := c.gate.Wait(ctx, c.platform); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s %s request failed: %w", c.platform, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		var ge graphError
		if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
			msg = ge.Error.Message
		}
		return nil, &APIError{Platform: c.platform, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return nil, fmt.Errorf("%s %s returned invalid JSON: %w", c.platform, op, err)
		}
	}
	return resp.Header, nil
}

func (c *httpClient) postJSON(ctx context.Context, op, endpoint string, headers map[string]string, body, out any) (http.Header, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s request: %w", c.platform, op, err)
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(ctx, op, req, out)
}

func (c *httpClient) postForm(ctx context.Context, op, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	_, err = c.do(ctx, op, req, out)
	return err
}

// postMultipart sends fields plus one file part named "source"
func (c *httpClient) postMultipart(ctx context.Context, op, endpoint string, fields map[string]string, filename, contentType string, data []byte, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="source"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = c.do(ctx, op, req, out)
	return err
}

// postText renders the body and hashtags of a post
func postText(post publishing.Post) string {
	return publishing.FormatText(post.Text, post.Hashtags)
}

var _ publishing.Publisher = (*LinkedIn)(nil)
var _ publishing.Publisher = (*Meta)(nil)
var _ publishing.Publisher = (*Instagram)(nil)

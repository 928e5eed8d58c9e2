// Package assistant is the HTTP client for the conversation backend. It
// creates threads, opens message event streams, and resumes paused runs with
// tool outputs. When a credential token is held it is attached as a bearer
// header on every request.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lidahealth/lida/internal/stream"
)

// ErrRequestFailed wraps non-2xx backend responses.
var ErrRequestFailed = errors.New("backend request failed")

// errorBodyLimit caps how much of an error response is read for diagnostics.
const errorBodyLimit = 8 * 1024

// Client talks to the conversation backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

var _ stream.Backend = (*Client)(nil)

// NewClient creates a backend client. No request timeout is set: message
// streams stay open for the length of a run, and callers cancel through
// context instead.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// SetCredential sets the bearer token attached to subsequent requests. An
// empty token detaches it.
func (c *Client) SetCredential(token string) {
	c.token = token
}

// CreateThread creates a conversation thread and returns its id.
func (c *Client) CreateThread(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, c.baseURL+"/conversation-threads", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.statusError(resp)
	}

	var body struct {
		ThreadID string `json:"threadId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode thread response: %w", err)
	}
	if body.ThreadID == "" {
		return "", fmt.Errorf("%w: empty thread id", ErrRequestFailed)
	}
	return body.ThreadID, nil
}

// StreamMessage posts user content to a thread and returns the exchange's
// event stream.
func (c *Client) StreamMessage(ctx context.Context, threadID, content string) (iter.Seq2[stream.Event, error], error) {
	payload := map[string]string{"content": content}
	return c.openStream(ctx, c.baseURL+"/conversation-threads/"+threadID+"/messages", payload)
}

// SubmitToolOutputs resumes a paused run and returns the continuation event
// stream for the same exchange.
func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []stream.ToolOutput) (iter.Seq2[stream.Event, error], error) {
	payload := map[string]any{
		"runId":           runID,
		"toolCallOutputs": outputs,
	}
	return c.openStream(ctx, c.baseURL+"/conversation-threads/"+threadID+"/actions", payload)
}

func (c *Client) openStream(ctx context.Context, url string, payload any) (iter.Seq2[stream.Event, error], error) {
	req, err := c.newRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := c.statusError(resp)
		resp.Body.Close()
		return nil, err
	}

	return func(yield func(stream.Event, error) bool) {
		defer resp.Body.Close()
		for ev, err := range stream.Events(ctx, resp.Body) {
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}, nil
}

func (c *Client) newRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// statusError logs the raw response body and returns an error carrying only
// the status; raw diagnostics are for logs, not for display.
func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	slog.Error("backend returned error status",
		"url", resp.Request.URL.Path,
		"status", resp.StatusCode,
		"body", string(raw),
	)
	return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
}

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIError is a server rejection carrying the human-readable message the
// endpoint returned, distinct from transport diagnostics.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth endpoint rejected request (%d): %s", e.Status, e.Message)
}

// Client calls the registration and login endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an auth client. Auth calls are short round-trips, so a
// request timeout applies (unlike the streaming client).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Register creates an account and returns the credential token.
func (c *Client) Register(ctx context.Context, identifier, secret string) (string, error) {
	return c.post(ctx, "/auth/register", identifier, secret)
}

// Login authenticates an existing account and returns the credential token.
func (c *Client) Login(ctx context.Context, identifier, secret string) (string, error) {
	return c.post(ctx, "/auth/login", identifier, secret)
}

func (c *Client) post(ctx context.Context, path, identifier, secret string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"identifier": identifier,
		"secret":     secret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return "", &APIError{Status: resp.StatusCode, Message: body.Error}
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("auth response missing token")
	}
	return body.Token, nil
}

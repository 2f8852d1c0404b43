// Package transport sends requests to the model-serving backend and
// normalizes every network and HTTP failure into ErrTransport.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
)

// APIKeyHeader carries the fixed API key on every request.
const APIKeyHeader = "X-API-KEY"

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 4 * 1024

// Client is a small JSON-over-HTTP client bound to one base URL.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for baseURL. apiKey may be empty, in which case
// no API key header is sent.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Answers may take minutes to start, so only connection setup is
		// bounded. Callers bound a request through its context.
		http: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the URL every path is resolved against.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAuthToken layers a bearer token on top of the API key.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// ClearAuthToken removes the bearer token.
func (c *Client) ClearAuthToken() {
	c.SetAuthToken("")
}

// Do sends a request and returns the response when the status is 2xx. The
// caller owns the response body. body is marshalled as JSON when not nil.
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("could not create http request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	slog.Debug("API request", "method", method, "url", url, "has_api_key", c.apiKey != "")
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w: %s %s: %w", app_errors.ErrTransport, app_errors.ErrTimeout, method, path, err)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", app_errors.ErrTransport, method, path, err)
	}
	slog.Debug("API response", "method", method, "url", url, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer closeBody(resp)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s %s returned status %d: %s", app_errors.ErrTransport, method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, fmt.Errorf("%w: %s %s: response has no body", app_errors.ErrTransport, method, path)
	}
	return resp, nil
}

// GetJSON performs a GET and returns the whole body.
func (c *Client) GetJSON(ctx context.Context, path string) ([]byte, error) {
	return c.buffered(ctx, http.MethodGet, path, nil)
}

// PostJSON performs a POST and returns the whole body.
func (c *Client) PostJSON(ctx context.Context, path string, body interface{}) ([]byte, error) {
	return c.buffered(ctx, http.MethodPost, path, body)
}

// PostStream performs a POST and hands back the open response so the body
// can be decoded incrementally. The caller must close the body.
func (c *Client) PostStream(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

func (c *Client) buffered(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: could not read response body: %w", app_errors.ErrTransport, err)
	}
	return data, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("Failed to close response body", "error", err)
	}
}

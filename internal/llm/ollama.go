// Package llm is the gateway's client for the Ollama HTTP API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
)

// maxLine bounds a single NDJSON chunk from Ollama.
const maxLine = 1024 * 1024

// Provider defines the operations the gateway needs from a model server.
type Provider interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req *ChatRequest, ch chan<- json.RawMessage) error
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- json.RawMessage) error
	ListModels(ctx context.Context) (*ListModelsResponse, error)
	Ping(ctx context.Context) error
}

type ollamaProvider struct {
	client *http.Client
	url    string
}

func NewOllamaProvider(url string) Provider {
	return &ollamaProvider{
		// No overall timeout: streamed generations may run for minutes.
		client: &http.Client{},
		url:    strings.TrimRight(url, "/"),
	}
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ChatResponse struct {
	Model      string  `json:"model"`
	CreatedAt  string  `json:"created_at"`
	Message    Message `json:"message"`
	Done       bool    `json:"done"`
	DoneReason string  `json:"done_reason,omitempty"`
}

type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type GenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// ModelInfo is one entry of /api/tags.
type ModelInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

func (p *ollamaProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	var resp ChatResponse
	if err := p.postJSON(ctx, "/api/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *ollamaProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false
	var resp GenerateResponse
	if err := p.postJSON(ctx, "/api/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (p *ollamaProvider) ChatStream(ctx context.Context, req *ChatRequest, ch chan<- json.RawMessage) error {
	req.Stream = true
	return p.stream(ctx, "/api/chat", req, ch)
}

func (p *ollamaProvider) GenerateStream(ctx context.Context, req *GenerateRequest, ch chan<- json.RawMessage) error {
	req.Stream = true
	return p.stream(ctx, "/api/generate", req, ch)
}

func (p *ollamaProvider) ListModels(ctx context.Context) (*ListModelsResponse, error) {
	resp, err := p.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var list ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: could not decode model list: %w", app_errors.ErrShape, err)
	}
	return &list, nil
}

// Ping succeeds when Ollama answers its version endpoint.
func (p *ollamaProvider) Ping(ctx context.Context) error {
	resp, err := p.do(ctx, http.MethodGet, "/api/version", nil)
	if err != nil {
		return err
	}
	closeBody(resp)
	return nil
}

func (p *ollamaProvider) postJSON(ctx context.Context, path string, req, out interface{}) error {
	resp, err := p.do(ctx, http.MethodPost, path, req)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: could not decode %s response: %w", app_errors.ErrShape, path, err)
	}
	return nil
}

// stream relays every non-blank line of the response body to ch and closes
// ch when the body ends.
func (p *ollamaProvider) stream(ctx context.Context, path string, req interface{}, ch chan<- json.RawMessage) error {
	defer close(ch)

	resp, err := p.do(ctx, http.MethodPost, path, req)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		chunk := make(json.RawMessage, len(line))
		copy(chunk, line)

		select {
		case ch <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: reading %s stream: %w", app_errors.ErrTransport, path, err)
	}
	return nil
}

func (p *ollamaProvider) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.url+path, reader)
	if err != nil {
		return nil, fmt.Errorf("could not create http request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama %s %s: %w", app_errors.ErrTransport, method, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer closeBody(resp)
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama %s returned status %d: %s", app_errors.ErrTransport, path, resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("Failed to close ollama response body", "error", err)
	}
}

package backend

import (
	"context"
	"log/slog"

	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/response"
	"github.com/yusuftnc/qchat/internal/stream"
	"github.com/yusuftnc/qchat/internal/transport"
)

// Paths of the backend contract.
const (
	ChatPath   = "/ollama/v1/chat"
	QnAPath    = "/ollama/v1/qna"
	ModelsPath = "/ollama/v1/models"
	HealthPath = "/ollama/v1/health"
)

type httpBackend struct {
	client *transport.Client
}

// NewHTTPBackend returns a Backend speaking the /ollama/v1 contract through
// client.
func NewHTTPBackend(client *transport.Client) Backend {
	return &httpBackend{client: client}
}

func (b *httpBackend) Chat(ctx context.Context, req *ChatRequest) (*response.Answer, error) {
	payload := chatPayload{Model: req.Model, Stream: req.Stream, Messages: toWire(req.Messages)}
	slog.Info("Sending chat request", "model", req.Model, "stream", req.Stream, "history_len", len(payload.Messages))

	if req.Stream {
		return b.stream(ctx, ChatPath, payload, req.OnDelta)
	}
	body, err := b.client.PostJSON(ctx, ChatPath, payload)
	if err != nil {
		return nil, err
	}
	return response.DecodeChat(body)
}

func (b *httpBackend) QnA(ctx context.Context, req *QnARequest) (*response.Answer, error) {
	payload := qnaPayload{Model: req.Model, Stream: req.Stream, Prompt: req.Prompt}
	slog.Info("Sending QnA request", "model", req.Model, "stream", req.Stream)

	if req.Stream {
		return b.stream(ctx, QnAPath, payload, req.OnDelta)
	}
	body, err := b.client.PostJSON(ctx, QnAPath, payload)
	if err != nil {
		return nil, err
	}
	return response.DecodeQnA(body)
}

func (b *httpBackend) ListModels(ctx context.Context) ([]model.ModelDescriptor, error) {
	body, err := b.client.GetJSON(ctx, ModelsPath)
	if err != nil {
		return nil, err
	}
	return response.DecodeModels(body)
}

func (b *httpBackend) Health(ctx context.Context) (bool, error) {
	body, err := b.client.GetJSON(ctx, HealthPath)
	if err != nil {
		return false, err
	}
	return response.DecodeHealth(body)
}

// stream posts payload and folds the NDJSON body into one answer.
func (b *httpBackend) stream(ctx context.Context, path string, payload interface{}, onDelta func(string)) (*response.Answer, error) {
	resp, err := b.client.PostStream(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("Failed to close stream body", "error", err)
		}
	}()

	dec := stream.NewDecoder(resp.Body, stream.DialectNDJSON, resp.Header.Get("Content-Type"))
	return response.NewAssembler(onDelta).Fold(dec)
}

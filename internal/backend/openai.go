package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/response"
	"github.com/yusuftnc/qchat/internal/stream"
	"github.com/yusuftnc/qchat/internal/transport"
)

const (
	completionsPath = "/chat/completions"
	openAIModelPath = "/models"
)

type openAIBackend struct {
	client *transport.Client
}

// NewOpenAIBackend returns a Backend for a chat-completions compatible
// provider. Streamed answers use the event-prefixed dialect. The client is
// expected to carry the provider key as a bearer token.
func NewOpenAIBackend(client *transport.Client) Backend {
	return &openAIBackend{client: client}
}

func (b *openAIBackend) Chat(ctx context.Context, req *ChatRequest) (*response.Answer, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range toWire(req.Messages) {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	slog.Info("Sending chat completion", "model", req.Model, "stream", req.Stream, "history_len", len(messages))
	return b.complete(ctx, req.Model, req.Stream, messages, req.OnDelta)
}

// QnA is sent as a chat with a single user message.
func (b *openAIBackend) QnA(ctx context.Context, req *QnARequest) (*response.Answer, error) {
	messages := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: req.Prompt}}
	slog.Info("Sending single-turn completion", "model", req.Model, "stream", req.Stream)
	return b.complete(ctx, req.Model, req.Stream, messages, req.OnDelta)
}

func (b *openAIBackend) ListModels(ctx context.Context) ([]model.ModelDescriptor, error) {
	body, err := b.client.GetJSON(ctx, openAIModelPath)
	if err != nil {
		return nil, err
	}
	var list openai.ModelsList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: decoding model list: %w", app_errors.ErrShape, err)
	}
	if len(list.Models) == 0 {
		return nil, fmt.Errorf("%w: empty model list", app_errors.ErrShape)
	}
	out := make([]model.ModelDescriptor, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("%w: model entry without id", app_errors.ErrShape)
		}
		out = append(out, model.ModelDescriptor{ID: m.ID, DisplayName: m.ID})
	}
	return out, nil
}

// Health treats a reachable model listing as healthy.
func (b *openAIBackend) Health(ctx context.Context) (bool, error) {
	if _, err := b.client.GetJSON(ctx, openAIModelPath); err != nil {
		return false, err
	}
	return true, nil
}

func (b *openAIBackend) complete(ctx context.Context, modelID string, streamed bool, messages []openai.ChatCompletionMessage, onDelta func(string)) (*response.Answer, error) {
	payload := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: messages,
		Stream:   streamed,
	}

	if !streamed {
		body, err := b.client.PostJSON(ctx, completionsPath, payload)
		if err != nil {
			return nil, err
		}
		return decodeCompletion(body)
	}

	resp, err := b.client.PostStream(ctx, completionsPath, payload)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("Failed to close stream body", "error", err)
		}
	}()

	dec := stream.NewDecoder(resp.Body, stream.DialectEvent, resp.Header.Get("Content-Type"))
	return response.NewAssembler(onDelta).Fold(dec)
}

func decodeCompletion(body []byte) (*response.Answer, error) {
	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("%w: decoding completion: %w", app_errors.ErrShape, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: completion has no choices", app_errors.ErrShape)
	}
	completedAt := time.Now()
	if completion.Created > 0 {
		completedAt = time.Unix(completion.Created, 0)
	}
	return &response.Answer{
		Model:       completion.Model,
		Text:        completion.Choices[0].Message.Content,
		CompletedAt: completedAt,
	}, nil
}

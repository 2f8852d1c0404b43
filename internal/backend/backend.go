// Package backend composes the transport, the stream decoder and the response
// assembler into one call per backend operation.
package backend

import (
	"context"

	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/response"
)

// Backend is the model-serving service the orchestrator talks to.
type Backend interface {
	Chat(ctx context.Context, req *ChatRequest) (*response.Answer, error)
	QnA(ctx context.Context, req *QnARequest) (*response.Answer, error)
	ListModels(ctx context.Context) ([]model.ModelDescriptor, error)
	Health(ctx context.Context) (bool, error)
}

// ChatRequest is one multi-turn chat call.
type ChatRequest struct {
	Model    string
	Stream   bool
	Messages []model.Message
	// OnDelta, when set, receives streamed text pieces as they arrive.
	OnDelta func(string) `json:"-"`
}

// QnARequest is one single-turn question.
type QnARequest struct {
	Model   string
	Stream  bool
	Prompt  string
	OnDelta func(string) `json:"-"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []wireMessage `json:"messages"`
}

type qnaPayload struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
	Prompt string `json:"prompt"`
}

// toWire converts the thread history to the request shape. Error
// placeholders are local annotations and are not sent back to the model.
func toWire(msgs []model.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.IsError() {
			continue
		}
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

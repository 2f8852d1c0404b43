package interfaces

import (
	"context"
	"encoding/json"

	"github.com/yusuftnc/qchat/internal/llm"
	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/service"
)

// This file defines the interfaces for the core services. The API layer and
// the terminal client depend on these instead of concrete implementations,
// which keeps them testable with mocks.

// GatewayService defines the contract behind the gateway's HTTP handlers.
type GatewayService interface {
	Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	ChatStream(ctx context.Context, req *llm.ChatRequest, ch chan<- json.RawMessage) error
	Ask(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error)
	AskStream(ctx context.Context, req *llm.GenerateRequest, ch chan<- json.RawMessage) error
	Models(ctx context.Context) ([]llm.ModelInfo, error)
	Healthy(ctx context.Context) bool
}

// ChatService defines the contract for multi-turn chat.
type ChatService interface {
	NewConversation() string
	Send(ctx context.Context, input string, opts ...service.SendOption) error
	Busy() bool
}

// QnAService defines the contract for single-turn questions.
type QnAService interface {
	Ask(ctx context.Context, question string, opts ...service.SendOption) error
	Busy() bool
}

// ModelService defines the contract for the model catalog and health probe.
type ModelService interface {
	LoadCatalog(ctx context.Context) []model.ModelDescriptor
	Catalog() []model.ModelDescriptor
	Selected() string
	Select(modelID string) error
	Health(ctx context.Context) bool
}

var (
	_ GatewayService = (*service.GatewayService)(nil)
	_ ChatService    = (*service.ChatService)(nil)
	_ QnAService     = (*service.QnAService)(nil)
	_ ModelService   = (*service.ModelService)(nil)
)

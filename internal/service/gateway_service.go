package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/llm"
)

// GatewayService is the business logic behind the development gateway. It
// forwards chat and QnA calls to the model server.
type GatewayService struct {
	llm           llm.Provider
	healthTimeout time.Duration
}

// NewGatewayService creates a new GatewayService.
func NewGatewayService(provider llm.Provider, healthTimeout time.Duration) *GatewayService {
	return &GatewayService{llm: provider, healthTimeout: healthTimeout}
}

// Chat returns one complete chat answer.
func (s *GatewayService) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := s.llm.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("could not get chat answer: %w", err)
	}
	return resp, nil
}

// ChatStream relays chat chunks to ch, which is closed when the answer ends.
func (s *GatewayService) ChatStream(ctx context.Context, req *llm.ChatRequest, ch chan<- json.RawMessage) error {
	return s.llm.ChatStream(ctx, req, ch)
}

// Ask returns one complete single-turn answer.
func (s *GatewayService) Ask(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	resp, err := s.llm.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("could not get answer: %w", err)
	}
	return resp, nil
}

// AskStream relays generate chunks to ch, which is closed when the answer ends.
func (s *GatewayService) AskStream(ctx context.Context, req *llm.GenerateRequest, ch chan<- json.RawMessage) error {
	return s.llm.GenerateStream(ctx, req, ch)
}

// Models returns the models installed on the model server. An empty list is
// an error so clients fall back to their built-in catalog.
func (s *GatewayService) Models(ctx context.Context) ([]llm.ModelInfo, error) {
	list, err := s.llm.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(list.Models) == 0 {
		return nil, fmt.Errorf("%w: no models installed", app_errors.ErrNotFound)
	}
	return list.Models, nil
}

// Healthy reports whether the model server answers within the health timeout.
func (s *GatewayService) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()
	if err := s.llm.Ping(ctx); err != nil {
		slog.Warn("Model server is not healthy", "error", err)
		return false
	}
	return true
}

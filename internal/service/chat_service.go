package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yusuftnc/qchat/internal/backend"
	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/store"
)

// ChatService drives multi-turn chat requests against the active thread.
type ChatService struct {
	store   *store.Store
	backend backend.Backend
	stream  bool
	slot    *Slot
}

// NewChatService creates a new ChatService. stream selects the streamed
// response form for every request.
func NewChatService(st *store.Store, b backend.Backend, stream bool) *ChatService {
	return &ChatService{store: st, backend: b, stream: stream, slot: NewSlot("chat-send")}
}

// NewConversation creates an empty thread with the selected model and makes
// it active.
func (s *ChatService) NewConversation() string {
	id := s.store.CreateThread(s.store.SelectedModel())
	slog.Info("Created new conversation", "thread_id", id)
	return id
}

// Busy reports whether a chat request is in flight.
func (s *ChatService) Busy() bool { return s.slot.Busy() }

// Send appends input to the active thread, sends the resulting history and
// appends exactly one reply: the answer, or an error placeholder. When the
// request fails the placeholder is committed first and the cause returned.
func (s *ChatService) Send(ctx context.Context, input string, opts ...SendOption) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("%w: message cannot be empty", app_errors.ErrValidation)
	}
	release, err := s.slot.Enter()
	if err != nil {
		return err
	}
	defer release()

	threadID := s.store.ActiveThreadID()
	if threadID == "" {
		return fmt.Errorf("%w: no active thread", app_errors.ErrNotFound)
	}
	modelID := s.store.SelectedModel()

	history, err := s.store.AppendUserMessage(threadID, model.NewUserMessage(input))
	if err != nil {
		return err
	}

	o := collectOptions(opts)
	answer, err := s.backend.Chat(ctx, &backend.ChatRequest{
		Model:    modelID,
		Stream:   s.stream,
		Messages: history,
		OnDelta:  o.onDelta,
	})
	if err != nil {
		slog.Error("Chat request failed", "thread_id", threadID, "model", modelID, "error", err)
		if appendErr := s.store.AppendMessage(threadID, model.NewAssistantMessage(ErrorText(err), model.ErrorModelTag)); appendErr != nil {
			return fmt.Errorf("could not record failed reply: %w", appendErr)
		}
		return err
	}

	reply := model.NewAssistantMessage(answer.Text, answer.Model)
	if reply.Model == "" {
		reply.Model = modelID
	}
	if !answer.CompletedAt.IsZero() {
		reply.Timestamp = answer.CompletedAt
	}
	if err := s.store.AppendMessage(threadID, reply); err != nil {
		return fmt.Errorf("could not record reply: %w", err)
	}
	slog.Info("Chat reply recorded", "thread_id", threadID, "model", reply.Model, "length", len(reply.Content))
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yusuftnc/qchat/internal/backend"
	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/model"
	"github.com/yusuftnc/qchat/internal/store"
)

// QnAService sends single-turn questions. Each question produces exactly
// one QnA item.
type QnAService struct {
	store   *store.Store
	backend backend.Backend
	stream  bool
	slot    *Slot
}

// NewQnAService creates a new QnAService.
func NewQnAService(st *store.Store, b backend.Backend, stream bool) *QnAService {
	return &QnAService{store: st, backend: b, stream: stream, slot: NewSlot("qna-send")}
}

// Busy reports whether a question is in flight.
func (s *QnAService) Busy() bool { return s.slot.Busy() }

// Ask publishes question as pending, sends it and appends the answer or an
// error placeholder. The pending question is cleared on every path.
func (s *QnAService) Ask(ctx context.Context, question string, opts ...SendOption) error {
	if strings.TrimSpace(question) == "" {
		return fmt.Errorf("%w: question cannot be empty", app_errors.ErrValidation)
	}
	release, err := s.slot.Enter()
	if err != nil {
		return err
	}
	defer release()

	s.store.SetPending(question)
	defer s.store.ClearPending()

	modelID := s.store.SelectedModel()
	o := collectOptions(opts)
	answer, err := s.backend.QnA(ctx, &backend.QnARequest{
		Model:   modelID,
		Stream:  s.stream,
		Prompt:  question,
		OnDelta: o.onDelta,
	})
	if err != nil {
		slog.Error("QnA request failed", "model", modelID, "error", err)
		s.store.AppendQnAItem(model.QnAItem{
			ID:        model.NewID(),
			Question:  question,
			Answer:    ErrorText(err),
			Model:     model.ErrorModelTag,
			Timestamp: time.Now(),
		})
		return err
	}

	item := model.QnAItem{
		ID:        model.NewID(),
		Question:  question,
		Answer:    answer.Text,
		Model:     answer.Model,
		Timestamp: answer.CompletedAt,
	}
	if item.Model == "" {
		item.Model = modelID
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	s.store.AppendQnAItem(item)
	return nil
}

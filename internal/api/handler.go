package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/interfaces"
	"github.com/yusuftnc/qchat/internal/llm"
)

// ChatRequest is the body of POST /ollama/v1/chat.
type ChatRequest struct {
	Model    string        `json:"model" validate:"required"`
	Stream   bool          `json:"stream"`
	Messages []ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// QnARequest is the body of POST /ollama/v1/qna.
type QnARequest struct {
	Model  string `json:"model" validate:"required"`
	Stream bool   `json:"stream"`
	Prompt string `json:"prompt" validate:"required"`
}

// ChatData is the data of a buffered chat answer.
type ChatData struct {
	Message   ChatMessage `json:"message"`
	Model     string      `json:"model"`
	CreatedAt string      `json:"created_at"`
}

// QnAData is the data of a buffered QnA answer.
type QnAData struct {
	Response  string `json:"response"`
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
}

// ChatHandler serves the chat and QnA routes.
type ChatHandler struct {
	service interfaces.GatewayService
}

func NewChatHandler(svc interfaces.GatewayService) *ChatHandler {
	return &ChatHandler{service: svc}
}

// HandleChat godoc
// @Summary      Multi-turn chat
// @Description  Answers a conversation. With stream=true the body is an NDJSON stream of Ollama chat chunks.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Produce      application/x-ndjson
// @Param        request  body      ChatRequest  true  "Conversation so far"
// @Success      200      {object}  Envelope{data=ChatData}
// @Failure      400      {object}  Envelope
// @Failure      401      {object}  Envelope
// @Failure      502      {object}  Envelope
// @Security     ApiKeyAuth
// @Router       /chat [post]
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	llmReq := &llm.ChatRequest{Model: req.Model, Messages: make([]llm.Message, 0, len(req.Messages))}
	for _, m := range req.Messages {
		llmReq.Messages = append(llmReq.Messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	if req.Stream {
		relay(w, r, func(ctx context.Context, ch chan<- json.RawMessage) error {
			return h.service.ChatStream(ctx, llmReq, ch)
		})
		return
	}

	resp, err := h.service.Chat(r.Context(), llmReq)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithData(w, ChatData{
		Message:   ChatMessage{Role: "assistant", Content: resp.Message.Content},
		Model:     resp.Model,
		CreatedAt: createdAt(resp.CreatedAt),
	})
}

// HandleQnA godoc
// @Summary      Single question
// @Description  Answers one prompt. With stream=true the body is an NDJSON stream of Ollama generate chunks.
// @Tags         Chat
// @Accept       json
// @Produce      json
// @Produce      application/x-ndjson
// @Param        request  body      QnARequest  true  "Question"
// @Success      200      {object}  Envelope{data=QnAData}
// @Failure      400      {object}  Envelope
// @Failure      401      {object}  Envelope
// @Failure      502      {object}  Envelope
// @Security     ApiKeyAuth
// @Router       /qna [post]
func (h *ChatHandler) HandleQnA(w http.ResponseWriter, r *http.Request) {
	var req QnARequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, err)
		return
	}

	llmReq := &llm.GenerateRequest{Model: req.Model, Prompt: req.Prompt}
	if req.Stream {
		relay(w, r, func(ctx context.Context, ch chan<- json.RawMessage) error {
			return h.service.AskStream(ctx, llmReq, ch)
		})
		return
	}

	resp, err := h.service.Ask(r.Context(), llmReq)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithData(w, QnAData{Response: resp.Response, Model: resp.Model, CreatedAt: createdAt(resp.CreatedAt)})
}

func decodeBody(r *http.Request, payload interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		return fmt.Errorf("%w: invalid request payload: %s", app_errors.ErrValidation, err.Error())
	}
	return validateRequest(payload)
}

// relay copies stream chunks to the client as NDJSON. Upstream failures
// before the first chunk become an error envelope; later ones end the stream
// with an error line.
func relay(w http.ResponseWriter, r *http.Request, start func(context.Context, chan<- json.RawMessage) error) {
	ch := make(chan json.RawMessage)
	errCh := make(chan error, 1)
	go func() { errCh <- start(r.Context(), ch) }()

	wrote := false
	for chunk := range ch {
		if !wrote {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if err := writeStreamLine(w, chunk); err != nil {
			slog.Info("Client disconnected during stream", "error", err)
			for range ch {
			}
			break
		}
	}

	err := <-errCh
	switch {
	case err != nil && !wrote:
		respondWithError(w, err)
	case err != nil:
		sendStreamError(w, err)
	case !wrote:
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	}
	slog.Debug("Finished streaming response", "path", r.URL.Path)
}

func createdAt(s string) string {
	if s != "" {
		return s
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

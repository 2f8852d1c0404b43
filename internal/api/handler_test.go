// Black-box tests: only the exported handlers and router are used.
package api_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yusuftnc/qchat/internal/api"
	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/interfaces/mocks"
	"github.com/yusuftnc/qchat/internal/llm"
)

// setupChatHandler builds a handler over a mocked gateway service.
func setupChatHandler(t *testing.T) (*api.ChatHandler, *mocks.MockGatewayService) {
	mockSvc := mocks.NewMockGatewayService(t)
	return api.NewChatHandler(mockSvc), mockSvc
}

type envelope struct {
	Status bool            `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

// streamInto returns a mock Run func that sends lines on the stream channel
// and closes it, like the real provider does.
func streamInto(lines ...string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		ch := args.Get(2).(chan<- json.RawMessage)
		for _, l := range lines {
			ch <- json.RawMessage(l)
		}
		close(ch)
	}
}

func TestChatHandler_HandleChat(t *testing.T) {
	t.Run("Success - Buffered", func(t *testing.T) {
		// ARRANGE
		handler, mockSvc := setupChatHandler(t)
		mockSvc.On("Chat", mock.Anything, mock.MatchedBy(func(req *llm.ChatRequest) bool {
			return req.Model == "llama3.2:1b" && len(req.Messages) == 2 && req.Messages[1].Content == "How are you?"
		})).Return(&llm.ChatResponse{
			Model:     "llama3.2:1b",
			CreatedAt: "2025-01-01T00:00:00Z",
			Message:   llm.Message{Role: "assistant", Content: "Fine."},
		}, nil).Once()

		// ACT
		body := `{"model":"llama3.2:1b","stream":false,"messages":[{"role":"user","content":"Hi"},{"role":"user","content":"How are you?"}]}`
		req := httptest.NewRequest(http.MethodPost, "/ollama/v1/chat", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.HandleChat(rr, req)

		// ASSERT
		assert.Equal(t, http.StatusOK, rr.Code)
		env := decodeEnvelope(t, rr)
		assert.True(t, env.Status)
		assert.JSONEq(t, `{"message":{"role":"assistant","content":"Fine."},"model":"llama3.2:1b","created_at":"2025-01-01T00:00:00Z"}`, string(env.Data))
	})

	t.Run("Success - Streamed", func(t *testing.T) {
		handler, mockSvc := setupChatHandler(t)
		mockSvc.On("ChatStream", mock.Anything, mock.Anything, mock.Anything).
			Run(streamInto(`{"message":{"content":"Hel"}}`, `{"message":{"content":"lo"},"done":true}`)).
			Return(nil).Once()

		body := `{"model":"m","stream":true,"messages":[{"role":"user","content":"Hi"}]}`
		req := httptest.NewRequest(http.MethodPost, "/ollama/v1/chat", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.HandleChat(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/x-ndjson", rr.Header().Get("Content-Type"))
		assert.Equal(t, "{\"message\":{\"content\":\"Hel\"}}\n{\"message\":{\"content\":\"lo\"},\"done\":true}\n", rr.Body.String())
		assert.True(t, rr.Flushed)
	})

	t.Run("Failure - Upstream error before first chunk", func(t *testing.T) {
		handler, mockSvc := setupChatHandler(t)
		mockSvc.On("ChatStream", mock.Anything, mock.Anything, mock.Anything).
			Run(streamInto()).
			Return(fmt.Errorf("%w: connection refused", app_errors.ErrTransport)).Once()

		body := `{"model":"m","stream":true,"messages":[{"role":"user","content":"Hi"}]}`
		req := httptest.NewRequest(http.MethodPost, "/ollama/v1/chat", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.HandleChat(rr, req)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		env := decodeEnvelope(t, rr)
		assert.False(t, env.Status)
		assert.NotEmpty(t, env.Error)
	})

	t.Run("Failure - Upstream error mid-stream", func(t *testing.T) {
		handler, mockSvc := setupChatHandler(t)
		mockSvc.On("ChatStream", mock.Anything, mock.Anything, mock.Anything).
			Run(streamInto(`{"message":{"content":"Hel"}}`)).
			Return(app_errors.ErrTransport).Once()

		body := `{"model":"m","stream":true,"messages":[{"role":"user","content":"Hi"}]}`
		req := httptest.NewRequest(http.MethodPost, "/ollama/v1/chat", strings.NewReader(body))
		rr := httptest.NewRecorder()
		handler.HandleChat(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[1], `"error"`)
	})

	validationCases := map[string]string{
		"not json":        `{`,
		"missing model":   `{"messages":[{"role":"user","content":"Hi"}]}`,
		"no messages":     `{"model":"m","messages":[]}`,
		"unknown role":    `{"model":"m","messages":[{"role":"tool","content":"Hi"}]}`,
		"missing message": `{"model":"m"}`,
	}
	for name, body := range validationCases {
		t.Run("Failure - Validation - "+name, func(t *testing.T) {
			handler, _ := setupChatHandler(t)
			req := httptest.NewRequest(http.MethodPost, "/ollama/v1/chat", strings.NewReader(body))
			rr := httptest.NewRecorder()
			handler.HandleChat(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.False(t, decodeEnvelope(t, rr).Status)
		})
	}
}

func TestChatHandler_HandleQnA(t *testing.T) {
	t.Run("Success - Buffered", func(t *testing.T) {
		handler, mockSvc := setupChatHandler(t)
		mockSvc.On("Ask", mock.Anything, &llm.GenerateRequest{Model: "m", Prompt: "6*7?"}).
			Return(&llm.GenerateResponse{Model: "m", Response: "42"}, nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/ollama/v1/qna", strings.NewReader(`{"model":"m","stream":false,"prompt":"6*7?"}`))
		rr := httptest.NewRecorder()
		handler.HandleQnA(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		env := decodeEnvelope(t, rr)
		assert.True(t, env.Status)
		var data api.QnAData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "42", data.Response)
		assert.NotEmpty(t, data.CreatedAt, "created_at is filled in when upstream omits it")
	})

	t.Run("Success - Streamed", func(t *testing.T) {
		handler, mockSvc := setupChatHandler(t)
		mockSvc.On("AskStream", mock.Anything, mock.Anything, mock.Anything).
			Run(streamInto(`{"response":"42","done":true}`)).
			Return(nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/ollama/v1/qna", strings.NewReader(`{"model":"m","stream":true,"prompt":"6*7?"}`))
		rr := httptest.NewRecorder()
		handler.HandleQnA(rr, req)

		assert.Equal(t, "{\"response\":\"42\",\"done\":true}\n", rr.Body.String())
	})

	t.Run("Failure - Missing prompt", func(t *testing.T) {
		handler, _ := setupChatHandler(t)
		req := httptest.NewRequest(http.MethodPost, "/ollama/v1/qna", strings.NewReader(`{"model":"m"}`))
		rr := httptest.NewRecorder()
		handler.HandleQnA(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Failure - Upstream", func(t *testing.T) {
		handler, mockSvc := setupChatHandler(t)
		mockSvc.On("Ask", mock.Anything, mock.Anything).Return(nil, app_errors.ErrShape).Once()

		req := httptest.NewRequest(http.MethodPost, "/ollama/v1/qna", strings.NewReader(`{"model":"m","prompt":"q"}`))
		rr := httptest.NewRecorder()
		handler.HandleQnA(rr, req)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})
}

package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
	"github.com/yusuftnc/qchat/internal/llm"
	"github.com/yusuftnc/qchat/internal/llm/mocks"
	"github.com/yusuftnc/qchat/internal/service"
)

func setupGatewayService(t *testing.T) (*service.GatewayService, *mocks.MockProvider) {
	mockLLMProvider := mocks.NewMockProvider(t)
	return service.NewGatewayService(mockLLMProvider, 50*time.Millisecond), mockLLMProvider
}

func TestGatewayService_Chat(t *testing.T) {
	ctx := context.Background()
	req := &llm.ChatRequest{Model: "m", Messages: []llm.Message{{Role: "user", Content: "hi"}}}

	t.Run("Success", func(t *testing.T) {
		gatewayService, mockLLMProvider := setupGatewayService(t)
		expected := &llm.ChatResponse{Model: "m", Message: llm.Message{Role: "assistant", Content: "hello"}}
		mockLLMProvider.On("Chat", ctx, req).Return(expected, nil).Once()

		resp, err := gatewayService.Chat(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, expected, resp)
	})

	t.Run("Failure - Provider Error", func(t *testing.T) {
		gatewayService, mockLLMProvider := setupGatewayService(t)
		mockLLMProvider.On("Chat", ctx, req).Return(nil, app_errors.ErrTransport).Once()

		_, err := gatewayService.Chat(ctx, req)
		assert.ErrorIs(t, err, app_errors.ErrTransport)
	})
}

func TestGatewayService_AskStream(t *testing.T) {
	ctx := context.Background()
	gatewayService, mockLLMProvider := setupGatewayService(t)
	req := &llm.GenerateRequest{Model: "m", Prompt: "q"}

	mockLLMProvider.On("GenerateStream", ctx, req, mock.Anything).
		Run(func(args mock.Arguments) {
			ch := args.Get(2).(chan<- json.RawMessage)
			ch <- json.RawMessage(`{"response":"a","done":true}`)
			close(ch)
		}).
		Return(nil).Once()

	ch := make(chan json.RawMessage, 1)
	require.NoError(t, gatewayService.AskStream(ctx, req, ch))
	chunk, ok := <-ch
	require.True(t, ok)
	assert.JSONEq(t, `{"response":"a","done":true}`, string(chunk))
}

func TestGatewayService_Models(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name      string
		list      *llm.ListModelsResponse
		listErr   error
		expectErr error
	}{
		{name: "Success", list: &llm.ListModelsResponse{Models: []llm.ModelInfo{{Name: "a"}}}},
		{name: "Failure - Nothing installed", list: &llm.ListModelsResponse{}, expectErr: app_errors.ErrNotFound},
		{name: "Failure - Provider Error", listErr: app_errors.ErrTransport, expectErr: app_errors.ErrTransport},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gatewayService, mockLLMProvider := setupGatewayService(t)
			mockLLMProvider.On("ListModels", ctx).Return(tc.list, tc.listErr).Once()

			models, err := gatewayService.Models(ctx)
			if tc.expectErr != nil {
				assert.ErrorIs(t, err, tc.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, models, 1)
		})
	}
}

func TestGatewayService_Healthy(t *testing.T) {
	ctx := context.Background()

	gatewayService, mockLLMProvider := setupGatewayService(t)
	mockLLMProvider.On("Ping", mock.Anything).Return(nil).Once()
	assert.True(t, gatewayService.Healthy(ctx))

	gatewayService, mockLLMProvider = setupGatewayService(t)
	mockLLMProvider.On("Ping", mock.Anything).Return(errors.New("refused")).Once()
	assert.False(t, gatewayService.Healthy(ctx))
}

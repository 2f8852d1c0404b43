package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app_errors "github.com/yusuftnc/qchat/internal/errors"
)

// TestClient runs the client against a mock backend built with httptest and
// checks the headers it sends and how it classifies failures.
func TestClient(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)

		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "application/json")
			_, err := w.Write([]byte(`{"status":true}`))
			assert.NoError(t, err)
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		case "/stream":
			w.Header().Set("Content-Type", "application/x-ndjson")
			_, _ = w.Write([]byte("{\"a\":1}\n"))
		default:
			http.Error(w, `{"status":false,"error":"no such route"}`, http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "secret-key")
	ctx := context.Background()

	t.Run("PostJSON sends api key and json body", func(t *testing.T) {
		body, err := client.PostJSON(ctx, "/ok", map[string]string{"prompt": "hi"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":true}`, string(body))

		assert.Equal(t, http.MethodPost, captured.Method)
		assert.Equal(t, "secret-key", captured.Header.Get(APIKeyHeader))
		assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
		assert.Empty(t, captured.Header.Get("Authorization"))

		var sent map[string]string
		require.NoError(t, json.Unmarshal(capturedBody, &sent))
		assert.Equal(t, "hi", sent["prompt"])
	})

	t.Run("bearer token can be set and cleared", func(t *testing.T) {
		client.SetAuthToken("tok")
		_, err := client.GetJSON(ctx, "/ok")
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok", captured.Header.Get("Authorization"))
		assert.Equal(t, http.MethodGet, captured.Method)

		client.ClearAuthToken()
		_, err = client.GetJSON(ctx, "/ok")
		require.NoError(t, err)
		assert.Empty(t, captured.Header.Get("Authorization"))
	})

	t.Run("non-2xx is a transport error", func(t *testing.T) {
		_, err := client.GetJSON(ctx, "/missing")
		assert.ErrorIs(t, err, app_errors.ErrTransport)
		assert.ErrorContains(t, err, "404")
		assert.ErrorContains(t, err, "no such route")
	})

	t.Run("no body is a transport error", func(t *testing.T) {
		_, err := client.GetJSON(ctx, "/empty")
		assert.ErrorIs(t, err, app_errors.ErrTransport)
	})

	t.Run("PostStream leaves the body open", func(t *testing.T) {
		resp, err := client.PostStream(ctx, "/stream", map[string]bool{"stream": true})
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "{\"a\":1}\n", string(data))
		assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))
	})
}

func TestClient_NoAPIKeyHeaderWhenUnset(t *testing.T) {
	var header http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").GetJSON(context.Background(), "/")
	require.NoError(t, err)
	_, present := header[http.CanonicalHeaderKey(APIKeyHeader)]
	assert.False(t, present)
}

func TestClient_UnreachableBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, "k").PostJSON(context.Background(), "/ollama/v1/qna", map[string]string{})
	assert.ErrorIs(t, err, app_errors.ErrTransport)
	assert.NotErrorIs(t, err, app_errors.ErrShape)
}

func TestClient_DeadlineIsReportedAsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, "k").GetJSON(ctx, "/ollama/v1/health")
	assert.ErrorIs(t, err, app_errors.ErrTimeout)
	assert.ErrorIs(t, err, app_errors.ErrTransport)
}

func TestNewClient_SendsAreNotTimeBounded(t *testing.T) {
	c := NewClient("http://localhost:3000", "k")

	assert.Zero(t, c.http.Timeout)
	tr, ok := c.http.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Zero(t, tr.ResponseHeaderTimeout, "slow answers must not fail on header wait")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"status":true}`))
	}))
	defer server.Close()

	body, err := NewClient(server.URL, "k").PostJSON(context.Background(), "/ollama/v1/chat", map[string]string{"model": "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":true}`, string(body))
}

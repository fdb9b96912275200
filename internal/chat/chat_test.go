package chat

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

	"github.com/betterocean/betterocean/api-service/internal/config"
)

func gradientConfig(endpoint string) config.GradientConfig {
	return config.GradientConfig{
		Endpoint: endpoint,
		Key:      "test-key",
		Model:    "openai-gpt-oss-120b",
		Timeout:  5 * time.Second,
	}
}

func TestNotConfigured(t *testing.T) {
	s := NewService(config.GradientConfig{})
	assert.False(t, s.Enabled())

	_, err := s.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestComplete(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "SPY closed higher."}},
			},
		})
	}))
	defer srv.Close()

	s := NewService(gradientConfig(srv.URL))
	require.True(t, s.Enabled())

	reply, err := s.Complete(context.Background(), []Message{
		{Role: "system", Content: "You are a trading assistant."},
		{Role: "user", Content: "How did SPY do today?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SPY closed higher.", reply)

	// endpoint without /v1 gets normalized
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "openai-gpt-oss-120b", gotBody["model"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestCompleteEndpointAlreadyVersioned(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "ok"}}},
		})
	}))
	defer srv.Close()

	s := NewService(gradientConfig(srv.URL + "/v1"))
	_, err := s.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "/v1/chat/completions", gotPath)
}

func TestCompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limited", "type": "rate_limit_error"},
		})
	}))
	defer srv.Close()

	s := NewService(gradientConfig(srv.URL))
	_, err := s.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)

	status, message, ok := UpstreamStatus(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "rate limited", message)
}

func TestUpstreamStatusTransportError(t *testing.T) {
	_, _, ok := UpstreamStatus(context.DeadlineExceeded)
	assert.False(t, ok)
}

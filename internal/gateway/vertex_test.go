package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

func TestIsVertexAnthropicTarget(t *testing.T) {
	cases := []struct {
		name    string
		model   string
		baseURL string
		want    bool
	}{
		{
			name:    "publishers anthropic path",
			model:   "claude-3-5-sonnet",
			baseURL: "https://us-central1-aiplatform.googleapis.com/v1/projects/p/locations/us-central1/publishers/anthropic/models/claude-3-5-sonnet",
			want:    true,
		},
		{
			name:    "openapi endpoint excluded",
			model:   "claude-3-5-sonnet",
			baseURL: "https://us-central1-aiplatform.googleapis.com/v1/projects/p/locations/us-central1/endpoints/openapi",
			want:    false,
		},
		{
			name:    "non vertex host",
			model:   "claude-3-5-sonnet",
			baseURL: "https://api.openai.com/v1",
			want:    false,
		},
		{
			name:    "anthropic model prefix with projects/locations",
			model:   "anthropic/claude-3-5-sonnet",
			baseURL: "https://us-central1-aiplatform.googleapis.com/v1/projects/p/locations/us-central1",
			want:    true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsVertexAnthropicTarget(tc.model, tc.baseURL))
		})
	}
}

func TestVertexAnthropicGateway_Complete_TextResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any

		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &body))

		assert.Equal(t, "vertex-2023-10-16", body["anthropic_version"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type":"text","text":"hello from claude"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	gw, err := NewVertexAnthropicGateway(&VertexGatewayConfig{APIKey: "token"})
	require.NoError(t, err)

	content := "hi claude"
	result, err := gw.Complete(context.Background(), "claude-3-5-sonnet", server.URL+"/publishers/anthropic/models/claude-3-5-sonnet", []llm.ChatMessage{
		{Role: llm.RoleUser, Content: &content},
	}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "hello from claude", result.Content)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, 10, result.Usage.PromptTokens)
	assert.Equal(t, 4, result.Usage.CompletionTokens)
	assert.Equal(t, 14, result.Usage.TotalTokens)
}

func TestVertexAnthropicGateway_Complete_ToolUseResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type":"tool_use","id":"toolu_1","name":"cancel_reservation","input":{"reservation_id":"EHGLP3"}}],
			"stop_reason": "tool_use"
		}`))
	}))
	defer server.Close()

	gw, err := NewVertexAnthropicGateway(&VertexGatewayConfig{APIKey: "token"})
	require.NoError(t, err)

	content := "cancel it"
	result, err := gw.Complete(context.Background(), "claude-3-5-sonnet", server.URL+"/publishers/anthropic/models/claude-3-5-sonnet", []llm.ChatMessage{
		{Role: llm.RoleUser, Content: &content},
	}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", result.FinishReason)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "cancel_reservation", result.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"reservation_id":"EHGLP3"}`, result.ToolCalls[0].Function.Arguments)
}

func TestVertexAnthropicGateway_Complete_EmptyResponseExhaustsRetries(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content": [], "stop_reason": "end_turn"}`))
	}))
	defer server.Close()

	gw, err := NewVertexAnthropicGateway(&VertexGatewayConfig{APIKey: "token"})
	require.NoError(t, err)

	content := "hi"
	_, err = gw.Complete(context.Background(), "claude-3-5-sonnet", server.URL+"/publishers/anthropic/models/claude-3-5-sonnet", []llm.ChatMessage{
		{Role: llm.RoleUser, Content: &content},
	}, "", nil)
	require.Error(t, err)

	formatErr, ok := gwerrors.AsUpstreamFormatError(err)
	require.True(t, ok)
	assert.Equal(t, "assistant message has empty content and no tool calls", formatErr.Reason)
	assert.Equal(t, maxEmptyAssistantAttempts, attempts)
}

func TestVertexAnthropicGateway_Complete_EmptyAssistantRetriesThenSucceeds(t *testing.T) {
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")

		if attempts == 1 {
			_, _ = w.Write([]byte(`{"content": [], "stop_reason": "end_turn"}`))
			return
		}

		_, _ = w.Write([]byte(`{
			"content": [{"type":"text","text":"hello from claude"}],
			"stop_reason": "end_turn"
		}`))
	}))
	defer server.Close()

	gw, err := NewVertexAnthropicGateway(&VertexGatewayConfig{APIKey: "token"})
	require.NoError(t, err)

	content := "hi"
	result, err := gw.Complete(context.Background(), "claude-3-5-sonnet", server.URL+"/publishers/anthropic/models/claude-3-5-sonnet", []llm.ChatMessage{
		{Role: llm.RoleUser, Content: &content},
	}, "", nil)
	require.NoError(t, err)

	assert.Equal(t, "hello from claude", result.Content)
	assert.Equal(t, 2, attempts)
}

func TestVertexAnthropicGateway_Complete_NonOKStatusIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
	}))
	defer server.Close()

	gw, err := NewVertexAnthropicGateway(&VertexGatewayConfig{APIKey: "token"})
	require.NoError(t, err)

	content := "hi"
	_, err = gw.Complete(context.Background(), "claude-3-5-sonnet", server.URL+"/publishers/anthropic/models/claude-3-5-sonnet", []llm.ChatMessage{
		{Role: llm.RoleUser, Content: &content},
	}, "", nil)
	require.Error(t, err)

	transportErr, ok := gwerrors.AsTransportError(err)
	require.True(t, ok)
	assert.Contains(t, transportErr.Cause.Error(), "500")
}

func TestResolveVertexEndpoint(t *testing.T) {
	assert.Equal(t,
		"https://host/v1/projects/p/locations/us-central1/publishers/anthropic/models/claude-3-5-sonnet:rawPredict",
		resolveVertexEndpoint("claude-3-5-sonnet", "https://host/v1/projects/p/locations/us-central1"),
	)

	assert.Equal(t,
		"https://host/endpoint:rawPredict",
		resolveVertexEndpoint("claude-3-5-sonnet", "https://host/endpoint:streamRawPredict"),
	)
}

package edits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

func TestBuildAndParseDraftPayload_RoundTrip(t *testing.T) {
	toolCalls := []llm.ToolCall{
		{ID: "call_1", Type: "function", Function: llm.ToolCallFunc{Name: "cancel_reservation", Arguments: `{"reservation_id":"EHGLP3"}`}},
	}

	payload, err := BuildDraftPayload("Hello world", toolCalls)
	require.NoError(t, err)

	assert.Contains(t, payload, "<ADAPTER_DRAFT_CONTENT>")
	assert.Contains(t, payload, "<ADAPTER_DRAFT_TOOL_CALLS>")

	content, parsedToolCalls, err := ParseDraftPayload(payload)
	require.NoError(t, err)

	assert.Equal(t, "Hello world", content)
	require.Len(t, parsedToolCalls, 1)
	assert.Equal(t, "cancel_reservation", parsedToolCalls[0].Function.Name)
}

func TestBuildAndParseDraftPayload_NoToolCalls(t *testing.T) {
	payload, err := BuildDraftPayload("just text", nil)
	require.NoError(t, err)

	content, toolCalls, err := ParseDraftPayload(payload)
	require.NoError(t, err)

	assert.Equal(t, "just text", content)
	assert.Nil(t, toolCalls)
}

func TestParseDraftPayload_MalformedEnvelope(t *testing.T) {
	_, _, err := ParseDraftPayload("not an envelope at all")
	assert.Error(t, err)
}

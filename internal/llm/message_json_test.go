package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessage_RoundTripsExtraFields(t *testing.T) {
	raw := `{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"f","arguments":"{}"}}]}`

	var msg ChatMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "", msg.ContentString())

	rawToolCalls, ok := msg.RawToolCalls()
	require.True(t, ok)
	assert.Contains(t, string(rawToolCalls), "call_1")

	encoded, err := json.Marshal(msg)
	require.NoError(t, err)

	var roundTripped map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &roundTripped))

	assert.Contains(t, roundTripped, "tool_calls")
	assert.Contains(t, roundTripped, "role")
	assert.Contains(t, roundTripped, "content")
}

func TestChatMessage_DecodeToolCalls_AbsentReturnsFalse(t *testing.T) {
	msg := ChatMessage{Role: RoleUser}.WithContent("hi")

	calls, present, err := msg.DecodeToolCalls()
	require.NoError(t, err)
	assert.False(t, present)
	assert.Nil(t, calls)
}

func TestChatMessage_DecodeToolCalls_MalformedReturnsError(t *testing.T) {
	var msg ChatMessage
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","tool_calls":"not-a-list"}`), &msg))

	_, present, err := msg.DecodeToolCalls()
	assert.True(t, present)
	assert.Error(t, err)
}

func TestChatMessage_ContentString_NilIsEmpty(t *testing.T) {
	msg := ChatMessage{Role: RoleUser}
	assert.Equal(t, "", msg.ContentString())
}

func TestWorkflowOutput_TotalUsage_ClampsNegatives(t *testing.T) {
	output := WorkflowOutput{
		StageUsage: map[string]TokenUsage{
			"api":     {PromptTokens: 5, CompletionTokens: -3, TotalTokens: 2},
			"adapter": {PromptTokens: -1, CompletionTokens: 4, TotalTokens: 4},
		},
	}

	total := output.TotalUsage()

	assert.Equal(t, 5, total.PromptTokens)
	assert.Equal(t, 4, total.CompletionTokens)
	assert.Equal(t, 6, total.TotalTokens)
}

func TestUpstreamResult_HasToolCalls(t *testing.T) {
	assert.False(t, UpstreamResult{}.HasToolCalls())
	assert.True(t, UpstreamResult{ToolCalls: []ToolCall{{ID: "x"}}}.HasToolCalls())
}

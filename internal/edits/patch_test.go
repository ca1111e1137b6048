package edits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

func TestApplyAdapterOutput_LGTM(t *testing.T) {
	content, toolCalls, err := ApplyAdapterOutput("Hello world", nil, `{"decision":"lgtm"}`)
	require.NoError(t, err)

	assert.Equal(t, "Hello world", content)
	assert.Nil(t, toolCalls)
}

func TestApplyAdapterOutput_PatchContent(t *testing.T) {
	content, _, err := ApplyAdapterOutput(
		"Hello wrld", nil,
		`{"decision":"patch","patches":[{"op":"replace","path":"/content","value":"Hello world"}]}`,
	)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", content)
}

func TestApplyAdapterOutput_PatchToolCallArguments(t *testing.T) {
	draft := []llm.ToolCall{
		{ID: "call_cancel", Type: "function", Function: llm.ToolCallFunc{Name: "cancel_reservation", Arguments: `{"reservation_id":"WRONG"}`}},
	}

	_, toolCalls, err := ApplyAdapterOutput(
		"", draft,
		`{"decision":"patch","patches":[{"op":"replace","path":"/tool_calls/0/function/arguments","value":"{\"reservation_id\":\"EHGLP3\"}"}]}`,
	)
	require.NoError(t, err)
	require.Len(t, toolCalls, 1)
	assert.Equal(t, `{"reservation_id":"EHGLP3"}`, toolCalls[0].Function.Arguments)
	assert.Equal(t, "cancel_reservation", toolCalls[0].Function.Name)
}

func TestApplyAdapterOutput_UnsupportedPathRejected(t *testing.T) {
	_, _, err := ApplyAdapterOutput(
		"x", nil,
		`{"decision":"patch","patches":[{"op":"replace","path":"/role","value":"assistant"}]}`,
	)
	assert.Error(t, err)
}

func TestApplyAdapterOutput_UnsupportedOpRejected(t *testing.T) {
	_, _, err := ApplyAdapterOutput(
		"x", nil,
		`{"decision":"patch","patches":[{"op":"add","path":"/content","value":"y"}]}`,
	)
	assert.Error(t, err)
}

func TestApplyAdapterOutput_LGTMWithPatchesRejected(t *testing.T) {
	_, _, err := ApplyAdapterOutput("x", nil, `{"decision":"lgtm","patches":[{"op":"replace","path":"/content","value":"y"}]}`)
	assert.Error(t, err)
}

func TestApplyAdapterOutput_RepairsNearValidJSON(t *testing.T) {
	// Trailing comma is invalid JSON but jsonrepair should recover it.
	content, _, err := ApplyAdapterOutput(
		"Hello wrld", nil,
		`{"decision":"patch","patches":[{"op":"replace","path":"/content","value":"Hello world",}],}`,
	)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", content)
}

func TestApplyAdapterOutput_ToolCallsClearedToNull(t *testing.T) {
	draft := []llm.ToolCall{
		{ID: "call_1", Type: "function", Function: llm.ToolCallFunc{Name: "f", Arguments: "{}"}},
	}

	_, toolCalls, err := ApplyAdapterOutput(
		"done", draft,
		`{"decision":"patch","patches":[{"op":"replace","path":"/tool_calls","value":null}]}`,
	)
	require.NoError(t, err)
	assert.Nil(t, toolCalls)
}

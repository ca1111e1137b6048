// Package workflow implements the four pluggable workflow state machines
// (Direct, Adapter, Critic, Advisor) that compose UpstreamGateway calls
// into a WorkflowOutput (spec §4.5).
package workflow

import (
	"encoding/json"

	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// normalizeToolCalls returns nil for an empty list, otherwise toolCalls
// unchanged (spec "intermediate... optionally" / empty-list-to-null rule).
func normalizeToolCalls(toolCalls []llm.ToolCall) []llm.ToolCall {
	if len(toolCalls) == 0 {
		return nil
	}

	return toolCalls
}

func isJSONObjectString(s string) bool {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return false
	}

	_, ok := v.(map[string]any)

	return ok
}

// hasValidToolCalls reports whether toolCalls is nil, or every entry has
// OpenAI function-call shape: non-empty id, type=="function", a function
// name, and arguments that parse as a JSON object (spec §4.5 step 3).
func hasValidToolCalls(toolCalls []llm.ToolCall) bool {
	normalized := normalizeToolCalls(toolCalls)
	if normalized == nil {
		return true
	}

	for _, tc := range normalized {
		if tc.ID == "" {
			return false
		}

		if tc.Type != "function" {
			return false
		}

		if tc.Function.Name == "" {
			return false
		}

		if !isJSONObjectString(tc.Function.Arguments) {
			return false
		}
	}

	return true
}

// requiresToolCall reports whether requestOptions demands a call via
// tool_choice (spec §4.5 step 3).
func requiresToolCall(requestOptions map[string]json.RawMessage) bool {
	raw, ok := requestOptions["tool_choice"]
	if !ok {
		return false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == "required"
	}

	var obj struct {
		Type string `json:"type"`
	}

	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Type == "function"
	}

	return false
}

// inferFinishReason derives the output finish_reason (spec §4.5 step 5,
// §4.6): "tool_calls" when toolCalls is non-empty, else the raw upstream
// finish_reason when it is "length"/"content_filter", else "stop".
func inferFinishReason(rawFinishReason string, toolCalls []llm.ToolCall) string {
	if normalizeToolCalls(toolCalls) != nil {
		return "tool_calls"
	}

	switch rawFinishReason {
	case "length", "content_filter":
		return rawFinishReason
	default:
		return "stop"
	}
}

// adapterCandidateRejectionReason reports why (content, toolCalls) is not
// an acceptable adapter/critic candidate, or "" if it is (spec §4.5
// step 3).
func adapterCandidateRejectionReason(content string, toolCalls []llm.ToolCall, requireCall bool) string {
	normalized := normalizeToolCalls(toolCalls)

	if normalized != nil && !hasValidToolCalls(normalized) {
		return "tool_calls must have OpenAI function shape with JSON-object arguments"
	}

	hasCall := normalized != nil

	if content == "" && !hasCall {
		return "assistant message has empty content and no calls"
	}

	if requireCall && !hasCall {
		return "request requires a tool call"
	}

	return ""
}

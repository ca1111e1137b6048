package llm

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON decodes a ChatMessage, capturing any field beyond role and
// content into Extra so it can be forwarded to upstream verbatim.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("chat message is not a JSON object: %w", err)
	}

	if roleRaw, ok := raw["role"]; ok {
		var role string
		if err := json.Unmarshal(roleRaw, &role); err != nil {
			return fmt.Errorf("chat message role must be a string: %w", err)
		}

		m.Role = Role(role)
		delete(raw, "role")
	}

	if contentRaw, ok := raw["content"]; ok {
		var content *string
		if err := json.Unmarshal(contentRaw, &content); err == nil {
			m.Content = content
		}

		delete(raw, "content")
	}

	m.Extra = raw

	return nil
}

// MarshalJSON encodes a ChatMessage, re-merging Extra fields alongside role
// and content so tool_calls/tool_call_id/etc. round-trip unchanged.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+2)

	for k, v := range m.Extra {
		out[k] = v
	}

	roleBytes, err := json.Marshal(m.Role)
	if err != nil {
		return nil, err
	}

	out["role"] = roleBytes

	if m.Content != nil {
		contentBytes, err := json.Marshal(*m.Content)
		if err != nil {
			return nil, err
		}

		out["content"] = contentBytes
	}

	return json.Marshal(out)
}

// RawToolCalls returns the raw "tool_calls" extra field, if present.
func (m ChatMessage) RawToolCalls() (json.RawMessage, bool) {
	raw, ok := m.Extra["tool_calls"]
	return raw, ok
}

// DecodeToolCalls decodes the message's tool_calls extra field into
// []ToolCall, when present and well-shaped. Returns (nil, false) when the
// message carries no tool_calls field at all.
func (m ChatMessage) DecodeToolCalls() ([]ToolCall, bool, error) {
	raw, ok := m.RawToolCalls()
	if !ok {
		return nil, false, nil
	}

	var calls []ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, true, fmt.Errorf("tool_calls is not a list of function calls: %w", err)
	}

	return calls, true, nil
}

// Package edits implements the draft payload envelope and the restricted
// JSON-Patch dialect the Adapter/Critic workflows use to let a small model
// propose edits to an assistant draft without ever seeing or emitting raw
// JSON structure for tool calls (spec §4.3, §4.4, §9).
package edits

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

const (
	draftContentOpen   = "<ADAPTER_DRAFT_CONTENT>"
	draftContentClose  = "</ADAPTER_DRAFT_CONTENT>"
	draftToolCallsOpen  = "<ADAPTER_DRAFT_TOOL_CALLS>"
	draftToolCallsClose = "</ADAPTER_DRAFT_TOOL_CALLS>"
)

// draftPayloadRE extracts the content and tool_calls sections of a
// rendered draft envelope. It is the single, fixed way these stages see
// the draft — never parsed outside this package (spec §9).
var draftPayloadRE = regexp.MustCompile(
	`(?s)` + regexp.QuoteMeta(draftContentOpen) + `\n(.*?)\n` + regexp.QuoteMeta(draftContentClose) +
		`\n` + regexp.QuoteMeta(draftToolCallsOpen) + `\n(.*?)\n` + regexp.QuoteMeta(draftToolCallsClose),
)

// BuildDraftPayload renders content/tool_calls as the tagged textual
// envelope described in spec §4.3.
func BuildDraftPayload(content string, toolCalls []llm.ToolCall) (string, error) {
	var toolCallsValue any = toolCalls
	if toolCalls == nil {
		toolCallsValue = []llm.ToolCall{}
	}

	rendered, err := marshalIndentSorted(toolCallsValue)
	if err != nil {
		return "", fmt.Errorf("rendering draft tool_calls: %w", err)
	}

	var buf bytes.Buffer

	buf.WriteString(draftContentOpen)
	buf.WriteByte('\n')
	buf.WriteString(content)
	buf.WriteByte('\n')
	buf.WriteString(draftContentClose)
	buf.WriteByte('\n')
	buf.WriteString(draftToolCallsOpen)
	buf.WriteByte('\n')
	buf.Write(rendered)
	buf.WriteByte('\n')
	buf.WriteString(draftToolCallsClose)

	return buf.String(), nil
}

// ParseDraftPayload extracts content and tool_calls back out of a rendered
// draft envelope. Returns an error if the envelope is malformed.
func ParseDraftPayload(payload string) (content string, toolCalls []llm.ToolCall, err error) {
	m := draftPayloadRE.FindStringSubmatch(payload)
	if m == nil {
		return "", nil, fmt.Errorf("draft payload does not match the expected envelope")
	}

	content = m[1]

	var calls []llm.ToolCall
	if err := json.Unmarshal([]byte(m[2]), &calls); err != nil {
		return "", nil, fmt.Errorf("draft payload tool_calls is not valid JSON: %w", err)
	}

	if len(calls) == 0 {
		return content, nil, nil
	}

	return content, calls, nil
}

// marshalIndentSorted renders v as indent="  " JSON with object keys sorted.
// Struct fields would otherwise follow declaration order (id, type,
// function), so v is first decoded into generic maps, whose keys
// encoding/json emits in sorted order.
func marshalIndentSorted(v any) ([]byte, error) {
	compact, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(compact))
	decoder.UseNumber()

	var generic any
	if err := decoder.Decode(&generic); err != nil {
		return nil, err
	}

	return json.MarshalIndent(generic, "", "  ")
}

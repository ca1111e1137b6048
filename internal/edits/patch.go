package edits

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// Decision is the adapter's top-level verdict on a draft.
type Decision string

const (
	DecisionLGTM  Decision = "lgtm"
	DecisionPatch Decision = "patch"
)

// Patch is one entry of the constrained, replace-only JSON-Patch dialect
// (spec §4.4, §9): only `op: "replace"` is supported, and `path` must be
// one of a fixed whitelist.
type Patch struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// AdapterOutput is the parsed shape of the adapter's JSON response.
type AdapterOutput struct {
	Decision Decision `json:"decision"`
	Patches  []Patch  `json:"patches,omitempty"`
}

// allowedPatchPaths are the only JSON-Pointer paths a replace patch may
// target. Broader JSON-Patch support is a non-goal (spec §9).
var allowedPatchPaths = func(path string) bool {
	if path == "/content" || path == "/tool_calls" {
		return true
	}

	// /tool_calls/<index>/function/name or /tool_calls/<index>/function/arguments
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "tool_calls" {
		return false
	}

	if _, err := strconv.Atoi(unescapePointerToken(parts[1])); err != nil {
		return false
	}

	if parts[2] != "function" {
		return false
	}

	return parts[3] == "name" || parts[3] == "arguments"
}

// ParseAdapterOutput parses the adapter's raw text response into an
// AdapterOutput, repairing common near-valid-JSON mistakes before giving
// up, and validates the decision/patches invariants of spec §4.4.
func ParseAdapterOutput(raw string) (AdapterOutput, error) {
	var out AdapterOutput

	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return AdapterOutput{}, fmt.Errorf("adapter output is not valid JSON: %w", err)
		}

		if err := json.Unmarshal([]byte(repaired), &out); err != nil {
			return AdapterOutput{}, fmt.Errorf("adapter output is not valid JSON after repair: %w", err)
		}
	}

	switch out.Decision {
	case DecisionLGTM:
		if len(out.Patches) != 0 {
			return AdapterOutput{}, fmt.Errorf("lgtm decision must not carry patches")
		}
	case DecisionPatch:
		if len(out.Patches) == 0 {
			return AdapterOutput{}, fmt.Errorf("patch decision requires non-empty patches")
		}

		for _, p := range out.Patches {
			if p.Op != "replace" {
				return AdapterOutput{}, fmt.Errorf("unsupported patch op %q", p.Op)
			}

			if !allowedPatchPaths(p.Path) {
				return AdapterOutput{}, fmt.Errorf("unsupported patch path %q", p.Path)
			}
		}
	default:
		return AdapterOutput{}, fmt.Errorf("unknown adapter decision %q", out.Decision)
	}

	return out, nil
}

// draftDocument is the working document a patch is applied against:
// {content, tool_calls}.
type draftDocument struct {
	Content   string
	ToolCalls []llm.ToolCall
}

// ApplyAdapterOutput applies the adapter's parsed output to (content,
// toolCalls), returning the patched draft. lgtm returns the draft
// unchanged; patch applies each replace op in order against the document.
func ApplyAdapterOutput(content string, toolCalls []llm.ToolCall, rawAdapterOutput string) (string, []llm.ToolCall, error) {
	out, err := ParseAdapterOutput(rawAdapterOutput)
	if err != nil {
		return "", nil, err
	}

	if out.Decision == DecisionLGTM {
		return content, toolCalls, nil
	}

	doc := draftDocument{Content: content, ToolCalls: append([]llm.ToolCall(nil), toolCalls...)}

	for _, p := range out.Patches {
		if err := applyReplace(&doc, p); err != nil {
			return "", nil, err
		}
	}

	normalized := doc.ToolCalls
	if len(normalized) == 0 {
		normalized = nil
	}

	return doc.Content, normalized, nil
}

func applyReplace(doc *draftDocument, p Patch) error {
	switch {
	case p.Path == "/content":
		var content string
		if err := json.Unmarshal(p.Value, &content); err != nil {
			return fmt.Errorf("patch value for /content must be a string: %w", err)
		}

		doc.Content = content

		return nil

	case p.Path == "/tool_calls":
		if isJSONNull(p.Value) {
			doc.ToolCalls = nil
			return nil
		}

		var calls []llm.ToolCall
		if err := json.Unmarshal(p.Value, &calls); err != nil {
			return fmt.Errorf("patch value for /tool_calls must be a list of tool calls: %w", err)
		}

		doc.ToolCalls = calls

		return nil

	default:
		return applyToolCallFieldReplace(doc, p)
	}
}

func applyToolCallFieldReplace(doc *draftDocument, p Patch) error {
	parts := strings.Split(strings.TrimPrefix(p.Path, "/"), "/")
	if len(parts) != 4 {
		return fmt.Errorf("unsupported patch path %q", p.Path)
	}

	index, err := strconv.Atoi(unescapePointerToken(parts[1]))
	if err != nil || index < 0 || index >= len(doc.ToolCalls) {
		return fmt.Errorf("path not found: %q", p.Path)
	}

	var value string
	if err := json.Unmarshal(p.Value, &value); err != nil {
		return fmt.Errorf("patch value for %q must be a string: %w", p.Path, err)
	}

	switch parts[3] {
	case "name":
		doc.ToolCalls[index].Function.Name = value
	case "arguments":
		if !isJSONObjectString(value) {
			return fmt.Errorf("patch value for %q must parse as a JSON object", p.Path)
		}

		doc.ToolCalls[index].Function.Arguments = value
	default:
		return fmt.Errorf("unsupported patch path %q", p.Path)
	}

	return nil
}

// unescapePointerToken decodes the RFC 6901 escape sequences ~1 -> / and
// ~0 -> ~ in a single JSON-Pointer reference token.
func unescapePointerToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	token = strings.ReplaceAll(token, "~0", "~")

	return token
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "null"
}

func isJSONObjectString(s string) bool {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return false
	}

	_, ok := v.(map[string]any)

	return ok
}

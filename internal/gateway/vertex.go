package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
	"github.com/RohanAwhad/adapter-critic/internal/log"
)

// defaultVertexMaxTokens is used when request_options carries no usable
// max_tokens value.
const defaultVertexMaxTokens = 8192

// VertexGatewayConfig configures a VertexAnthropicGateway. Per SPEC_FULL.md's
// documented deviation, authorization uses the same constructor-bound
// token-or-env-var resolution as every other gateway (spec §4.2) rather
// than shelling out to `gcloud auth print-access-token`.
type VertexGatewayConfig struct {
	APIKey           string
	DefaultAPIKeyEnv string
	HTTPClient       *http.Client
}

// VertexAnthropicGateway maps the OpenAI-compatible contract onto the
// Vertex AI "rawPredict" Anthropic-on-Vertex wire format (spec §4.2).
type VertexAnthropicGateway struct {
	config *VertexGatewayConfig
	client *http.Client
}

// NewVertexAnthropicGateway builds a VertexAnthropicGateway from config.
func NewVertexAnthropicGateway(config *VertexGatewayConfig) (*VertexAnthropicGateway, error) {
	if config == nil {
		return nil, errors.New("vertex gateway config cannot be nil")
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	return &VertexAnthropicGateway{config: config, client: client}, nil
}

func (g *VertexAnthropicGateway) resolveAPIKey(apiKeyEnv string) string {
	if g.config.APIKey != "" {
		return g.config.APIKey
	}

	envName := apiKeyEnv
	if envName == "" {
		envName = g.config.DefaultAPIKeyEnv
	}

	if envName == "" {
		return ""
	}

	return os.Getenv(envName)
}

// IsVertexAnthropicTarget reports whether (model, baseURL) should be
// routed to the Vertex-Anthropic gateway (spec §4.2 RoutingGateway rule).
func IsVertexAnthropicTarget(model, baseURL string) bool {
	normalizedBaseURL := strings.ToLower(baseURL)

	if !strings.Contains(normalizedBaseURL, "aiplatform.googleapis.com") {
		return false
	}

	if strings.Contains(normalizedBaseURL, "/publishers/anthropic/models/") {
		return true
	}

	if !strings.Contains(normalizedBaseURL, "/projects/") || !strings.Contains(normalizedBaseURL, "/locations/") {
		return false
	}

	if strings.Contains(normalizedBaseURL, "/endpoints/openapi") {
		return false
	}

	normalizedModel := strings.ToLower(model)

	return strings.HasPrefix(normalizedModel, "anthropic/") || strings.Contains(normalizedModel, "claude")
}

func normalizeVertexModelName(model string) string {
	if rest, ok := strings.CutPrefix(model, "anthropic/"); ok {
		return rest
	}

	return model
}

func resolveVertexEndpoint(model, baseURL string) string {
	trimmed := strings.TrimSuffix(baseURL, "/")
	lowered := strings.ToLower(trimmed)

	const streamSuffix = ":streamrawpredict"
	if strings.HasSuffix(lowered, streamSuffix) {
		return trimmed[:len(trimmed)-len(streamSuffix)] + ":rawPredict"
	}

	if strings.HasSuffix(lowered, ":rawpredict") {
		return trimmed
	}

	if strings.Contains(lowered, "/publishers/anthropic/models/") {
		return trimmed + ":rawPredict"
	}

	return trimmed + "/publishers/anthropic/models/" + normalizeVertexModelName(model) + ":rawPredict"
}

func extractSystemPrompt(messages []llm.ChatMessage) string {
	var parts []string

	for _, m := range messages {
		if m.Role == llm.RoleSystem && m.ContentString() != "" {
			parts = append(parts, m.ContentString())
		}
	}

	return strings.Join(parts, "\n\n")
}

// messageToVertexContent maps one OpenAI-shaped message to an Anthropic
// content block, or nil for system messages (extracted separately).
func messageToVertexContent(m llm.ChatMessage) (map[string]any, error) {
	switch m.Role {
	case llm.RoleSystem:
		return nil, nil

	case llm.RoleUser:
		return map[string]any{"role": "user", "content": m.ContentString()}, nil

	case llm.RoleAssistant:
		var blocks []map[string]any

		if text := m.ContentString(); text != "" {
			blocks = append(blocks, map[string]any{"type": "text", "text": text})
		}

		toolCalls, present, err := m.DecodeToolCalls()
		if err != nil {
			return nil, fmt.Errorf("assistant tool_calls: %w", err)
		}

		if present {
			for _, tc := range toolCalls {
				var input map[string]any
				if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
					return nil, fmt.Errorf("assistant tool_call function.arguments must decode to an object: %w", err)
				}

				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Function.Name,
					"input": input,
				})
			}
		}

		if len(blocks) == 0 {
			return map[string]any{"role": "assistant", "content": ""}, nil
		}

		return map[string]any{"role": "assistant", "content": blocks}, nil

	case llm.RoleTool:
		toolCallIDRaw, ok := m.Extra["tool_call_id"]
		if !ok {
			return nil, errors.New("tool role message requires tool_call_id")
		}

		var toolCallID string
		if err := json.Unmarshal(toolCallIDRaw, &toolCallID); err != nil {
			return nil, errors.New("tool role message requires tool_call_id")
		}

		return map[string]any{
			"role": "user",
			"content": []map[string]any{
				{"type": "tool_result", "tool_use_id": toolCallID, "content": m.ContentString()},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported message role for vertex anthropic: %s", m.Role)
	}
}

func mapStopSequences(raw json.RawMessage) ([]string, bool) {
	if raw == nil {
		return nil, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}, true
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}

	return nil, false
}

func mapTools(raw json.RawMessage) ([]map[string]any, bool) {
	if raw == nil {
		return nil, false
	}

	var tools []map[string]any
	if err := json.Unmarshal(raw, &tools); err != nil {
		return nil, false
	}

	var mapped []map[string]any

	for _, tool := range tools {
		function, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}

		name, ok := function["name"].(string)
		if !ok {
			continue
		}

		entry := map[string]any{"name": name}

		if description, ok := function["description"].(string); ok {
			entry["description"] = description
		}

		if parameters, ok := function["parameters"].(map[string]any); ok {
			entry["input_schema"] = parameters
		} else {
			entry["input_schema"] = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		mapped = append(mapped, entry)
	}

	if len(mapped) == 0 {
		return nil, false
	}

	return mapped, true
}

func mapToolChoice(raw json.RawMessage) (map[string]any, bool) {
	if raw == nil {
		return nil, false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "auto":
			return map[string]any{"type": "auto"}, true
		case "required":
			return map[string]any{"type": "any"}, true
		}

		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false
	}

	if obj["type"] != "function" {
		return nil, false
	}

	function, ok := obj["function"].(map[string]any)
	if !ok {
		return nil, false
	}

	name, ok := function["name"].(string)
	if !ok {
		return nil, false
	}

	return map[string]any{"type": "tool", "name": name}, true
}

// mapRequestOptions maps the subset of request_options Vertex-Anthropic
// understands (spec §4.2).
func mapRequestOptions(requestOptions map[string]json.RawMessage) map[string]any {
	mapped := map[string]any{}

	if requestOptions == nil {
		return mapped
	}

	if raw, ok := requestOptions["max_tokens"]; ok {
		var n int
		if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
			mapped["max_tokens"] = n
		}
	}

	if raw, ok := requestOptions["temperature"]; ok {
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			mapped["temperature"] = f
		}
	}

	if raw, ok := requestOptions["top_p"]; ok {
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			mapped["top_p"] = f
		}
	}

	if raw, ok := requestOptions["top_k"]; ok {
		var n int
		if err := json.Unmarshal(raw, &n); err == nil {
			mapped["top_k"] = n
		}
	}

	if stop, ok := mapStopSequences(requestOptions["stop"]); ok {
		mapped["stop_sequences"] = stop
	}

	if tools, ok := mapTools(requestOptions["tools"]); ok {
		mapped["tools"] = tools
	}

	if toolChoice, ok := mapToolChoice(requestOptions["tool_choice"]); ok {
		mapped["tool_choice"] = toolChoice
	}

	return mapped
}

func mapVertexFinishReason(stopReason string) string {
	switch stopReason {
	case "tool_use":
		return "tool_calls"
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

// Complete implements UpstreamGateway.
func (g *VertexAnthropicGateway) Complete(
	ctx context.Context,
	model, baseURL string,
	messages []llm.ChatMessage,
	apiKeyEnv string,
	requestOptions map[string]json.RawMessage,
) (llm.UpstreamResult, error) {
	endpoint := resolveVertexEndpoint(model, baseURL)
	accessToken := g.resolveAPIKey(apiKeyEnv)

	var anthropicMessages []map[string]any

	for _, m := range messages {
		mapped, err := messageToVertexContent(m)
		if err != nil {
			return llm.UpstreamResult{}, gwerrors.Validationf("vertex anthropic message mapping: %v", err)
		}

		if mapped != nil {
			anthropicMessages = append(anthropicMessages, mapped)
		}
	}

	mappedOptions := mapRequestOptions(requestOptions)

	maxTokens := defaultVertexMaxTokens
	if v, ok := mappedOptions["max_tokens"].(int); ok {
		maxTokens = v
	}

	payload := map[string]any{
		"anthropic_version": "vertex-2023-10-16",
		"messages":          anthropicMessages,
		"max_tokens":        maxTokens,
	}

	if systemPrompt := extractSystemPrompt(messages); systemPrompt != "" {
		payload["system"] = systemPrompt
	}

	for key, value := range mappedOptions {
		if key != "max_tokens" {
			payload[key] = value
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return llm.UpstreamResult{}, fmt.Errorf("encoding vertex anthropic request body: %w", err)
	}

	log.Debug(ctx, "vertex anthropic request",
		log.String("model", model), log.String("endpoint", endpoint), log.Int("message_count", len(anthropicMessages)))

	var lastData []byte

	var lastStatus int

	for attempt := 1; attempt <= maxEmptyAssistantAttempts; attempt++ {
		data, status, err := g.doVertexRequest(ctx, endpoint, accessToken, body)
		if err != nil {
			return llm.UpstreamResult{}, &gwerrors.TransportError{Model: model, BaseURL: endpoint, Cause: err}
		}

		lastData, lastStatus = data, status

		if status >= http.StatusBadRequest {
			return llm.UpstreamResult{}, &gwerrors.TransportError{
				Model:   model,
				BaseURL: endpoint,
				Cause:   fmt.Errorf("upstream returned status %d: %s", status, log.Preview(string(data), bodyPreviewMaxChars)),
			}
		}

		result, retry, err := parseVertexResponse(data, status, model, endpoint, len(messages), attempt)
		if err != nil {
			return llm.UpstreamResult{}, err
		}

		if retry {
			log.Warn(ctx, "empty assistant payload without tool calls; retrying vertex anthropic request",
				log.String("model", model), log.String("endpoint", endpoint), log.Int("attempt", attempt))

			continue
		}

		return result, nil
	}

	return llm.UpstreamResult{}, &gwerrors.UpstreamResponseFormatError{
		Reason:       "assistant message has empty content and no tool calls",
		Model:        model,
		BaseURL:      endpoint,
		MessageCount: len(messages),
		StatusCode:   lastStatus,
		BodyPreview:  log.Preview(string(lastData), bodyPreviewMaxChars),
	}
}

func (g *VertexAnthropicGateway) doVertexRequest(ctx context.Context, endpoint, accessToken string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", "application/json")

	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return data, resp.StatusCode, nil
}

// parseVertexResponse validates and extracts an UpstreamResult from a raw
// Vertex-Anthropic response body. retry reports whether the
// empty-assistant retry should fire for this attempt (spec §4.2).
func parseVertexResponse(data []byte, status int, model, endpoint string, messageCount, attempt int) (llm.UpstreamResult, bool, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return llm.UpstreamResult{}, false, formatError("vertex anthropic response body is not a JSON object", model, endpoint, messageCount, status, data)
	}

	root := gjson.ParseBytes(data)
	contentValue := root.Get("content")

	var (
		contentParts []string
		toolCalls    []llm.ToolCall
	)

	switch {
	case contentValue.Type == gjson.String:
		contentParts = append(contentParts, contentValue.String())

	case contentValue.IsArray():
		for _, block := range contentValue.Array() {
			if !block.IsObject() {
				return llm.UpstreamResult{}, false, formatError("vertex anthropic content block is not an object", model, endpoint, messageCount, status, data)
			}

			switch block.Get("type").String() {
			case "text":
				if t := block.Get("text"); t.Type == gjson.String {
					contentParts = append(contentParts, t.String())
				}

			case "tool_use":
				idResult := block.Get("id")
				nameResult := block.Get("name")
				inputResult := block.Get("input")

				if idResult.Type != gjson.String {
					return llm.UpstreamResult{}, false, formatError("vertex anthropic tool_use block id is not a string", model, endpoint, messageCount, status, data)
				}

				if nameResult.Type != gjson.String {
					return llm.UpstreamResult{}, false, formatError("vertex anthropic tool_use block name is not a string", model, endpoint, messageCount, status, data)
				}

				if !inputResult.IsObject() {
					return llm.UpstreamResult{}, false, formatError("vertex anthropic tool_use block input is not an object", model, endpoint, messageCount, status, data)
				}

				argumentsBytes, err := canonicalJSON(inputResult.Raw)
				if err != nil {
					return llm.UpstreamResult{}, false, formatError("vertex anthropic tool_use block input is not valid JSON", model, endpoint, messageCount, status, data)
				}

				toolCalls = append(toolCalls, llm.ToolCall{
					ID:   idResult.String(),
					Type: "function",
					Function: llm.ToolCallFunc{
						Name:      nameResult.String(),
						Arguments: string(argumentsBytes),
					},
				})
			}
		}
	}

	content := strings.Join(contentParts, "")

	if len(toolCalls) == 0 {
		toolCalls = nil
	}

	if content == "" && toolCalls == nil {
		if attempt < maxEmptyAssistantAttempts {
			return llm.UpstreamResult{}, true, nil
		}
		return llm.UpstreamResult{}, false, formatError("assistant message has empty content and no tool calls", model, endpoint, messageCount, status, data)
	}

	usage := root.Get("usage")

	promptTokens := firstPresentInt(usage, "input_tokens", "prompt_tokens")
	completionTokens := firstPresentInt(usage, "output_tokens", "completion_tokens")
	totalTokens := int(usage.Get("total_tokens").Int())

	if !usage.Get("total_tokens").Exists() {
		totalTokens = promptTokens + completionTokens
	}

	return llm.UpstreamResult{
		Content: content,
		Usage: llm.TokenUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      totalTokens,
		},
		ToolCalls:    toolCalls,
		FinishReason: mapVertexFinishReason(root.Get("stop_reason").String()),
	}, false, nil
}

func firstPresentInt(obj gjson.Result, keys ...string) int {
	for _, k := range keys {
		if v := obj.Get(k); v.Exists() {
			return int(v.Int())
		}
	}

	return 0
}

// canonicalJSON re-serializes raw as compact, sorted-key JSON (spec §4.2
// "arguments re-serialized as compact JSON").
func canonicalJSON(raw string) ([]byte, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}

	return marshalSortedCompact(v)
}

func marshalSortedCompact(v any) ([]byte, error) {
	switch value := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		var b bytes.Buffer

		b.WriteByte('{')

		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}

			keyBytes, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}

			b.Write(keyBytes)
			b.WriteByte(':')

			valBytes, err := marshalSortedCompact(value[k])
			if err != nil {
				return nil, err
			}

			b.Write(valBytes)
		}

		b.WriteByte('}')

		return b.Bytes(), nil

	case []any:
		var b bytes.Buffer

		b.WriteByte('[')

		for i, item := range value {
			if i > 0 {
				b.WriteByte(',')
			}

			itemBytes, err := marshalSortedCompact(item)
			if err != nil {
				return nil, err
			}

			b.Write(itemBytes)
		}

		b.WriteByte(']')

		return b.Bytes(), nil

	default:
		return json.Marshal(value)
	}
}


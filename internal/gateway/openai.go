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
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
	"github.com/RohanAwhad/adapter-critic/internal/log"
)

// DefaultTimeout is the per-call upstream timeout applied when Config
// does not set one (spec §5).
const DefaultTimeout = 120 * time.Second

// maxEmptyAssistantAttempts bounds the empty-assistant retry (spec §4.2,
// §9). When the last attempt still carries empty-shaped content and
// tool_calls, parseResponse returns that empty result instead of an error.
const maxEmptyAssistantAttempts = 2

// bodyPreviewMaxChars bounds the body preview attached to format errors
// (spec §4.2).
const bodyPreviewMaxChars = 400

// Config configures an OpenAI-compatible gateway.
type Config struct {
	// APIKey, when non-empty, is used for every call regardless of the
	// per-stage api_key_env (a constructor-bound token wins per spec §4.2).
	APIKey string

	// DefaultAPIKeyEnv names the environment variable consulted when a
	// call's api_key_env is empty.
	DefaultAPIKeyEnv string

	Timeout    time.Duration
	HTTPClient *http.Client
}

func validateConfig(config *Config) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	return nil
}

// OpenAICompatibleGateway talks the OpenAI chat-completions wire format
// (spec §4.2).
type OpenAICompatibleGateway struct {
	config *Config
	client *http.Client
}

// NewOpenAICompatibleGateway builds an OpenAICompatibleGateway from config.
func NewOpenAICompatibleGateway(config *Config) (*OpenAICompatibleGateway, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid openai gateway configuration: %w", err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &OpenAICompatibleGateway{config: config, client: client}, nil
}

func (g *OpenAICompatibleGateway) resolveAPIKey(apiKeyEnv string) string {
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

// Complete implements UpstreamGateway.
func (g *OpenAICompatibleGateway) Complete(
	ctx context.Context,
	model, baseURL string,
	messages []llm.ChatMessage,
	apiKeyEnv string,
	requestOptions map[string]json.RawMessage,
) (llm.UpstreamResult, error) {
	body, err := buildRequestBody(model, messages, requestOptions)
	if err != nil {
		return llm.UpstreamResult{}, fmt.Errorf("building upstream request body: %w", err)
	}

	warnOnMalformedToolCalls(ctx, model, baseURL, messages)

	url := strings.TrimSuffix(baseURL, "/") + "/chat/completions"
	apiKey := g.resolveAPIKey(apiKeyEnv)

	log.Debug(ctx, "upstream request",
		log.String("model", model),
		log.String("base_url", baseURL),
		log.Int("message_count", len(messages)),
	)

	var lastData []byte

	var lastStatus int

	for attempt := 1; attempt <= maxEmptyAssistantAttempts; attempt++ {
		data, status, err := g.doRequest(ctx, url, apiKey, body)
		if err != nil {
			return llm.UpstreamResult{}, &gwerrors.TransportError{Model: model, BaseURL: baseURL, Cause: err}
		}

		lastData, lastStatus = data, status

		if status >= http.StatusBadRequest {
			return llm.UpstreamResult{}, &gwerrors.TransportError{
				Model:   model,
				BaseURL: baseURL,
				Cause:   fmt.Errorf("upstream returned status %d: %s", status, log.Preview(string(data), bodyPreviewMaxChars)),
			}
		}

		result, retry, err := parseResponse(data, status, model, baseURL, len(messages), attempt)
		if err != nil {
			return llm.UpstreamResult{}, err
		}

		if retry {
			log.Warn(ctx, "empty assistant payload without tool calls; retrying upstream request",
				log.String("model", model), log.String("base_url", baseURL), log.Int("attempt", attempt))

			continue
		}

		return result, nil
	}

	return llm.UpstreamResult{}, &gwerrors.UpstreamResponseFormatError{
		Reason:       "assistant message has empty content and no tool calls",
		Model:        model,
		BaseURL:      baseURL,
		MessageCount: len(messages),
		StatusCode:   lastStatus,
		BodyPreview:  log.Preview(string(lastData), bodyPreviewMaxChars),
	}
}

func (g *OpenAICompatibleGateway) doRequest(ctx context.Context, url, apiKey string, body []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Content-Type", "application/json")

	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
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

// buildRequestBody builds `{model, messages, ...request_options}`, never
// duplicating the model/messages keys (spec §4.2).
func buildRequestBody(model string, messages []llm.ChatMessage, requestOptions map[string]json.RawMessage) ([]byte, error) {
	encodedMessages, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encoding messages: %w", err)
	}

	body := []byte("{}")

	body, err = sjson.SetBytes(body, "model", model)
	if err != nil {
		return nil, err
	}

	body, err = sjson.SetRawBytes(body, "messages", encodedMessages)
	if err != nil {
		return nil, err
	}

	for key, value := range requestOptions {
		if key == "model" || key == "messages" {
			continue
		}

		body, err = sjson.SetRawBytes(body, key, value)
		if err != nil {
			return nil, fmt.Errorf("encoding request_options[%s]: %w", key, err)
		}
	}

	return body, nil
}

// warnOnMalformedToolCalls logs (without blocking the request) when an
// inbound assistant message carries tool_calls whose function.arguments
// is not a string (spec §4.2 "best-effort outbound warning").
func warnOnMalformedToolCalls(ctx context.Context, model, baseURL string, messages []llm.ChatMessage) {
	assistantMessages := lo.Filter(messages, func(m llm.ChatMessage, _ int) bool {
		return m.Role == llm.RoleAssistant
	})

	issues := lo.SumBy(assistantMessages, func(m llm.ChatMessage) int {
		raw, ok := m.RawToolCalls()
		if !ok {
			return 0
		}

		var calls []json.RawMessage
		if err := json.Unmarshal(raw, &calls); err != nil {
			return 1
		}

		return lo.CountBy(calls, func(call json.RawMessage) bool {
			return gjson.GetBytes(call, "function.arguments").Type != gjson.String
		})
	})

	if issues > 0 {
		log.Warn(ctx, "detected malformed assistant tool calls before upstream request",
			log.String("model", model), log.String("base_url", baseURL), log.Int("issues_count", issues))
	}
}

// parseResponse validates and extracts an UpstreamResult from a raw
// response body (spec §4.2). retry reports whether the empty-assistant
// retry should fire for this attempt.
func parseResponse(data []byte, status int, model, baseURL string, messageCount, attempt int) (llm.UpstreamResult, bool, error) {
	if !gjson.ValidBytes(data) {
		return llm.UpstreamResult{}, false, formatError("response body is not valid JSON", model, baseURL, messageCount, status, data)
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return llm.UpstreamResult{}, false, formatError("response body is not a JSON object", model, baseURL, messageCount, status, data)
	}

	choices := root.Get("choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return llm.UpstreamResult{}, false, formatError("response missing non-empty choices", model, baseURL, messageCount, status, data)
	}

	firstChoice := choices.Array()[0]
	if !firstChoice.IsObject() {
		return llm.UpstreamResult{}, false, formatError("choices[0] is not an object", model, baseURL, messageCount, status, data)
	}

	message := firstChoice.Get("message")
	if !message.IsObject() {
		return llm.UpstreamResult{}, false, formatError("choices[0].message is not an object", model, baseURL, messageCount, status, data)
	}

	toolCallsValue := message.Get("tool_calls")

	var toolCalls []llm.ToolCall

	toolCallsPresent := toolCallsValue.Exists() && toolCallsValue.Type != gjson.Null

	if toolCallsPresent {
		if !toolCallsValue.IsArray() {
			return llm.UpstreamResult{}, false, formatError("choices[0].message.tool_calls is not a list of objects", model, baseURL, messageCount, status, data)
		}

		for i, item := range toolCallsValue.Array() {
			if !item.IsObject() {
				return llm.UpstreamResult{}, false, formatError("choices[0].message.tool_calls is not a list of objects", model, baseURL, messageCount, status, data)
			}

			function := item.Get("function")
			if !function.IsObject() {
				return llm.UpstreamResult{}, false, formatError("choices[0].message.tool_calls[*].function is not an object", model, baseURL, messageCount, status, data)
			}

			argumentsResult := function.Get("arguments")
			if argumentsResult.Type != gjson.String {
				return llm.UpstreamResult{}, false, formatError("choices[0].message.tool_calls[*].function.arguments is not a string", model, baseURL, messageCount, status, data)
			}

			if !json.Valid([]byte(argumentsResult.String())) {
				return llm.UpstreamResult{}, false, formatError(
					fmt.Sprintf("choices[0].message.tool_calls[*].function.arguments is not valid JSON at index %d", i),
					model, baseURL, messageCount, status, data,
				)
			}

			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   item.Get("id").String(),
				Type: item.Get("type").String(),
				Function: llm.ToolCallFunc{
					Name:      function.Get("name").String(),
					Arguments: argumentsResult.String(),
				},
			})
		}

		if len(toolCalls) == 0 {
			toolCalls = nil
		}
	}

	contentResult := message.Get("content")

	var content string

	switch {
	case contentResult.Type == gjson.String:
		content = contentResult.String()
	case contentResult.IsArray():
		var b strings.Builder

		for _, part := range contentResult.Array() {
			if part.IsObject() && part.Get("text").Type == gjson.String {
				b.WriteString(part.Get("text").String())
			}
		}

		content = b.String()
	default:
		content = ""
	}

	if content == "" && toolCalls == nil {
		contentEmptyShape := contentResult.Type == gjson.Null || (contentResult.IsArray() && len(contentResult.Array()) == 0) || !contentResult.Exists()
		toolCallsEmptyShape := !toolCallsPresent || (toolCallsValue.IsArray() && len(toolCallsValue.Array()) == 0)

		if !(contentEmptyShape && toolCallsEmptyShape) {
			return llm.UpstreamResult{}, false, formatError("assistant message has empty content and no tool calls", model, baseURL, messageCount, status, data)
		}

		if attempt < maxEmptyAssistantAttempts {
			return llm.UpstreamResult{}, true, nil
		}
	}

	finishReason := firstChoice.Get("finish_reason")

	finishReasonStr := "stop"
	if finishReason.Type == gjson.String {
		finishReasonStr = finishReason.String()
	}

	usage := root.Get("usage")

	return llm.UpstreamResult{
		Content: content,
		Usage: llm.TokenUsage{
			PromptTokens:     int(usage.Get("prompt_tokens").Int()),
			CompletionTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		},
		ToolCalls:    toolCalls,
		FinishReason: finishReasonStr,
	}, false, nil
}

func formatError(reason, model, baseURL string, messageCount, status int, body []byte) error {
	return &gwerrors.UpstreamResponseFormatError{
		Reason:       reason,
		Model:        model,
		BaseURL:      baseURL,
		MessageCount: messageCount,
		StatusCode:   status,
		BodyPreview:  log.Preview(string(body), bodyPreviewMaxChars),
	}
}

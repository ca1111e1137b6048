// Package server implements the HTTP surface: request parsing and override
// resolution, the response builder, the gin router/handlers, the health
// probe, and error-taxonomy-to-status mapping (spec §4.1, §4.6, §6).
package server

import (
	"bytes"
	"encoding/json"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// overrideKey is the top-level and extra_body key carrying per-request
// overrides (spec §4.1, §6).
const overrideKey = "x_adapter_critic"

// ChatCompletionRequest is the raw parsed Chat Completions request body,
// before override resolution: model, messages, and every other top-level
// key preserved verbatim (spec §3).
type ChatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []llm.ChatMessage `json:"messages"`

	// raw holds the full decoded top-level object, used to derive
	// request_options and locate x_adapter_critic / extra_body.
	raw map[string]json.RawMessage
}

// ParsedRequest is the output of request parsing (spec §4.1).
type ParsedRequest struct {
	Request        ChatCompletionRequest
	Overrides      config.AdapterCriticOverrides
	RequestOptions map[string]json.RawMessage
}

// ParseRequest decodes a raw Chat Completions JSON payload into a
// ParsedRequest, resolving the x_adapter_critic override (top-level wins
// over extra_body) and deriving request_options as every top-level key
// except model/messages/x_adapter_critic (spec §4.1).
func ParseRequest(body []byte) (ParsedRequest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return ParsedRequest{}, gwerrors.Validationf("request body is not a JSON object: %v", err)
	}

	modelRaw, ok := raw["model"]
	if !ok {
		return ParsedRequest{}, gwerrors.Validation("request is missing required field \"model\"")
	}

	var model string
	if err := json.Unmarshal(modelRaw, &model); err != nil || model == "" {
		return ParsedRequest{}, gwerrors.Validation("request field \"model\" must be a non-empty string")
	}

	messagesRaw, ok := raw["messages"]
	if !ok {
		return ParsedRequest{}, gwerrors.Validation("request is missing required field \"messages\"")
	}

	var messages []llm.ChatMessage
	if err := json.Unmarshal(messagesRaw, &messages); err != nil {
		return ParsedRequest{}, gwerrors.Validationf("request field \"messages\" is malformed: %v", err)
	}

	overrides, err := resolveOverrides(raw)
	if err != nil {
		return ParsedRequest{}, err
	}

	requestOptions := map[string]json.RawMessage{}

	for key, value := range raw {
		if key == "model" || key == "messages" || key == overrideKey {
			continue
		}

		requestOptions[key] = value
	}

	return ParsedRequest{
		Request: ChatCompletionRequest{
			Model:    model,
			Messages: messages,
			raw:      raw,
		},
		Overrides:      overrides,
		RequestOptions: requestOptions,
	}, nil
}

// resolveOverrides reads x_adapter_critic, drawn first from the top
// level, else from extra_body.x_adapter_critic, else empty (spec §4.1,
// §6). Unknown fields fail with a validation error.
func resolveOverrides(raw map[string]json.RawMessage) (config.AdapterCriticOverrides, error) {
	overrideRaw, ok := raw[overrideKey]

	if !ok {
		if extraBodyRaw, hasExtraBody := raw["extra_body"]; hasExtraBody {
			var extraBody map[string]json.RawMessage
			if err := json.Unmarshal(extraBodyRaw, &extraBody); err == nil {
				overrideRaw, ok = extraBody[overrideKey]
			}
		}
	}

	if !ok {
		return config.AdapterCriticOverrides{}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(overrideRaw))
	decoder.DisallowUnknownFields()

	var overrides config.AdapterCriticOverrides
	if err := decoder.Decode(&overrides); err != nil {
		return config.AdapterCriticOverrides{}, gwerrors.Validationf("x_adapter_critic is malformed: %v", err)
	}

	if overrides.MaxAdapterRetries != nil && *overrides.MaxAdapterRetries < 0 {
		return config.AdapterCriticOverrides{}, gwerrors.Validation("max_adapter_retries must be >= 0")
	}

	return overrides, nil
}

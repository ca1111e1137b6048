package server

import (
	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// Message is the `choices[0].message` object of a Chat Completions
// response. ToolCalls is omitted entirely when empty (spec §4.6).
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
}

// Choice is one entry of the `choices` array.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Tokens is the `adapter_critic.tokens` extension block.
type Tokens struct {
	Stages map[string]llm.TokenUsage `json:"stages"`
	Total  llm.TokenUsage            `json:"total"`
}

// AdapterCriticExtension is the `adapter_critic` extension block (spec
// §4.6, §6).
type AdapterCriticExtension struct {
	Mode         config.Mode       `json:"mode"`
	Intermediate map[string]string `json:"intermediate"`
	Tokens       Tokens            `json:"tokens"`
}

// ChatCompletionResponse is the full HTTP response body (spec §4.6).
type ChatCompletionResponse struct {
	ID            string                 `json:"id"`
	Object        string                 `json:"object"`
	Created       int64                  `json:"created"`
	Model         string                 `json:"model"`
	Choices       []Choice               `json:"choices"`
	Usage         llm.TokenUsage         `json:"usage"`
	AdapterCritic AdapterCriticExtension `json:"adapter_critic"`
}

// BuildResponse assembles the final Chat Completions response from a
// workflow's output (spec §4.6). finish_reason is re-derived here from
// whether tool_calls ended up present, per the universal invariant of
// spec §8.
func BuildResponse(id string, created int64, servedModel string, mode config.Mode, output llm.WorkflowOutput) ChatCompletionResponse {
	finishReason := "stop"

	switch {
	case len(output.FinalToolCalls) > 0:
		finishReason = "tool_calls"
	case output.FinishReason == "length", output.FinishReason == "content_filter":
		finishReason = output.FinishReason
	}

	message := Message{Role: "assistant", Content: output.FinalText}
	if len(output.FinalToolCalls) > 0 {
		message.ToolCalls = output.FinalToolCalls
	}

	total := output.TotalUsage()

	return ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   servedModel,
		Choices: []Choice{
			{Index: 0, Message: message, FinishReason: finishReason},
		},
		Usage: total,
		AdapterCritic: AdapterCriticExtension{
			Mode:         mode,
			Intermediate: output.Intermediate,
			Tokens: Tokens{
				Stages: output.StageUsage,
				Total:  total,
			},
		},
	}
}

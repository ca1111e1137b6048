// Package prompt renders the deterministic system/user messages sent to
// the adapter, critic, and advisor stages: built-in default system
// prompts, the authoritative tool contract suffix, and the draft-payload
// and advisor-guidance framing described in spec §4.3.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// Built-in default system prompts (spec §4.3). A served model may override
// any of these via config; these are the fallback when it does not.
const (
	AdapterSystemPrompt = "You are a response editor running in JSON mode. Respond with valid JSON only. " +
		`Return {"decision":"lgtm"} if the draft is good, or return ` +
		`{"decision":"patch","patches":[{"op":"replace","path":"/content","value":"..."}]} ` +
		"to apply RFC6902-style replace patches. Never emit tool calls in your own output."

	CriticSystemPrompt = "You are a critique generator. Explain what is correct, what is wrong/missing, " +
		"and exact fix instructions."

	AdvisorSystemPrompt = "You are an expert advisor for another language model. " +
		"Provide concise, actionable guidance on how to solve the user's request: where to look, " +
		"what steps/tools to use, what pitfalls to avoid, and what the final answer must include. " +
		"Do not answer the user directly. Do not emit tool calls. Return guidance only."
)

const (
	advisorGuidanceOpenTag  = "[ADVISOR_GUIDANCE]"
	advisorGuidanceCloseTag = "[/ADVISOR_GUIDANCE]"
)

func renderHistory(messages []llm.ChatMessage) string {
	lines := make([]string, 0, len(messages))

	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("[%s] %s", m.Role, m.ContentString()))
	}

	return strings.Join(lines, "\n")
}

// renderToolContract renders the {tools?, tool_choice?} subset of
// requestOptions as stable-key-order JSON, or returns "" if neither key is
// present/non-empty.
func renderToolContract(requestOptions map[string]json.RawMessage) string {
	if requestOptions == nil {
		return ""
	}

	contract := make(map[string]json.RawMessage, 2)

	if toolsRaw, ok := requestOptions["tools"]; ok {
		var tools []json.RawMessage
		if err := json.Unmarshal(toolsRaw, &tools); err == nil && len(tools) > 0 {
			contract["tools"] = toolsRaw
		}
	}

	if toolChoiceRaw, ok := requestOptions["tool_choice"]; ok && !isJSONNull(toolChoiceRaw) {
		contract["tool_choice"] = toolChoiceRaw
	}

	if len(contract) == 0 {
		return ""
	}

	rendered, err := json.MarshalIndent(contract, "", "  ")
	if err != nil {
		return ""
	}

	return string(rendered)
}

func isJSONNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

func withToolContractSuffix(systemPrompt, contract, suffixInstruction string) string {
	if contract == "" {
		return systemPrompt
	}

	return fmt.Sprintf(
		"%s\n\nAuthoritative tool contract for this request:\n%s\n\n%s",
		systemPrompt, contract, suffixInstruction,
	)
}

func sysMessage(content string) llm.ChatMessage {
	return llm.ChatMessage{Role: llm.RoleSystem}.WithContent(content)
}

func userMessage(content string) llm.ChatMessage {
	return llm.ChatMessage{Role: llm.RoleUser}.WithContent(content)
}

// BuildAdapterMessages renders the system+user message pair sent to the
// adapter stage: the adapter system prompt (optionally suffixed with the
// tool contract) and a user message embedding the conversation history and
// the rendered draft payload.
func BuildAdapterMessages(
	messages []llm.ChatMessage,
	draft string,
	systemPrompt string,
	requestOptions map[string]json.RawMessage,
) []llm.ChatMessage {
	if systemPrompt == "" {
		systemPrompt = AdapterSystemPrompt
	}

	contract := renderToolContract(requestOptions)
	systemContent := withToolContractSuffix(
		systemPrompt, contract,
		"Never emit tool calls directly. Return only the structured JSON adapter response.",
	)

	return []llm.ChatMessage{
		sysMessage(systemContent),
		userMessage(fmt.Sprintf("Conversation history:\n%s\n\nLatest API draft:\n%s", renderHistory(messages), draft)),
	}
}

// BuildCriticMessages renders the system+user message pair sent to the
// critic stage. firstSystemPrompt is the content of the first system
// message of the original conversation, if any.
func BuildCriticMessages(
	messages []llm.ChatMessage,
	firstSystemPrompt string,
	draft string,
	systemPrompt string,
	requestOptions map[string]json.RawMessage,
) []llm.ChatMessage {
	if systemPrompt == "" {
		systemPrompt = CriticSystemPrompt
	}

	contract := renderToolContract(requestOptions)
	systemContent := withToolContractSuffix(
		systemPrompt, contract,
		"Evaluate tool usage against this contract. Never emit tool calls yourself.",
	)

	userContent := fmt.Sprintf(
		"System instructions:\n%s\n\nConversation history:\n%s\n\nLatest API draft:\n%s",
		firstSystemPrompt, renderHistory(messages), draft,
	)

	return []llm.ChatMessage{
		sysMessage(systemContent),
		userMessage(userContent),
	}
}

// BuildCriticSecondPassMessages appends a user message carrying the
// critic's feedback and the prior draft payload to the original
// conversation, framed so the (more capable) api model treats the
// feedback as advisory.
func BuildCriticSecondPassMessages(messages []llm.ChatMessage, draft, critique string) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(messages)+1)
	out = append(out, messages...)

	content := fmt.Sprintf(
		"Below is your prior draft and feedback from a small critic model.\n"+
			"The critic is less capable than you — use your own judgment about whether to act on its feedback.\n\n"+
			"Critic feedback:\n%s\n\nPrior draft:\n%s",
		critique, draft,
	)

	return append(out, userMessage(content))
}

// BuildAdvisorMessages renders the advisor stage's message list: its
// system prompt (optionally suffixed with the tool contract) followed by
// the original conversation verbatim.
func BuildAdvisorMessages(
	messages []llm.ChatMessage,
	systemPrompt string,
	requestOptions map[string]json.RawMessage,
) []llm.ChatMessage {
	if systemPrompt == "" {
		systemPrompt = AdvisorSystemPrompt
	}

	contract := renderToolContract(requestOptions)
	systemContent := withToolContractSuffix(
		systemPrompt, contract,
		"Use this contract only as planning context. Never emit tool calls directly.",
	)

	out := make([]llm.ChatMessage, 0, len(messages)+1)
	out = append(out, sysMessage(systemContent))

	return append(out, messages...)
}

func buildAdvisorGuidanceBlock(guidance string) string {
	return fmt.Sprintf("%s\n%s\n%s", advisorGuidanceOpenTag, guidance, advisorGuidanceCloseTag)
}

// AppendAdvisorGuidanceToLastUserMessage appends the advisor's guidance,
// wrapped in [ADVISOR_GUIDANCE] tags, to the last user message found
// scanning backwards through messages. If no user message exists, a new
// trailing user message carrying just the guidance block is appended.
// messages is left unmodified; a new slice is returned.
func AppendAdvisorGuidanceToLastUserMessage(messages []llm.ChatMessage, guidance string) []llm.ChatMessage {
	block := buildAdvisorGuidanceBlock(guidance)

	updated := make([]llm.ChatMessage, len(messages))
	copy(updated, messages)

	for i := len(updated) - 1; i >= 0; i-- {
		if updated[i].Role != llm.RoleUser {
			continue
		}

		current := updated[i].ContentString()

		next := block
		if current != "" {
			next = fmt.Sprintf("%s\n\n%s", current, block)
		}

		updated[i] = updated[i].WithContent(next)

		return updated
	}

	return append(updated, userMessage(block))
}

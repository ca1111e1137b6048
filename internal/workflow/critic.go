package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/edits"
	"github.com/RohanAwhad/adapter-critic/internal/gateway"
	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
	"github.com/RohanAwhad/adapter-critic/internal/log"
	"github.com/RohanAwhad/adapter-critic/internal/prompt"
)

// finalPassAttempts bounds the Critic workflow's final-pass retry (spec
// §4.5 Critic: "Retry ONCE on UpstreamResponseFormatError or transport
// error").
const finalPassAttempts = 2

func firstSystemPrompt(messages []llm.ChatMessage) string {
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			return m.ContentString()
		}
	}

	return ""
}

// isRetryableFinalPassError reports whether err is one of the two
// categories the Critic final pass retries on.
func isRetryableFinalPassError(err error) bool {
	if _, ok := gwerrors.AsUpstreamFormatError(err); ok {
		return true
	}

	if _, ok := gwerrors.AsTransportError(err); ok {
		return true
	}

	return false
}

// RunCritic runs api_draft → critic feedback → second-pass, falling back
// to the api_draft if the final pass fails twice (spec §4.5 Critic).
func RunCritic(
	ctx context.Context,
	runtime config.RuntimeConfig,
	messages []llm.ChatMessage,
	gw gateway.UpstreamGateway,
	requestOptions map[string]json.RawMessage,
) (llm.WorkflowOutput, error) {
	if runtime.Critic == nil {
		return llm.WorkflowOutput{}, fmt.Errorf("critic workflow: runtime is missing critic target")
	}

	apiDraft, err := gw.Complete(ctx, runtime.API.Model, runtime.API.BaseURL, messages, runtime.API.APIKeyEnv, requestOptions)
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("critic workflow api_draft: %w", err)
	}

	apiToolCalls := normalizeToolCalls(apiDraft.ToolCalls)

	draftPayload, err := edits.BuildDraftPayload(apiDraft.Content, apiToolCalls)
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("critic workflow: %w", err)
	}

	criticMessages := prompt.BuildCriticMessages(
		messages, firstSystemPrompt(messages), draftPayload, runtime.CriticSystemPrompt, requestOptions,
	)

	criticFeedback, err := gw.Complete(ctx, runtime.Critic.Model, runtime.Critic.BaseURL, criticMessages, runtime.Critic.APIKeyEnv, nil)
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("critic workflow critic stage: %w", err)
	}

	secondPassMessages := prompt.BuildCriticSecondPassMessages(messages, draftPayload, criticFeedback.Content)

	var (
		finalResponse      *llm.UpstreamResult
		finalFallbackReason string
	)

	for attempt := 1; attempt <= finalPassAttempts; attempt++ {
		result, err := gw.Complete(
			ctx, runtime.API.Model, runtime.API.BaseURL, secondPassMessages, runtime.API.APIKeyEnv, requestOptions,
		)
		if err == nil {
			finalResponse = &result
			break
		}

		if !isRetryableFinalPassError(err) {
			return llm.WorkflowOutput{}, fmt.Errorf("critic workflow final pass: %w", err)
		}

		log.Warn(ctx, "critic final pass attempt failed",
			log.String("model", runtime.API.Model), log.String("base_url", runtime.API.BaseURL),
			log.Int("attempt", attempt), log.Cause(err))

		if attempt == finalPassAttempts {
			finalFallbackReason = fmt.Sprintf("api_final failed after %d attempts: %v", finalPassAttempts, err)
		}
	}

	var (
		finalText      string
		finalToolCalls []llm.ToolCall
		finishReason   string
		apiFinalUsage  llm.TokenUsage
	)

	if finalResponse == nil {
		finalText = apiDraft.Content
		finalToolCalls = apiToolCalls
		finishReason = apiDraft.FinishReason
	} else {
		finalText = finalResponse.Content
		finalToolCalls = normalizeToolCalls(finalResponse.ToolCalls)
		finishReason = finalResponse.FinishReason
		apiFinalUsage = finalResponse.Usage
	}

	intermediate := map[string]string{
		"api_draft": apiDraft.Content,
		"critic":    criticFeedback.Content,
		"final":     finalText,
	}

	if apiToolCalls != nil {
		if b, err := json.Marshal(apiToolCalls); err == nil {
			intermediate["api_draft_tool_calls"] = string(b)
		}
	}

	if finalFallbackReason != "" {
		intermediate["final_fallback_reason"] = finalFallbackReason
	}

	return llm.WorkflowOutput{
		FinalText:    finalText,
		Intermediate: intermediate,
		StageUsage: map[string]llm.TokenUsage{
			"api_draft": apiDraft.Usage,
			"critic":    criticFeedback.Usage,
			"api_final": apiFinalUsage,
		},
		FinalToolCalls: finalToolCalls,
		FinishReason:   inferFinishReason(finishReason, finalToolCalls),
	}, nil
}

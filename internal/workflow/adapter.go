package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/edits"
	"github.com/RohanAwhad/adapter-critic/internal/gateway"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
	"github.com/RohanAwhad/adapter-critic/internal/prompt"
)

// RunAdapter runs the api_draft → adapter-review retry loop, falling back
// to the original draft if no candidate is accepted (spec §4.5 Adapter).
func RunAdapter(
	ctx context.Context,
	runtime config.RuntimeConfig,
	messages []llm.ChatMessage,
	gw gateway.UpstreamGateway,
	requestOptions map[string]json.RawMessage,
) (llm.WorkflowOutput, error) {
	if runtime.Adapter == nil {
		return llm.WorkflowOutput{}, fmt.Errorf("adapter workflow: runtime is missing adapter target")
	}

	apiDraft, err := gw.Complete(ctx, runtime.API.Model, runtime.API.BaseURL, messages, runtime.API.APIKeyEnv, requestOptions)
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("adapter workflow api_draft: %w", err)
	}

	apiToolCalls := normalizeToolCalls(apiDraft.ToolCalls)
	requireCall := requiresToolCall(requestOptions)

	draftPayload, err := edits.BuildDraftPayload(apiDraft.Content, apiToolCalls)
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("adapter workflow: %w", err)
	}

	adapterMessages := prompt.BuildAdapterMessages(messages, draftPayload, runtime.AdapterSystemPrompt, requestOptions)

	adapterRequestOptions := map[string]json.RawMessage{}

	responseFormatBytes, err := json.Marshal(prompt.AdapterResponseFormat())
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("adapter workflow: encoding response_format: %w", err)
	}

	adapterRequestOptions["response_format"] = responseFormatBytes

	var (
		adapterUsage      llm.TokenUsage
		adapterOutput     string
		rejectionReason   string
		finalText         = apiDraft.Content
		finalToolCalls    = apiToolCalls
		acceptedCandidate bool
	)

	maxAttempts := runtime.MaxAdapterRetries + 1

	for attempt := 0; attempt < maxAttempts; attempt++ {
		adapterReview, err := gw.Complete(
			ctx, runtime.Adapter.Model, runtime.Adapter.BaseURL, adapterMessages, runtime.Adapter.APIKeyEnv, adapterRequestOptions,
		)
		if err != nil {
			rejectionReason = fmt.Sprintf("adapter call failed: %v", err)
			continue
		}

		adapterUsage = adapterUsage.Add(adapterReview.Usage)
		adapterOutput = adapterReview.Content

		candidateText, candidateToolCalls, err := edits.ApplyAdapterOutput(apiDraft.Content, apiToolCalls, adapterReview.Content)
		if err != nil {
			rejectionReason = fmt.Sprintf("adapter patch rejected: %v", err)
			continue
		}

		candidateToolCalls = normalizeToolCalls(candidateToolCalls)

		if reason := adapterCandidateRejectionReason(candidateText, candidateToolCalls, requireCall); reason != "" {
			rejectionReason = fmt.Sprintf("adapter candidate rejected: %s", reason)
			continue
		}

		finalText = candidateText
		finalToolCalls = candidateToolCalls
		acceptedCandidate = true
		rejectionReason = ""

		break
	}

	intermediate := map[string]string{
		"api_draft": apiDraft.Content,
		"adapter":   adapterOutput,
		"final":     finalText,
	}

	if apiToolCalls != nil {
		if b, err := json.Marshal(apiToolCalls); err == nil {
			intermediate["api_draft_tool_calls"] = string(b)
		}
	}

	if !acceptedCandidate && rejectionReason != "" {
		intermediate["adapter_rejection_reason"] = rejectionReason
	}

	return llm.WorkflowOutput{
		FinalText:      finalText,
		Intermediate:   intermediate,
		StageUsage:     map[string]llm.TokenUsage{"api": apiDraft.Usage, "adapter": adapterUsage},
		FinalToolCalls: finalToolCalls,
		FinishReason:   inferFinishReason(apiDraft.FinishReason, finalToolCalls),
	}, nil
}

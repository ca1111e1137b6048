package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/gateway"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
	"github.com/RohanAwhad/adapter-critic/internal/prompt"
)

// RunAdvisor builds advisor guidance from the original conversation, then
// injects it into the last user message before the final api call (spec
// §4.5 Advisor).
func RunAdvisor(
	ctx context.Context,
	runtime config.RuntimeConfig,
	messages []llm.ChatMessage,
	gw gateway.UpstreamGateway,
	requestOptions map[string]json.RawMessage,
) (llm.WorkflowOutput, error) {
	if runtime.Advisor == nil {
		return llm.WorkflowOutput{}, fmt.Errorf("advisor workflow: runtime is missing advisor target")
	}

	advisorMessages := prompt.BuildAdvisorMessages(messages, runtime.AdvisorSystemPrompt, requestOptions)

	advisorFeedback, err := gw.Complete(
		ctx, runtime.Advisor.Model, runtime.Advisor.BaseURL, advisorMessages, runtime.Advisor.APIKeyEnv, nil,
	)
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("advisor workflow advisor stage: %w", err)
	}

	apiMessages := prompt.AppendAdvisorGuidanceToLastUserMessage(messages, advisorFeedback.Content)

	apiResponse, err := gw.Complete(
		ctx, runtime.API.Model, runtime.API.BaseURL, apiMessages, runtime.API.APIKeyEnv, requestOptions,
	)
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("advisor workflow api stage: %w", err)
	}

	return llm.WorkflowOutput{
		FinalText: apiResponse.Content,
		Intermediate: map[string]string{
			"advisor": advisorFeedback.Content,
			"final":   apiResponse.Content,
		},
		StageUsage: map[string]llm.TokenUsage{
			"advisor": advisorFeedback.Usage,
			"api":     apiResponse.Usage,
		},
		FinalToolCalls: normalizeToolCalls(apiResponse.ToolCalls),
		FinishReason:   inferFinishReason(apiResponse.FinishReason, apiResponse.ToolCalls),
	}, nil
}

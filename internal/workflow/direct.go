package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/gateway"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// RunDirect performs a single gateway call against the api target,
// forwarding request_options (spec §4.5 Direct).
func RunDirect(
	ctx context.Context,
	runtime config.RuntimeConfig,
	messages []llm.ChatMessage,
	gw gateway.UpstreamGateway,
	requestOptions map[string]json.RawMessage,
) (llm.WorkflowOutput, error) {
	result, err := gw.Complete(ctx, runtime.API.Model, runtime.API.BaseURL, messages, runtime.API.APIKeyEnv, requestOptions)
	if err != nil {
		return llm.WorkflowOutput{}, fmt.Errorf("direct workflow: %w", err)
	}

	return llm.WorkflowOutput{
		FinalText:      result.Content,
		Intermediate:   map[string]string{"api": result.Content},
		StageUsage:     map[string]llm.TokenUsage{"api": result.Usage},
		FinalToolCalls: normalizeToolCalls(result.ToolCalls),
		FinishReason:   inferFinishReason(result.FinishReason, result.ToolCalls),
	}, nil
}

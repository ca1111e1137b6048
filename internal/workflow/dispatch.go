package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/gateway"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// Dispatch runs the workflow named by runtime.Mode (spec §9 "Variant
// routing"). The dispatch itself is pure: each mode maps to exactly one
// run function.
func Dispatch(
	ctx context.Context,
	runtime config.RuntimeConfig,
	messages []llm.ChatMessage,
	gw gateway.UpstreamGateway,
	requestOptions map[string]json.RawMessage,
) (llm.WorkflowOutput, error) {
	switch runtime.Mode {
	case config.ModeDirect:
		return RunDirect(ctx, runtime, messages, gw, requestOptions)
	case config.ModeAdapter:
		return RunAdapter(ctx, runtime, messages, gw, requestOptions)
	case config.ModeCritic:
		return RunCritic(ctx, runtime, messages, gw, requestOptions)
	case config.ModeAdvisor:
		return RunAdvisor(ctx, runtime, messages, gw, requestOptions)
	default:
		return llm.WorkflowOutput{}, fmt.Errorf("dispatch: unknown mode %q", runtime.Mode)
	}
}

package gateway

import (
	"context"
	"encoding/json"

	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// RoutingGateway dispatches between an OpenAI-compatible gateway and a
// Vertex-Anthropic gateway by inspecting (model, base_url) (spec §4.2).
// The routing decision itself is pure and exposed separately as
// IsVertexAnthropicTarget for direct testing.
type RoutingGateway struct {
	OpenAI UpstreamGateway
	Vertex UpstreamGateway
}

// NewRoutingGateway builds a RoutingGateway wrapping the given gateways.
func NewRoutingGateway(openai, vertex UpstreamGateway) *RoutingGateway {
	return &RoutingGateway{OpenAI: openai, Vertex: vertex}
}

// Complete implements UpstreamGateway.
func (g *RoutingGateway) Complete(
	ctx context.Context,
	model, baseURL string,
	messages []llm.ChatMessage,
	apiKeyEnv string,
	requestOptions map[string]json.RawMessage,
) (llm.UpstreamResult, error) {
	target := g.OpenAI
	if IsVertexAnthropicTarget(model, baseURL) {
		target = g.Vertex
	}

	return target.Complete(ctx, model, baseURL, messages, apiKeyEnv, requestOptions)
}

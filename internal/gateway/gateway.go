// Package gateway implements the UpstreamGateway contract (spec §4.2): a
// capability that performs one chat completion against a named upstream
// and returns a normalized UpstreamResult, an UpstreamResponseFormatError,
// or a transport error. Three implementations are provided: an
// OpenAI-compatible HTTP gateway, a Vertex-Anthropic gateway, and a
// Routing gateway that dispatches between them.
package gateway

import (
	"context"
	"encoding/json"

	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// UpstreamGateway performs one chat completion against a named upstream.
type UpstreamGateway interface {
	Complete(
		ctx context.Context,
		model, baseURL string,
		messages []llm.ChatMessage,
		apiKeyEnv string,
		requestOptions map[string]json.RawMessage,
	) (llm.UpstreamResult, error)
}

package workflow

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RohanAwhad/adapter-critic/internal/config"
	"github.com/RohanAwhad/adapter-critic/internal/gwerrors"
	"github.com/RohanAwhad/adapter-critic/internal/llm"
)

// call records one Complete invocation for assertions.
type call struct {
	model          string
	baseURL        string
	messages       []llm.ChatMessage
	requestOptions map[string]json.RawMessage
}

// fakeGateway returns pre-scripted results keyed by call order, recording
// every invocation it receives.
type fakeGateway struct {
	results []llm.UpstreamResult
	errs    []error
	calls   []call
}

func (f *fakeGateway) Complete(
	_ context.Context,
	model, baseURL string,
	messages []llm.ChatMessage,
	_ string,
	requestOptions map[string]json.RawMessage,
) (llm.UpstreamResult, error) {
	idx := len(f.calls)
	f.calls = append(f.calls, call{model: model, baseURL: baseURL, messages: messages, requestOptions: requestOptions})

	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}

	if idx < len(f.results) {
		return f.results[idx], err
	}

	return llm.UpstreamResult{}, err
}

func userMessage(content string) llm.ChatMessage {
	return llm.ChatMessage{Role: llm.RoleUser, Content: &content}
}

func TestRunDirect(t *testing.T) {
	runtime := config.RuntimeConfig{
		ServedModel: "served-direct",
		Mode:        config.ModeDirect,
		API:         config.StageTarget{Model: "gpt-x", BaseURL: "https://api.example"},
	}

	gw := &fakeGateway{
		results: []llm.UpstreamResult{
			{Content: "direct-answer", Usage: llm.TokenUsage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5}, FinishReason: "stop"},
		},
	}

	out, err := RunDirect(context.Background(), runtime, []llm.ChatMessage{userMessage("hello")}, gw, nil)
	require.NoError(t, err)

	assert.Equal(t, "direct-answer", out.FinalText)
	assert.Equal(t, 5, out.TotalUsage().TotalTokens)
	assert.Equal(t, "stop", out.FinishReason)
	assert.Nil(t, out.FinalToolCalls)
	assert.Len(t, gw.calls, 1)
}

func adapterRuntime() config.RuntimeConfig {
	return config.RuntimeConfig{
		ServedModel:       "served-adapter",
		Mode:              config.ModeAdapter,
		API:               config.StageTarget{Model: "api-model", BaseURL: "https://api.example"},
		Adapter:           &config.StageTarget{Model: "adapter-model", BaseURL: "https://adapter.example"},
		MaxAdapterRetries: 0,
	}
}

func TestRunAdapter_LGTM(t *testing.T) {
	gw := &fakeGateway{
		results: []llm.UpstreamResult{
			{Content: "Hello world", FinishReason: "stop"},
			{Content: `{"decision":"lgtm"}`},
		},
	}

	out, err := RunAdapter(context.Background(), adapterRuntime(), []llm.ChatMessage{userMessage("hi")}, gw, nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello world", out.FinalText)
	assert.Equal(t, "stop", out.FinishReason)
	assert.NotContains(t, out.Intermediate, "adapter_rejection_reason")
}

func TestRunAdapter_PatchContent(t *testing.T) {
	gw := &fakeGateway{
		results: []llm.UpstreamResult{
			{Content: "Hello wrld", FinishReason: "stop"},
			{Content: `{"decision":"patch","patches":[{"op":"replace","path":"/content","value":"Hello world"}]}`},
		},
	}

	out, err := RunAdapter(context.Background(), adapterRuntime(), []llm.ChatMessage{userMessage("hi")}, gw, nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello world", out.FinalText)
}

func TestRunAdapter_EditsToolCallArguments(t *testing.T) {
	draftToolCalls := []llm.ToolCall{
		{ID: "call_cancel", Type: "function", Function: llm.ToolCallFunc{Name: "cancel_reservation", Arguments: `{"reservation_id":"WRONG"}`}},
	}

	gw := &fakeGateway{
		results: []llm.UpstreamResult{
			{ToolCalls: draftToolCalls, FinishReason: "tool_calls"},
			{Content: `{"decision":"patch","patches":[{"op":"replace","path":"/tool_calls/0/function/arguments","value":"{\"reservation_id\":\"EHGLP3\"}"}]}`},
		},
	}

	toolChoice := json.RawMessage(`"auto"`)
	requestOptions := map[string]json.RawMessage{"tool_choice": toolChoice}

	out, err := RunAdapter(context.Background(), adapterRuntime(), []llm.ChatMessage{userMessage("cancel it")}, gw, requestOptions)
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", out.FinishReason)
	require.Len(t, out.FinalToolCalls, 1)
	assert.Equal(t, `{"reservation_id":"EHGLP3"}`, out.FinalToolCalls[0].Function.Arguments)
}

func TestRunAdapter_RequiredCallFallback(t *testing.T) {
	draftToolCalls := []llm.ToolCall{
		{ID: "call_cancel", Type: "function", Function: llm.ToolCallFunc{Name: "cancel_reservation", Arguments: `{"reservation_id":"WRONG"}`}},
	}

	// Adapter drops tool_calls and returns plain text on every attempt.
	dropCallOutput := `{"decision":"patch","patches":[{"op":"replace","path":"/content","value":"done"},{"op":"replace","path":"/tool_calls","value":null}]}`

	gw := &fakeGateway{
		results: []llm.UpstreamResult{
			{ToolCalls: draftToolCalls, FinishReason: "tool_calls"},
			{Content: dropCallOutput},
			{Content: dropCallOutput},
		},
	}

	runtime := adapterRuntime()
	runtime.MaxAdapterRetries = 1

	requestOptions := map[string]json.RawMessage{"tool_choice": json.RawMessage(`"required"`)}

	out, err := RunAdapter(context.Background(), runtime, []llm.ChatMessage{userMessage("cancel it")}, gw, requestOptions)
	require.NoError(t, err)

	require.Len(t, out.FinalToolCalls, 1)
	assert.Equal(t, "call_cancel", out.FinalToolCalls[0].ID)
	assert.Contains(t, out.Intermediate, "adapter_rejection_reason")
	assert.Len(t, gw.calls, 3) // api_draft + 2 adapter attempts
}

func criticRuntime() config.RuntimeConfig {
	return config.RuntimeConfig{
		ServedModel: "served-critic",
		Mode:        config.ModeCritic,
		API:         config.StageTarget{Model: "api-model", BaseURL: "https://api.example"},
		Critic:      &config.StageTarget{Model: "critic-model", BaseURL: "https://critic.example"},
	}
}

func TestRunCritic_FinalPassFallback(t *testing.T) {
	draftToolCalls := []llm.ToolCall{
		{ID: "call_1", Type: "function", Function: llm.ToolCallFunc{Name: "do_thing", Arguments: `{}`}},
	}

	formatErr := &gwerrors.UpstreamResponseFormatError{Reason: "bad shape", Model: "api-model", BaseURL: "https://api.example"}

	gw := &fakeGateway{
		results: []llm.UpstreamResult{
			{ToolCalls: draftToolCalls, FinishReason: "tool_calls"},
			{Content: "looks fine, but consider X"},
			{},
			{},
		},
		errs: []error{nil, nil, formatErr, formatErr},
	}

	out, err := RunCritic(context.Background(), criticRuntime(), []llm.ChatMessage{userMessage("go")}, gw, nil)
	require.NoError(t, err)

	require.Len(t, out.FinalToolCalls, 1)
	assert.Equal(t, "call_1", out.FinalToolCalls[0].ID)
	assert.Contains(t, out.Intermediate["final_fallback_reason"], "api_final failed after 2 attempts")
	assert.Equal(t, llm.TokenUsage{}, out.StageUsage["api_final"])
}

func TestRunAdvisor_InjectsGuidance(t *testing.T) {
	runtime := config.RuntimeConfig{
		ServedModel: "served-advisor",
		Mode:        config.ModeAdvisor,
		API:         config.StageTarget{Model: "api-model", BaseURL: "https://api.example"},
		Advisor:     &config.StageTarget{Model: "advisor-model", BaseURL: "https://advisor.example"},
	}

	systemContent := "You are a helpful assistant."
	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: &systemContent},
		userMessage("cancel reservation EHGLP3"),
	}

	gw := &fakeGateway{
		results: []llm.UpstreamResult{
			{Content: "Check the reservation id format first."},
			{Content: "Cancelled."},
		},
	}

	requestOptions := map[string]json.RawMessage{"temperature": json.RawMessage(`0.2`)}

	out, err := RunAdvisor(context.Background(), runtime, messages, gw, requestOptions)
	require.NoError(t, err)

	assert.Equal(t, "Cancelled.", out.FinalText)

	require.Len(t, gw.calls, 2)
	assert.Nil(t, gw.calls[0].requestOptions)
	assert.Equal(t, requestOptions, gw.calls[1].requestOptions)

	lastAPIMessage := gw.calls[1].messages[len(gw.calls[1].messages)-1]
	assert.Contains(t, lastAPIMessage.ContentString(), "[ADVISOR_GUIDANCE]")
	assert.Contains(t, lastAPIMessage.ContentString(), "Check the reservation id format first.")
}

func TestDispatch_UnknownMode(t *testing.T) {
	runtime := config.RuntimeConfig{Mode: config.Mode("bogus")}

	_, err := Dispatch(context.Background(), runtime, nil, &fakeGateway{}, nil)
	require.Error(t, err)
}

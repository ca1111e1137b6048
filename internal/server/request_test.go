package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest_ValidBasic(t *testing.T) {
	body := []byte(`{
		"model": "served-direct",
		"messages": [{"role":"user","content":"hi"}],
		"temperature": 0.2
	}`)

	parsed, err := ParseRequest(body)
	require.NoError(t, err)

	assert.Equal(t, "served-direct", parsed.Request.Model)
	require.Len(t, parsed.Request.Messages, 1)
	assert.Equal(t, "hi", parsed.Request.Messages[0].ContentString())

	_, hasModel := parsed.RequestOptions["model"]
	_, hasMessages := parsed.RequestOptions["messages"]
	assert.False(t, hasModel)
	assert.False(t, hasMessages)

	assert.Contains(t, parsed.RequestOptions, "temperature")
}

func TestParseRequest_MissingModelRejected(t *testing.T) {
	_, err := ParseRequest([]byte(`{"messages":[{"role":"user","content":"hi"}]}`))
	assert.Error(t, err)
}

func TestParseRequest_MissingMessagesRejected(t *testing.T) {
	_, err := ParseRequest([]byte(`{"model":"served-direct"}`))
	assert.Error(t, err)
}

func TestParseRequest_NotJSONRejected(t *testing.T) {
	_, err := ParseRequest([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseRequest_TopLevelOverrideWinsOverExtraBody(t *testing.T) {
	body := []byte(`{
		"model": "served-direct",
		"messages": [{"role":"user","content":"hi"}],
		"x_adapter_critic": {"mode": "adapter"},
		"extra_body": {"x_adapter_critic": {"mode": "critic"}}
	}`)

	parsed, err := ParseRequest(body)
	require.NoError(t, err)
	require.NotNil(t, parsed.Overrides.Mode)
	assert.Equal(t, "adapter", string(*parsed.Overrides.Mode))
}

func TestParseRequest_FallsBackToExtraBodyOverride(t *testing.T) {
	body := []byte(`{
		"model": "served-direct",
		"messages": [{"role":"user","content":"hi"}],
		"extra_body": {"x_adapter_critic": {"mode": "critic"}}
	}`)

	parsed, err := ParseRequest(body)
	require.NoError(t, err)
	require.NotNil(t, parsed.Overrides.Mode)
	assert.Equal(t, "critic", string(*parsed.Overrides.Mode))
}

func TestParseRequest_UnknownOverrideFieldRejected(t *testing.T) {
	body := []byte(`{
		"model": "served-direct",
		"messages": [{"role":"user","content":"hi"}],
		"x_adapter_critic": {"not_a_real_field": true}
	}`)

	_, err := ParseRequest(body)
	assert.Error(t, err)
}

func TestParseRequest_NegativeMaxAdapterRetriesRejected(t *testing.T) {
	body := []byte(`{
		"model": "served-direct",
		"messages": [{"role":"user","content":"hi"}],
		"x_adapter_critic": {"max_adapter_retries": -1}
	}`)

	_, err := ParseRequest(body)
	assert.Error(t, err)
}

func TestParseRequest_OverrideKeyExcludedFromRequestOptions(t *testing.T) {
	body := []byte(`{
		"model": "served-direct",
		"messages": [{"role":"user","content":"hi"}],
		"x_adapter_critic": {"mode": "direct"}
	}`)

	parsed, err := ParseRequest(body)
	require.NoError(t, err)

	_, ok := parsed.RequestOptions["x_adapter_critic"]
	assert.False(t, ok)
}

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterResponseFormat_Shape(t *testing.T) {
	format := AdapterResponseFormat()

	assert.Equal(t, "json_schema", format.Type)
	assert.Equal(t, "adapter_patch_response", format.JSONSchema.Name)
	assert.True(t, format.JSONSchema.Strict)
	require.NotNil(t, format.JSONSchema.Schema)
}

func TestAdapterResponseFormat_SameNameEachCall(t *testing.T) {
	first := AdapterResponseFormat()
	second := AdapterResponseFormat()

	assert.Equal(t, first.JSONSchema.Name, second.JSONSchema.Name)
}

package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// adapterPatchSchemaJSON is the literal JSON Schema for the adapter's
// structured output (spec §6 "Built-in adapter JSON schema"). It is parsed
// into a typed jsonschema.Schema once at package init so the gateway can
// marshal a canonical, validated schema into response_format rather than
// forwarding a hand-maintained map.
const adapterPatchSchemaJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "decision": {"type": "string", "enum": ["lgtm", "patch"]},
    "patches": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "op": {"type": "string", "enum": ["replace"]},
          "path": {"type": "string"},
          "value": {}
        },
        "required": ["op", "path", "value"]
      }
    }
  },
  "required": ["decision"]
}`

var adapterPatchSchema = mustParseSchema(adapterPatchSchemaJSON)

func mustParseSchema(raw string) *jsonschema.Schema {
	var schema jsonschema.Schema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		panic(fmt.Sprintf("prompt: invalid adapter patch schema: %v", err))
	}

	return &schema
}

// ResponseFormat is the `response_format` object forced on every adapter
// stage call: a strict JSON-schema response shape matching the adapter
// patch dialect (spec §4.5, §6).
type ResponseFormat struct {
	Type       string         `json:"type"`
	JSONSchema JSONSchemaSpec `json:"json_schema"`
}

// JSONSchemaSpec is the inner `json_schema` object of a response_format.
type JSONSchemaSpec struct {
	Name   string              `json:"name"`
	Strict bool                `json:"strict"`
	Schema *jsonschema.Schema  `json:"schema"`
}

// AdapterResponseFormat builds the response_format object forced on every
// adapter stage call.
func AdapterResponseFormat() ResponseFormat {
	return ResponseFormat{
		Type: "json_schema",
		JSONSchema: JSONSchemaSpec{
			Name:   "adapter_patch_response",
			Strict: true,
			Schema: adapterPatchSchema,
		},
	}
}

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileSchema = map[string]any{
	"type":     "object",
	"required": []any{"name", "age"},
	"properties": map[string]any{
		"name": map[string]any{"type": "string"},
		"age":  map[string]any{"type": "number"},
	},
}

func TestValidateJSON(t *testing.T) {
	ok := ValidateJSON(profileSchema, []byte(`{"name":"Ada","age":27}`))
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)

	missing := ValidateJSON(profileSchema, []byte(`{"name":"Ada"}`))
	assert.False(t, missing.Valid)
	require.NotEmpty(t, missing.Errors)

	wrongType := ValidateJSON(profileSchema, []byte(`{"name":"Ada","age":"old"}`))
	assert.False(t, wrongType.Valid)
	assert.Contains(t, wrongType.Errors[0], "/age")

	notJSON := ValidateJSON(profileSchema, []byte(`nope`))
	assert.False(t, notJSON.Valid)
}

func TestCallOptions_ResponseSchema(t *testing.T) {
	_, _, ok := CallOptions{}.ResponseSchema()
	assert.False(t, ok)

	name, schema, ok := CallOptions{OptResponseFormat: "json"}.ResponseSchema()
	require.True(t, ok)
	assert.Equal(t, "auto_schema", name)
	assert.Equal(t, "object", schema["type"])

	name, schema, ok = CallOptions{
		OptResponseFormat: "json",
		OptJSONSchema:     map[string]any{"name": "user_profile", "schema": profileSchema},
	}.ResponseSchema()
	require.True(t, ok)
	assert.Equal(t, "user_profile", name)
	assert.Equal(t, profileSchema, schema)
}

func TestCallOptions_ToolSpecs(t *testing.T) {
	opts := CallOptions{OptTools: []any{
		map[string]any{"name": "echo", "description": "Echo", "parameters": map[string]any{"type": "object"}},
		map[string]any{"name": "legacy", "schema": map[string]any{"type": "object"}},
		map[string]any{"description": "nameless"},
	}}
	specs := opts.ToolSpecs(OptTools)
	require.Len(t, specs, 2)
	assert.Equal(t, "echo", specs[0].Name)
	assert.Equal(t, "object", specs[1].Schema["type"])
}

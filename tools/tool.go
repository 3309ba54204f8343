// Package tools holds the tool contract, the synchronized tool registry and
// the built-in tools a model can call during a tool-augmented chat.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/invopop/jsonschema"
)

// Tool is a named, schema-described callable the model may request.
// Execute returns the textual result fed back into the conversation.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Spec returns the provider-facing description of t.
func Spec(t Tool) llm.ToolSpec {
	return llm.ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()}
}

// FuncTool adapts a plain function to the Tool interface.
type FuncTool struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

var _ Tool = (*FuncTool)(nil)

// NewFunc creates a tool from a function. A nil schema means an object with
// no declared properties.
func NewFunc(name, description string, schema map[string]any, fn func(ctx context.Context, args map[string]any) (string, error)) *FuncTool {
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FuncTool{name: name, description: description, schema: schema, fn: fn}
}

func (t *FuncTool) Name() string           { return t.name }
func (t *FuncTool) Description() string    { return t.description }
func (t *FuncTool) Schema() map[string]any { return t.schema }

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}

// NewTypedTool creates a tool whose arguments decode into T. The argument
// schema is reflected from T: fields without omitempty are required and
// jsonschema_description tags become property descriptions. A non-string
// result is rendered as JSON.
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) *FuncTool {
	schema := ReflectSchema[T]()
	return NewFunc(name, description, schema, func(ctx context.Context, raw map[string]any) (string, error) {
		var args T
		data, err := json.Marshal(raw)
		if err != nil {
			return "", fmt.Errorf("failed to encode arguments: %w", err)
		}
		if err := json.Unmarshal(data, &args); err != nil {
			return "", fmt.Errorf("failed to unmarshal arguments: %w", err)
		}
		result, err := fn(ctx, args)
		if err != nil {
			return "", err
		}
		return ResultString(result)
	})
}

// ReflectSchema returns the inline JSON schema of T as a map.
func ReflectSchema[T any]() map[string]any {
	var zero T
	// ExpandedStruct looks the root up by type name, which anonymous structs lack.
	named := reflect.TypeOf(zero) != nil && reflect.TypeOf(zero).Name() != ""
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: named}
	data, err := json.Marshal(r.Reflect(&zero))
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(schema, "$schema")
	delete(schema, "$id")
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]any{}
	}
	return schema
}

// ResultString renders a tool result for the transcript: strings pass
// through, nil becomes "", everything else is JSON encoded.
func ResultString(result any) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}

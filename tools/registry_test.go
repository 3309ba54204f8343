package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type greetArgs struct {
	Name  string `json:"name" jsonschema_description:"Who to greet"`
	Times int    `json:"times,omitempty"`
}

func greetTool() *FuncTool {
	return NewTypedTool("greet", "Greets someone.", func(_ context.Context, args greetArgs) (any, error) {
		if args.Times == 0 {
			args.Times = 1
		}
		return map[string]any{"greeting": "hello " + args.Name, "times": args.Times}, nil
	})
}

func TestReflectSchema(t *testing.T) {
	schema := greetTool().Schema()

	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "name")
	assert.Equal(t, "Who to greet", props["name"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["times"].(map[string]any)["type"])
	assert.Equal(t, []any{"name"}, schema["required"])
}

func TestReflectSchema_EmptyStruct(t *testing.T) {
	schema := ReflectSchema[struct{}]()
	assert.Equal(t, map[string]any{}, schema["properties"])
}

func TestReflectSchema_AnonymousStruct(t *testing.T) {
	schema := ReflectSchema[struct {
		Path string `json:"path" jsonschema:"description=File to read"`
	}]()
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, props, "path")
	assert.Equal(t, "string", props["path"].(map[string]any)["type"])
	assert.Equal(t, []any{"path"}, schema["required"])
}

func TestNewTypedTool_AnonymousArgs(t *testing.T) {
	tool := NewTypedTool("upper", "Upper-cases text.", func(_ context.Context, args struct {
		Text string `json:"text"`
	}) (any, error) {
		return strings.ToUpper(args.Text), nil
	})
	assert.Contains(t, tool.Schema()["properties"], "text")

	out, err := tool.Execute(context.Background(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "HI", out)
}

func TestTypedTool_Execute(t *testing.T) {
	out, err := greetTool().Execute(context.Background(), map[string]any{"name": "ada", "times": 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"greeting":"hello ada","times":2}`, out)

	_, err = greetTool().Execute(context.Background(), map[string]any{"name": 42})
	assert.ErrorContains(t, err, "failed to unmarshal arguments")
}

func TestResultString(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "plain", "plain"},
		{"bytes", []byte("raw"), "raw"},
		{"number", 3, "3"},
		{"map", map[string]int{"a": 1}, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResultString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_RegisterLastWins(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(NewFunc("echo", "first", nil, func(context.Context, map[string]any) (string, error) { return "first", nil }))
	reg.Register(NewFunc("echo", "second", nil, func(context.Context, map[string]any) (string, error) { return "second", nil }))

	assert.Equal(t, 1, reg.Len())
	out, err := reg.Execute(context.Background(), "echo", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", out)

	reg.Unregister("echo")
	reg.Unregister("echo")
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_SpecsSorted(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg.Register(NewFunc(name, name+" tool", nil, nil))
	}
	specs := reg.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "alpha", specs[0].Name)
	assert.Equal(t, "zeta", specs[2].Name)
	assert.Equal(t, "object", specs[0].Schema["type"])
}

func TestRegistry_UnknownTool(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	_, err := reg.Execute(context.Background(), "missing", nil)
	assert.True(t, errors.Is(err, ErrUnknownTool))
}

func TestRegistry_ArgumentValidation(t *testing.T) {
	called := false
	tool := NewTypedTool("greet", "", func(_ context.Context, args greetArgs) (any, error) {
		called = true
		return "hi " + args.Name, nil
	})

	strict := NewRegistry(zerolog.Nop(), WithArgumentValidation())
	strict.Register(tool)
	_, err := strict.Execute(context.Background(), "greet", map[string]any{"times": 1})
	assert.ErrorContains(t, err, "invalid arguments")
	assert.False(t, called)

	out, err := strict.Execute(context.Background(), "greet", map[string]any{"name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, "hi bob", out)

	lenient := NewRegistry(zerolog.Nop())
	lenient.Register(tool)
	_, err = lenient.Execute(context.Background(), "greet", map[string]any{"times": 1})
	assert.NoError(t, err)
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("tool_%d", i)
			reg.Register(NewFunc(name, "", nil, func(context.Context, map[string]any) (string, error) { return name, nil }))
		}()
		go func() {
			defer wg.Done()
			_ = reg.Specs()
			_, _ = reg.Execute(context.Background(), "tool_0", nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, reg.Len())
}

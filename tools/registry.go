package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// maxLoggedResult bounds how much of a tool result is written to the log.
const maxLoggedResult = 500

// ErrUnknownTool is returned by Execute for names that are not registered.
var ErrUnknownTool = fmt.Errorf("unknown tool")

// Registry maps tool names to tools. Reads take the shared lock and
// registration is serialized; the last registration for a name wins.
type Registry struct {
	mu           sync.RWMutex
	tools        map[string]Tool
	validateArgs bool
	logger       zerolog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithArgumentValidation checks call arguments against the tool schema
// before execution. Invalid arguments fail the call without running it.
func WithArgumentValidation() RegistryOption {
	return func(r *Registry) { r.validateArgs = true }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger, opts ...RegistryOption) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	logger.Debug().Msg("Creating new tool Registry")
	r := &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		r.logger.Debug().Str("name", t.Name()).Msg("Replacing tool")
	} else {
		r.logger.Debug().Str("name", t.Name()).Msg("Registering tool")
	}
	r.tools[t.Name()] = t
}

// Unregister removes a tool. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// All returns the registered tools sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	out := lo.Values(r.tools)
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Specs returns the provider-facing specs of all tools, sorted by name.
func (r *Registry) Specs() []llm.ToolSpec {
	return lo.Map(r.All(), func(t Tool, _ int) llm.ToolSpec { return Spec(t) })
}

// Execute runs the named tool. The tool runs outside the registry lock.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		r.logger.Error().Str("tool", name).Msg("Unknown tool requested")
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	if r.logger.GetLevel() <= zerolog.DebugLevel {
		if pretty, err := json.MarshalIndent(args, "", "  "); err == nil {
			r.logger.Debug().Str("tool", name).Str("args", string(pretty)).Msg("Tool called with arguments")
		}
	}

	if r.validateArgs {
		if v := llm.ValidateAgainst(t.Schema(), args); !v.Valid {
			r.logger.Warn().Str("tool", name).Strs("errors", v.Errors).Msg("Tool arguments failed validation")
			return "", fmt.Errorf("invalid arguments: %v", v.Errors)
		}
	}

	r.logger.Info().Str("tool", name).Msg("Executing tool")
	result, err := t.Execute(ctx, args)
	if err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Msg("Tool returned error")
		return "", err
	}

	logged := result
	if len(logged) > maxLoggedResult {
		logged = logged[:maxLoggedResult] + "... (truncated)"
	}
	r.logger.Debug().Str("tool", name).Str("result", logged).Msg("Tool returned result")
	return result, nil
}

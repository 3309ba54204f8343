package tools

import (
	"context"
	"fmt"

	"github.com/aschepis/backscratcher/bridge/mcp"
)

// MCPServer is the part of an MCP client the registry needs.
type MCPServer interface {
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// MCPTool exposes one tool of an MCP server. Its name is the safe form of the
// server-side name (dots replaced), and calls are sent under the original name.
type MCPTool struct {
	server MCPServer
	def    mcp.ToolDefinition
	name   string
}

var _ Tool = (*MCPTool)(nil)

func (t *MCPTool) Name() string           { return t.name }
func (t *MCPTool) Description() string    { return t.def.Description }
func (t *MCPTool) Schema() map[string]any { return t.def.InputSchema }

// Execute forwards the call to the MCP server.
func (t *MCPTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.server.CallTool(ctx, t.def.Name, args)
}

// RegisterMCPTools lists the tools of server and registers each of them,
// optionally under prefix + "_". It returns the registered names.
func (r *Registry) RegisterMCPTools(ctx context.Context, server MCPServer, prefix string) ([]string, error) {
	defs, err := server.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list MCP tools: %w", err)
	}
	adapter := mcp.NewNameAdapter()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		name := adapter.GetSafeName(def.Name)
		if prefix != "" {
			name = prefix + "_" + name
		}
		r.Register(&MCPTool{server: server, def: def, name: name})
		names = append(names, name)
	}
	r.logger.Info().Int("count", len(names)).Str("prefix", prefix).Msg("Registered MCP tools")
	return names, nil
}

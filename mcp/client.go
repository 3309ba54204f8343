package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ClientName is reported to MCP servers during initialization.
const ClientName = "aibridge"

// ClientVersion is reported to MCP servers during initialization.
var ClientVersion = "1.0.0"

// ErrToolFailed is returned by CallTool when the server marks the result as an error.
var ErrToolFailed = errors.New("mcp tool reported an error")

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Client is a started connection to one MCP server. The transport (stdio,
// streamable HTTP or in-process) is chosen by the constructor.
type Client struct {
	client  *client.Client
	label   string
	started bool
	logger  zerolog.Logger
}

func newClient(c *client.Client, label string, logger zerolog.Logger) *Client {
	return &Client{
		client: c,
		label:  label,
		logger: logger.With().Str("component", "mcpClient").Str("server", label).Logger(),
	}
}

// Label identifies the server in logs: the command for stdio, the URL for HTTP.
func (c *Client) Label() string {
	return c.label
}

// Start starts the transport and performs the MCP initialize handshake.
// Calling Start on a started client is a no-op.
func (c *Client) Start(ctx context.Context) error {
	if c.started {
		return nil
	}
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: ClientVersion,
			},
		},
	}
	result, err := c.client.Initialize(ctx, initReq)
	if err != nil {
		return fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	c.started = true
	c.logger.Info().
		Str("server_name", result.ServerInfo.Name).
		Str("protocol", result.ProtocolVersion).
		Msg("MCP client initialized")
	return nil
}

// ListTools returns all tools available from the MCP server.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	c.logger.Debug().Int("tool_count", len(result.Tools)).Msg("Received tools from MCP server")

	return lo.Map(result.Tools, func(tool mcp.Tool, _ int) ToolDefinition {
		return ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema(tool.InputSchema),
		}
	}), nil
}

func inputSchema(s mcp.ToolInputSchema) map[string]any {
	schema := map[string]any{"type": s.Type}
	if s.Type == "" {
		schema["type"] = "object"
	}
	if s.Properties != nil {
		schema["properties"] = s.Properties
	} else {
		schema["properties"] = map[string]any{}
	}
	if len(s.Required) > 0 {
		schema["required"] = s.Required
	}
	if len(s.Defs) > 0 {
		schema["$defs"] = s.Defs
	}
	return schema
}

// CallTool invokes a tool and returns its text content joined by newlines.
// A result flagged as an error is returned as an error wrapping ErrToolFailed.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}

	texts := lo.FilterMap(result.Content, func(content mcp.Content, _ int) (string, bool) {
		if text, ok := mcp.AsTextContent(content); ok {
			return text.Text, true
		}
		text := mcp.GetTextFromContent(content)
		return text, text != ""
	})
	text := strings.Join(texts, "\n")

	if result.IsError {
		c.logger.Warn().Str("tool", name).Str("message", text).Msg("MCP tool returned an error result")
		return "", fmt.Errorf("%w: %s", ErrToolFailed, text)
	}
	return text, nil
}

// Close closes the connection to the MCP server.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

package mcp

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// NewStdioClient launches command as a subprocess speaking MCP over stdio.
// A command containing spaces is split, and its tail is prepended to args.
func NewStdioClient(logger zerolog.Logger, command string, args, env []string) (*Client, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("command is required for STDIO MCP client")
	}
	cmd := parts[0]
	cmdArgs := append(append([]string{}, parts[1:]...), args...)

	logger.Debug().Str("command", cmd).Strs("args", cmdArgs).Msg("Launching STDIO MCP server")
	c, err := client.NewStdioMCPClient(cmd, env, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}
	return newClient(c, cmd, logger), nil
}

// NewHTTPClient connects to a streamable-HTTP MCP endpoint. headers are sent
// with every request (for example an Authorization bearer token).
func NewHTTPClient(logger zerolog.Logger, baseURL string, headers map[string]string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("URL is required for HTTP MCP client")
	}
	var opts []transport.StreamableHTTPCOption
	if len(headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(headers))
	}
	c, err := client.NewStreamableHttpClient(baseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}
	return newClient(c, baseURL, logger), nil
}

// NewInProcessClient connects directly to an MCP server running in this process.
func NewInProcessClient(logger zerolog.Logger, srv *server.MCPServer) (*Client, error) {
	c, err := client.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-process MCP client: %w", err)
	}
	return newClient(c, "in-process", logger), nil
}

package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/bridge/transport"
)

// RemoteTool delegates execution to an HTTP endpoint. It is not MCP; the
// server contract is:
//
//	POST {BaseURL}/tools/{name}
//	Body:  { "args": { ... } }
//	Response: arbitrary JSON, returned as-is to the model.
type RemoteTool struct {
	name        string
	description string
	schema      map[string]any
	baseURL     string
	authToken   string
	http        *transport.Client
}

var _ Tool = (*RemoteTool)(nil)

// NewRemoteTool creates a tool that forwards calls to baseURL. authToken, when
// set, is sent as a bearer token.
func NewRemoteTool(client *transport.Client, baseURL, authToken, name, description string, schema map[string]any) *RemoteTool {
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &RemoteTool{
		name:        name,
		description: description,
		schema:      schema,
		baseURL:     strings.TrimRight(baseURL, "/"),
		authToken:   authToken,
		http:        client,
	}
}

func (t *RemoteTool) Name() string           { return t.name }
func (t *RemoteTool) Description() string    { return t.description }
func (t *RemoteTool) Schema() map[string]any { return t.schema }

// Execute posts the arguments and returns the response body.
func (t *RemoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if t.baseURL == "" {
		return "", fmt.Errorf("remote tool %s: base URL is empty", t.name)
	}
	if args == nil {
		args = map[string]any{}
	}
	headers := map[string]string{}
	if t.authToken != "" {
		headers["Authorization"] = "Bearer " + t.authToken
	}
	resp, err := t.http.Do(ctx, transport.Request{
		URL:     fmt.Sprintf("%s/tools/%s", t.baseURL, url.PathEscape(t.name)),
		Headers: headers,
		Body:    map[string]any{"args": args},
	})
	if err != nil {
		return "", fmt.Errorf("remote tool %s: %w", t.name, err)
	}
	return string(resp.Raw()), nil
}

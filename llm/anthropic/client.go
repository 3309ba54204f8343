package anthropic

import (
	"context"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the Anthropic API root.
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultModel is used when no model option is given.
	DefaultModel = "claude-haiku-4-5"
	// DefaultMaxTokens is sent when no max_tokens option is given; the API requires one.
	DefaultMaxTokens = 1024
	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"
)

// Provider talks to the Anthropic Messages API. System messages are folded
// into user messages before sending.
type Provider struct {
	apiKey string
	base   string
	http   *transport.Client
	logger zerolog.Logger
}

var (
	_ llm.ChatProvider   = (*Provider)(nil)
	_ llm.ModelsProvider = (*Provider)(nil)
)

// New creates an Anthropic provider. An empty baseURL selects DefaultBaseURL;
// a base URL ending in /v1/messages is accepted too.
func New(apiKey, baseURL string, client *transport.Client, logger zerolog.Logger) *Provider {
	base := strings.TrimRight(baseURL, "/")
	base = strings.TrimSuffix(base, "/v1/messages")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Provider{
		apiKey: apiKey,
		base:   base,
		http:   client,
		logger: logger.With().Str("component", "anthropic").Logger(),
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	return llm.ProviderAnthropic
}

// SupportsStreaming implements llm.ChatProvider.
func (p *Provider) SupportsStreaming() bool {
	return true
}

func (p *Provider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": APIVersion,
	}
}

// Chat implements llm.ChatProvider.
func (p *Provider) Chat(ctx context.Context, msgs []llm.Message, opts llm.CallOptions) (llm.RawResponse, error) {
	payload, err := buildPayload(msgs, opts, false)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(ctx, transport.Request{URL: p.base + "/v1/messages", Headers: p.headers(), Body: payload})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), "chat", err)
	}
	raw, err := resp.RawJSON()
	if err != nil {
		return nil, llm.NewDecodeError(p.Name(), "chat", err)
	}
	return raw, nil
}

// ListModels implements llm.ModelsProvider.
func (p *Provider) ListModels(ctx context.Context) (llm.RawResponse, error) {
	return p.get(ctx, "listModels", p.base+"/v1/models")
}

// GetModel implements llm.ModelsProvider.
func (p *Provider) GetModel(ctx context.Context, id string) (llm.RawResponse, error) {
	return p.get(ctx, "getModel", p.base+"/v1/models/"+url.PathEscape(id))
}

func (p *Provider) get(ctx context.Context, op, target string) (llm.RawResponse, error) {
	resp, err := p.http.Do(ctx, transport.Request{Method: "GET", URL: target, Headers: p.headers()})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), op, err)
	}
	raw, err := resp.RawJSON()
	if err != nil {
		return nil, llm.NewDecodeError(p.Name(), op, err)
	}
	return raw, nil
}

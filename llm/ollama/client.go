package ollama

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
)

const (
	// DefaultHost is used when neither a host nor OLLAMA_HOST is set.
	DefaultHost = "http://localhost:11434"
	// TurboHost is the hosted Ollama service.
	TurboHost = "https://ollama.com"
	// DefaultModel is used when no model option is given.
	DefaultModel = "llama3.2"
	// DefaultEmbeddingModel is used by Embeddings when no model option is given.
	DefaultEmbeddingModel = "nomic-embed-text"
	// DefaultImageModel is used by GenerateImage when no model option is given.
	DefaultImageModel = "stable-diffusion"
)

// Provider talks to the Ollama HTTP API (/api/chat, /api/generate, /api/embed,
// /api/tags, /api/show). It holds no mutable state.
type Provider struct {
	name         string
	base         string
	apiKey       string
	defaultModel string
	http         *transport.Client
	logger       zerolog.Logger
}

var (
	_ llm.ChatProvider       = (*Provider)(nil)
	_ llm.EmbeddingsProvider = (*Provider)(nil)
	_ llm.ImageProvider      = (*Provider)(nil)
	_ llm.ModelsProvider     = (*Provider)(nil)
)

// New creates a provider for a local Ollama server.
// If host is empty, OLLAMA_HOST is consulted, then DefaultHost.
func New(host string, client *transport.Client, logger zerolog.Logger) (*Provider, error) {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = DefaultHost
	}
	base, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	return newProvider(llm.ProviderOllama, base.String(), "", client, logger), nil
}

// NewTurbo creates a provider for Ollama Turbo. apiKey is sent as a bearer
// token; a value already starting with "Bearer " is used as-is.
func NewTurbo(apiKey, host string, client *transport.Client, logger zerolog.Logger) (*Provider, error) {
	if host == "" {
		host = TurboHost
	}
	base, err := parseHost(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	return newProvider(llm.ProviderOllamaTurbo, base.String(), apiKey, client, logger), nil
}

func newProvider(name, base, apiKey string, client *transport.Client, logger zerolog.Logger) *Provider {
	return &Provider{
		name:         name,
		base:         strings.TrimRight(base, "/"),
		apiKey:       apiKey,
		defaultModel: DefaultModel,
		http:         client,
		logger:       logger.With().Str("component", "ollama").Str("provider", name).Logger(),
	}
}

// parseHost parses a host string into a URL.
func parseHost(host string) (*url.URL, error) {
	// If host doesn't have a scheme, add http://
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	return p.name
}

// SupportsStreaming implements llm.ChatProvider.
func (p *Provider) SupportsStreaming() bool {
	return true
}

// BaseURL returns the server root the provider targets.
func (p *Provider) BaseURL() string {
	return p.base
}

func (p *Provider) headers() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	value := p.apiKey
	if !strings.HasPrefix(strings.ToLower(value), "bearer ") {
		value = "Bearer " + value
	}
	return map[string]string{"Authorization": value}
}

func (p *Provider) model(opts llm.CallOptions) string {
	return opts.StringOr(llm.OptModel, p.defaultModel)
}

func (p *Provider) post(ctx context.Context, op, path string, body any) (llm.RawResponse, error) {
	resp, err := p.http.Do(ctx, transport.Request{URL: p.base + path, Headers: p.headers(), Body: body})
	if err != nil {
		return nil, llm.NewTransportError(p.name, op, err)
	}
	raw, err := resp.RawJSON()
	if err != nil {
		return nil, llm.NewDecodeError(p.name, op, err)
	}
	return raw, nil
}

// ListModels implements llm.ModelsProvider using /api/tags.
func (p *Provider) ListModels(ctx context.Context) (llm.RawResponse, error) {
	resp, err := p.http.Do(ctx, transport.Request{Method: "GET", URL: p.base + "/api/tags", Headers: p.headers()})
	if err != nil {
		return nil, llm.NewTransportError(p.name, "listModels", err)
	}
	raw, err := resp.RawJSON()
	if err != nil {
		return nil, llm.NewDecodeError(p.name, "listModels", err)
	}
	return raw, nil
}

// GetModel implements llm.ModelsProvider using /api/show.
func (p *Provider) GetModel(ctx context.Context, id string) (llm.RawResponse, error) {
	return p.post(ctx, "getModel", "/api/show", map[string]string{"model": id})
}

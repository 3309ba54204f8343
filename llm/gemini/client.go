// Package gemini implements the Google Gemini generateContent API.
package gemini

import (
	"context"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseURL is the Generative Language API root.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is used when no model option is given.
	DefaultModel = "gemini-2.0-flash"
	// DefaultEmbeddingModel is used by Embeddings when no model option is given.
	DefaultEmbeddingModel = "text-embedding-004"
)

// Provider talks to the Gemini REST API. The key is sent in the
// x-goog-api-key header unless KeyInQuery is set.
type Provider struct {
	apiKey     string
	base       string
	keyInQuery bool
	http       *transport.Client
	logger     zerolog.Logger
}

var (
	_ llm.ChatProvider       = (*Provider)(nil)
	_ llm.EmbeddingsProvider = (*Provider)(nil)
	_ llm.ModelsProvider     = (*Provider)(nil)
)

// Option configures a Provider.
type Option func(*Provider)

// WithKeyInQuery sends the API key as the ?key= query parameter.
func WithKeyInQuery() Option {
	return func(p *Provider) { p.keyInQuery = true }
}

// New creates a Gemini provider. An empty baseURL selects DefaultBaseURL.
// A full model endpoint (".../models/<id>:generateContent") is reduced to
// its API root.
func New(apiKey, baseURL string, client *transport.Client, logger zerolog.Logger, opts ...Option) *Provider {
	base := strings.TrimRight(baseURL, "/")
	if i := strings.Index(base, "/models/"); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		base = DefaultBaseURL
	}
	p := &Provider{
		apiKey: apiKey,
		base:   base,
		http:   client,
		logger: logger.With().Str("component", "gemini").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	return llm.ProviderGemini
}

// SupportsStreaming implements llm.ChatProvider.
func (p *Provider) SupportsStreaming() bool {
	return true
}

// modelPath turns "gemini-2.0-flash" or "models/gemini-2.0-flash" into
// "models/gemini-2.0-flash".
func modelPath(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

// endpoint builds a URL under the API root, adding the key to the query
// when configured.
func (p *Provider) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if p.keyInQuery {
		query.Set("key", p.apiKey)
	}
	target := p.base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return target
}

func (p *Provider) headers() map[string]string {
	if p.keyInQuery {
		return nil
	}
	return map[string]string{"x-goog-api-key": p.apiKey}
}

func (p *Provider) post(ctx context.Context, op, target string, body any) (llm.RawResponse, error) {
	resp, err := p.http.Do(ctx, transport.Request{URL: target, Headers: p.headers(), Body: body})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), op, err)
	}
	raw, err := resp.RawJSON()
	if err != nil {
		return nil, llm.NewDecodeError(p.Name(), op, err)
	}
	return raw, nil
}

// ListModels implements llm.ModelsProvider.
func (p *Provider) ListModels(ctx context.Context) (llm.RawResponse, error) {
	return p.get(ctx, "listModels", p.endpoint("models", nil))
}

// GetModel implements llm.ModelsProvider.
func (p *Provider) GetModel(ctx context.Context, id string) (llm.RawResponse, error) {
	return p.get(ctx, "getModel", p.endpoint(modelPath(id), nil))
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

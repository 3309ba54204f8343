package openai

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// DefaultBaseURL is the official OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when no model option is given.
	DefaultModel = "gpt-4o-mini"

	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	MistralBaseURL    = "https://api.mistral.ai/v1"
	GrokBaseURL       = "https://api.x.ai/v1"

	OpenRouterDefaultModel = "openai/gpt-4o-mini"
	MistralDefaultModel    = "mistral-small-latest"
	GrokDefaultModel       = "grok-3-mini"
)

var versionSuffix = regexp.MustCompile(`/v\d+(?:$|/)`)

// Paths maps each operation to a path appended to the base URL.
type Paths struct {
	Chat       string `yaml:"chat" json:"chat"`
	Responses  string `yaml:"responses" json:"responses"`
	Embeddings string `yaml:"embeddings" json:"embeddings"`
	Image      string `yaml:"image" json:"image"`
	TTS        string `yaml:"tts" json:"tts"`
	STT        string `yaml:"stt" json:"stt"`
	Models     string `yaml:"models" json:"models"`
}

// Config describes an OpenAI-compatible endpoint.
type Config struct {
	Name         string // Reported by Name(); defaults to "openai_custom"
	APIKey       string
	BaseURL      string
	Paths        Paths
	AuthHeader   string // Defaults to Authorization
	AuthPrefix   *string // Defaults to "Bearer "; set to "" to send the bare key
	ExtraHeaders map[string]string
	DefaultModel string
	Organization string
}

// Provider talks to the OpenAI chat-completions API or any compatible server.
// It holds no mutable state and is safe for concurrent use.
type Provider struct {
	cfg    Config
	http   *transport.Client
	logger zerolog.Logger
}

var (
	_ llm.ChatProvider       = (*Provider)(nil)
	_ llm.EventStreamer      = (*Provider)(nil)
	_ llm.EmbeddingsProvider = (*Provider)(nil)
	_ llm.ImageProvider      = (*Provider)(nil)
	_ llm.AudioProvider      = (*Provider)(nil)
	_ llm.ModelsProvider     = (*Provider)(nil)
)

// New creates a provider for the official OpenAI API.
func New(apiKey string, client *transport.Client, logger zerolog.Logger) *Provider {
	return newProvider(Config{
		Name:         llm.ProviderOpenAI,
		APIKey:       apiKey,
		BaseURL:      DefaultBaseURL,
		DefaultModel: DefaultModel,
	}, client, logger)
}

// NewCompatible creates a provider for an OpenAI-compatible server. Paths not
// set in cfg default to the /v1 layout, or to the bare layout when the base
// URL already carries a version segment.
func NewCompatible(cfg Config, client *transport.Client, logger zerolog.Logger) *Provider {
	if cfg.Name == "" {
		cfg.Name = llm.ProviderOpenAICustom
	}
	return newProvider(cfg, client, logger)
}

// NewOpenRouter creates an OpenRouter provider. referer and title populate the
// attribution headers OpenRouter uses for app rankings.
func NewOpenRouter(apiKey, referer, title string, client *transport.Client, logger zerolog.Logger) *Provider {
	headers := map[string]string{}
	if referer != "" {
		headers["HTTP-Referer"] = referer
	}
	if title != "" {
		headers["X-Title"] = title
	}
	return newProvider(Config{
		Name:         llm.ProviderOpenRouter,
		APIKey:       apiKey,
		BaseURL:      OpenRouterBaseURL,
		ExtraHeaders: headers,
		DefaultModel: OpenRouterDefaultModel,
	}, client, logger)
}

// NewMistral creates a Mistral provider.
func NewMistral(apiKey string, client *transport.Client, logger zerolog.Logger) *Provider {
	return newProvider(Config{
		Name:         llm.ProviderMistral,
		APIKey:       apiKey,
		BaseURL:      MistralBaseURL,
		DefaultModel: MistralDefaultModel,
	}, client, logger)
}

// NewGrok creates an xAI Grok provider.
func NewGrok(apiKey string, client *transport.Client, logger zerolog.Logger) *Provider {
	return newProvider(Config{
		Name:         llm.ProviderGrok,
		APIKey:       apiKey,
		BaseURL:      GrokBaseURL,
		DefaultModel: GrokDefaultModel,
	}, client, logger)
}

func newProvider(cfg Config, client *transport.Client, logger zerolog.Logger) *Provider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.AuthPrefix == nil {
		bearer := "Bearer "
		cfg.AuthPrefix = &bearer
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	cfg.Paths = resolvePaths(cfg.BaseURL, cfg.Paths)

	return &Provider{
		cfg:    cfg,
		http:   client,
		logger: logger.With().Str("component", "openai").Str("provider", cfg.Name).Logger(),
	}
}

// resolvePaths fills unset paths. A base URL that already ends in a version
// segment (".../v1") gets bare paths, anything else gets /v1 prefixed ones.
func resolvePaths(baseURL string, p Paths) Paths {
	prefix := "/v1"
	if versionSuffix.MatchString(baseURL) {
		prefix = ""
	}
	p.Chat = lo.CoalesceOrEmpty(p.Chat, prefix+"/chat/completions")
	p.Responses = lo.CoalesceOrEmpty(p.Responses, prefix+"/responses")
	p.Embeddings = lo.CoalesceOrEmpty(p.Embeddings, prefix+"/embeddings")
	p.Image = lo.CoalesceOrEmpty(p.Image, prefix+"/images/generations")
	p.TTS = lo.CoalesceOrEmpty(p.TTS, prefix+"/audio/speech")
	p.STT = lo.CoalesceOrEmpty(p.STT, prefix+"/audio/transcriptions")
	p.Models = lo.CoalesceOrEmpty(p.Models, prefix+"/models")
	return p
}

// Name implements llm.Provider.
func (p *Provider) Name() string {
	return p.cfg.Name
}

// SupportsStreaming implements llm.ChatProvider.
func (p *Provider) SupportsStreaming() bool {
	return true
}

// Config returns the resolved endpoint configuration.
func (p *Provider) Config() Config {
	return p.cfg
}

func (p *Provider) endpoint(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return p.cfg.BaseURL + path
}

func (p *Provider) headers() map[string]string {
	h := make(map[string]string, len(p.cfg.ExtraHeaders)+2)
	if p.cfg.APIKey != "" {
		h[p.cfg.AuthHeader] = *p.cfg.AuthPrefix + p.cfg.APIKey
	}
	if p.cfg.Organization != "" {
		h["OpenAI-Organization"] = p.cfg.Organization
	}
	for k, v := range p.cfg.ExtraHeaders {
		h[k] = v
	}
	return h
}

func (p *Provider) model(opts llm.CallOptions) string {
	return opts.StringOr(llm.OptModel, p.cfg.DefaultModel)
}

// post sends a JSON body and returns the decoded JSON response.
func (p *Provider) post(ctx context.Context, op, path string, body any) (llm.RawResponse, error) {
	resp, err := p.http.Do(ctx, transport.Request{URL: p.endpoint(path), Headers: p.headers(), Body: body})
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
	return p.get(ctx, "listModels", p.endpoint(p.cfg.Paths.Models))
}

// GetModel implements llm.ModelsProvider.
func (p *Provider) GetModel(ctx context.Context, id string) (llm.RawResponse, error) {
	return p.get(ctx, "getModel", p.endpoint(p.cfg.Paths.Models)+"/"+url.PathEscape(id))
}

func (p *Provider) get(ctx context.Context, op, target string) (llm.RawResponse, error) {
	resp, err := p.http.Do(ctx, transport.Request{Method: "GET", URL: target, Headers: p.headers()})
	if err != nil {
		return nil, llm.NewTransportError(p.Name(), op, err)
	}
	raw, err := resp.RawJSON()
	if err != nil {
		return nil, llm.NewDecodeError(p.Name(), op, fmt.Errorf("%s: %w", target, err))
	}
	return raw, nil
}

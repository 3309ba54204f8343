package bridge

import (
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/llm/anthropic"
	"github.com/aschepis/backscratcher/bridge/llm/gemini"
	"github.com/aschepis/backscratcher/bridge/llm/ollama"
	"github.com/aschepis/backscratcher/bridge/llm/openai"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Builder constructs a provider from options. It returns (nil, nil) when the
// options lack the credentials the provider needs.
type Builder func(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error)

// DefaultBuilders returns the builders for every bundled provider family,
// keyed by canonical name.
func DefaultBuilders() map[string]Builder {
	return map[string]Builder{
		llm.ProviderOpenAI:       buildOpenAI,
		llm.ProviderOpenAICustom: buildOpenAICustom,
		llm.ProviderOpenRouter:   buildOpenRouter,
		llm.ProviderMistral:      buildMistral,
		llm.ProviderGrok:         buildGrok,
		llm.ProviderOllama:       buildOllama,
		llm.ProviderOllamaTurbo:  buildOllamaTurbo,
		llm.ProviderAnthropic:    buildAnthropic,
		llm.ProviderGemini:       buildGemini,
	}
}

// customizationKeys select NewCompatible over the preset constructors.
var customizationKeys = []string{
	llm.OptEndpoint, llm.OptBaseURL, llm.OptChatEndpoint, llm.OptPaths,
	llm.OptAuthHeader, llm.OptAuthPrefix, llm.OptExtraHeaders,
}

func customized(opts llm.CallOptions) bool {
	return lo.SomeBy(customizationKeys, opts.Has)
}

// endpointOf returns the base endpoint, accepting either spelling.
func endpointOf(opts llm.CallOptions) string {
	return lo.CoalesceOrEmpty(opts.String(llm.OptBaseURL), opts.String(llm.OptEndpoint))
}

func pathsOf(opts llm.CallOptions) openai.Paths {
	m := opts.StringMap(llm.OptPaths)
	p := openai.Paths{
		Chat:       m["chat"],
		Responses:  m["responses"],
		Embeddings: m["embeddings"],
		Image:      m["image"],
		TTS:        m["tts"],
		STT:        m["stt"],
		Models:     m["models"],
	}
	if chat := opts.String(llm.OptChatEndpoint); chat != "" {
		p.Chat = chat
	}
	return p
}

// authPrefixOf distinguishes an explicit empty prefix from an unset one.
func authPrefixOf(opts llm.CallOptions) *string {
	if !opts.Has(llm.OptAuthPrefix) {
		return nil
	}
	prefix := opts.String(llm.OptAuthPrefix)
	return &prefix
}

func compatibleConfig(name, baseURL, model string, opts llm.CallOptions) openai.Config {
	return openai.Config{
		Name:         name,
		APIKey:       opts.String(llm.OptAPIKey),
		BaseURL:      lo.CoalesceOrEmpty(endpointOf(opts), baseURL),
		Paths:        pathsOf(opts),
		AuthHeader:   opts.String(llm.OptAuthHeader),
		AuthPrefix:   authPrefixOf(opts),
		ExtraHeaders: opts.StringMap(llm.OptExtraHeaders),
		DefaultModel: model,
	}
}

func buildOpenAI(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	key := opts.String(llm.OptAPIKey)
	if key == "" {
		return nil, nil
	}
	if !customized(opts) {
		return openai.New(key, client, logger), nil
	}
	cfg := compatibleConfig(llm.ProviderOpenAI, openai.DefaultBaseURL, openai.DefaultModel, opts)
	return openai.NewCompatible(cfg, client, logger), nil
}

// buildOpenAICustom needs both a key and a base URL; nothing about the
// target server can be assumed.
func buildOpenAICustom(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	if opts.String(llm.OptAPIKey) == "" || endpointOf(opts) == "" {
		return nil, nil
	}
	cfg := compatibleConfig(llm.ProviderOpenAICustom, "", openai.DefaultModel, opts)
	return openai.NewCompatible(cfg, client, logger), nil
}

func buildOpenRouter(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	key := opts.String(llm.OptAPIKey)
	if key == "" {
		return nil, nil
	}
	referer, title := opts.String(OptReferer), opts.String(OptTitle)
	if !customized(opts) {
		return openai.NewOpenRouter(key, referer, title, client, logger), nil
	}
	cfg := compatibleConfig(llm.ProviderOpenRouter, openai.OpenRouterBaseURL, openai.OpenRouterDefaultModel, opts)
	if cfg.ExtraHeaders == nil {
		cfg.ExtraHeaders = map[string]string{}
	}
	if referer != "" {
		cfg.ExtraHeaders["HTTP-Referer"] = referer
	}
	if title != "" {
		cfg.ExtraHeaders["X-Title"] = title
	}
	return openai.NewCompatible(cfg, client, logger), nil
}

func buildMistral(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	key := opts.String(llm.OptAPIKey)
	if key == "" {
		return nil, nil
	}
	if !customized(opts) {
		return openai.NewMistral(key, client, logger), nil
	}
	cfg := compatibleConfig(llm.ProviderMistral, openai.MistralBaseURL, openai.MistralDefaultModel, opts)
	return openai.NewCompatible(cfg, client, logger), nil
}

func buildGrok(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	key := opts.String(llm.OptAPIKey)
	if key == "" {
		return nil, nil
	}
	if !customized(opts) {
		return openai.NewGrok(key, client, logger), nil
	}
	cfg := compatibleConfig(llm.ProviderGrok, openai.GrokBaseURL, openai.GrokDefaultModel, opts)
	return openai.NewCompatible(cfg, client, logger), nil
}

// buildOllama always succeeds; a local server needs no credentials.
func buildOllama(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	return ollama.New(endpointOf(opts), client, logger)
}

func buildOllamaTurbo(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	key := opts.String(llm.OptAPIKey)
	if key == "" {
		return nil, nil
	}
	return ollama.NewTurbo(key, endpointOf(opts), client, logger)
}

func buildAnthropic(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	key := opts.String(llm.OptAPIKey)
	if key == "" {
		return nil, nil
	}
	return anthropic.New(key, endpointOf(opts), client, logger), nil
}

func buildGemini(opts llm.CallOptions, client *transport.Client, logger zerolog.Logger) (llm.Provider, error) {
	key := opts.String(llm.OptAPIKey)
	if key == "" {
		return nil, nil
	}
	var geminiOpts []gemini.Option
	if inQuery, _ := opts.Bool(OptKeyInQuery); inQuery {
		geminiOpts = append(geminiOpts, gemini.WithKeyInQuery())
	}
	return gemini.New(key, endpointOf(opts), client, logger, geminiOpts...), nil
}

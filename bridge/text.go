package bridge

import (
	"context"
	"errors"

	"github.com/aschepis/backscratcher/bridge/llm"
)

// ErrMissingProvider is returned by TextBuilder when Using was not called.
var ErrMissingProvider = errors.New("provider and model must be set via Using")

// TextBuilder assembles a single text generation call. It is not safe for
// concurrent use; build one per call.
type TextBuilder struct {
	manager     *Manager
	provider    string
	model       string
	overrides   llm.CallOptions
	messages    []llm.Message
	system      string
	maxTokens   *int
	temperature *float64
	topP        *float64
}

// Text starts a TextBuilder.
func (m *Manager) Text() *TextBuilder {
	return &TextBuilder{manager: m, overrides: llm.CallOptions{}}
}

// Using selects provider and model. providerConfig carries per-call
// construction overrides such as api_key or base_url.
func (b *TextBuilder) Using(provider, model string, providerConfig map[string]any) *TextBuilder {
	b.provider = provider
	b.model = model
	b.overrides = llm.CallOptions(providerConfig).Clone()
	return b
}

// WithPrompt appends a user message.
func (b *TextBuilder) WithPrompt(text string, attachments ...llm.Attachment) *TextBuilder {
	b.messages = append(b.messages, llm.NewUserMessage(text, attachments...))
	return b
}

// WithSystemPrompt sets the system message, sent before every prompt.
func (b *TextBuilder) WithSystemPrompt(text string) *TextBuilder {
	b.system = text
	return b
}

func (b *TextBuilder) WithMaxTokens(n int) *TextBuilder {
	b.maxTokens = &n
	return b
}

func (b *TextBuilder) UsingTemperature(t float64) *TextBuilder {
	b.temperature = &t
	return b
}

func (b *TextBuilder) UsingTopP(p float64) *TextBuilder {
	b.topP = &p
	return b
}

func (b *TextBuilder) WithAPIKey(key string) *TextBuilder {
	b.overrides[llm.OptAPIKey] = key
	return b
}

func (b *TextBuilder) WithEndpoint(endpoint string) *TextBuilder {
	b.overrides[llm.OptEndpoint] = endpoint
	return b
}

func (b *TextBuilder) WithBaseURL(baseURL string) *TextBuilder {
	b.overrides[llm.OptBaseURL] = baseURL
	return b
}

func (b *TextBuilder) WithChatEndpoint(url string) *TextBuilder {
	b.overrides[llm.OptChatEndpoint] = url
	return b
}

// WithAuthHeader sets a custom auth header. prefix is prepended to the key,
// e.g. "Bearer ".
func (b *TextBuilder) WithAuthHeader(header, prefix string) *TextBuilder {
	b.overrides[llm.OptAuthHeader] = header
	b.overrides[llm.OptAuthPrefix] = prefix
	return b
}

func (b *TextBuilder) WithExtraHeaders(headers map[string]string) *TextBuilder {
	b.overrides[llm.OptExtraHeaders] = headers
	return b
}

// WithPaths overrides per-operation paths (chat, embeddings, image, tts, stt, models).
func (b *TextBuilder) WithPaths(paths map[string]string) *TextBuilder {
	b.overrides[llm.OptPaths] = paths
	return b
}

func (b *TextBuilder) buildMessages() []llm.Message {
	if b.system == "" {
		return append([]llm.Message(nil), b.messages...)
	}
	out := make([]llm.Message, 0, len(b.messages)+1)
	out = append(out, llm.NewTextMessage(llm.RoleSystem, b.system))
	return append(out, b.messages...)
}

func (b *TextBuilder) callOptions() llm.CallOptions {
	opts := b.overrides.Clone()
	opts[llm.OptModel] = b.model
	if b.maxTokens != nil {
		opts[llm.OptMaxTokens] = *b.maxTokens
	}
	if b.temperature != nil {
		opts[llm.OptTemperature] = *b.temperature
	}
	if b.topP != nil {
		opts[llm.OptTopP] = *b.topP
	}
	return opts
}

func (b *TextBuilder) check() error {
	if b.provider == "" || b.model == "" {
		return ErrMissingProvider
	}
	return nil
}

// AsText runs the call and returns the normalized result.
func (b *TextBuilder) AsText(ctx context.Context) (*llm.NormalizedChatResult, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.manager.ChatNormalized(ctx, b.provider, b.buildMessages(), b.callOptions())
}

// AsRaw runs the call and returns the provider's response body.
func (b *TextBuilder) AsRaw(ctx context.Context) (llm.RawResponse, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.manager.Chat(ctx, b.provider, b.buildMessages(), b.callOptions())
}

// AsStream opens a delta stream. The caller must Close it.
func (b *TextBuilder) AsStream(ctx context.Context) (llm.DeltaStream, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return b.manager.Stream(ctx, b.provider, b.buildMessages(), b.callOptions())
}

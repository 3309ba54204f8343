// Package bridge routes calls to LLM providers by name. A Manager resolves a
// provider (a one-off instance when the call carries construction overrides,
// otherwise the cached one), checks that it has the requested capability and
// dispatches the call.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aschepis/backscratcher/bridge/agent"
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/tools"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownProvider is returned for names with no builder and no
	// registered instance.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrProviderNotConfigured is returned when a known provider cannot be
	// built because credentials are missing.
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// Recorder persists the outcome of a tool-augmented chat and returns its ID.
type Recorder interface {
	RecordRun(ctx context.Context, provider, model string, result *agent.RunResult) (string, error)
}

// Manager is safe for concurrent use.
type Manager struct {
	settings  Settings
	http      *transport.Client
	providers *llm.ProviderRegistry
	tools     *tools.Registry
	recorder  Recorder
	logger    zerolog.Logger

	buildersMu sync.RWMutex
	builders   map[string]Builder

	explicit map[string]llm.Provider
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithTransport shares an existing transport client instead of building one
// from Settings.Transport.
func WithTransport(client *transport.Client) Option {
	return func(m *Manager) { m.http = client }
}

// WithToolRegistry uses registry for ChatWithTools.
func WithToolRegistry(registry *tools.Registry) Option {
	return func(m *Manager) { m.tools = registry }
}

// WithRecorder records every ChatWithTools run.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithBuilder adds or replaces the builder for name.
func WithBuilder(name string, b Builder) Option {
	return func(m *Manager) { m.builders[llm.CanonicalName(name)] = b }
}

// WithProvider registers a ready-made provider under name. It takes
// precedence over one built from Settings.
func WithProvider(name string, p llm.Provider) Option {
	return func(m *Manager) { m.explicit[llm.CanonicalName(name)] = p }
}

// New creates a Manager and builds every provider whose settings carry
// enough credentials.
func New(settings Settings, opts ...Option) (*Manager, error) {
	settings.Providers = canonicalSettings(settings.Providers)
	m := &Manager{
		settings:  settings,
		providers: llm.NewProviderRegistry(),
		builders:  DefaultBuilders(),
		explicit:  map[string]llm.Provider{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With().Str("component", "manager").Logger()

	if m.http == nil {
		client, err := transport.New(settings.Transport, m.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		m.http = client
	}
	if m.tools == nil {
		m.tools = tools.NewRegistry(m.logger)
	}

	if err := m.preconfigure(); err != nil {
		return nil, err
	}
	for name, p := range m.explicit {
		m.providers.Register(name, p)
	}
	m.logger.Debug().Strs("providers", m.providers.Names()).Msg("Manager ready")
	return m, nil
}

func (m *Manager) preconfigure() error {
	for name, ps := range m.settings.Providers {
		// A local server is only assumed when explicitly configured.
		if name == llm.ProviderOllama && ps.Endpoint == "" && ps.BaseURL == "" {
			continue
		}
		build, ok := m.builder(name)
		if !ok {
			m.logger.Warn().Str("provider", name).Msg("No builder for configured provider")
			continue
		}
		p, err := build(ps.Options(), m.http, m.logger)
		if err != nil {
			return fmt.Errorf("failed to configure provider %s: %w", name, err)
		}
		if p == nil {
			m.logger.Debug().Str("provider", name).Msg("Skipping provider without credentials")
			continue
		}
		m.providers.Register(name, p)
	}
	return nil
}

// RegisterProvider adds or replaces a cached provider.
func (m *Manager) RegisterProvider(name string, p llm.Provider) {
	m.providers.Register(name, p)
}

// RegisterBuilder adds or replaces the builder for name.
func (m *Manager) RegisterBuilder(name string, b Builder) {
	m.buildersMu.Lock()
	defer m.buildersMu.Unlock()
	m.builders[llm.CanonicalName(name)] = b
}

func (m *Manager) builder(name string) (Builder, bool) {
	m.buildersMu.RLock()
	defer m.buildersMu.RUnlock()
	b, ok := m.builders[llm.CanonicalName(name)]
	return b, ok
}

// Providers returns the names of the cached providers.
func (m *Manager) Providers() []string {
	return m.providers.Names()
}

// Tools returns the tool registry used by ChatWithTools.
func (m *Manager) Tools() *tools.Registry {
	return m.tools
}

// RegisterTool adds a tool to the registry.
func (m *Manager) RegisterTool(t tools.Tool) {
	m.tools.Register(t)
}

// Tool returns the registered tool with the given name.
func (m *Manager) Tool(name string) (tools.Tool, bool) {
	return m.tools.Get(name)
}

// Provider resolves name for a call with opts: a one-off instance when opts
// carry construction overrides, else the cached instance, else one built from
// settings and adopted into the cache.
func (m *Manager) Provider(name string, opts llm.CallOptions) (llm.Provider, error) {
	name = llm.CanonicalName(name)
	build, hasBuilder := m.builder(name)
	ps := m.settings.provider(name)

	if opts.HasOverrides() && hasBuilder {
		p, err := build(opts.WithDefaults(ps.Options()), m.http, m.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
		}
		if p != nil {
			m.logger.Debug().Str("provider", name).Msg("Using one-off provider for call overrides")
			return p, nil
		}
	}

	if p, ok := m.providers.Get(name); ok {
		return p, nil
	}
	if !hasBuilder {
		return nil, llm.NewUnresolvedProviderError(name, ErrUnknownProvider)
	}

	p, err := build(opts.WithDefaults(ps.Options()), m.http, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
	}
	if p == nil {
		return nil, llm.NewUnresolvedProviderError(name, ErrProviderNotConfigured)
	}
	m.logger.Info().Str("provider", name).Msg("Adopting provider")
	return m.providers.Adopt(name, p), nil
}

// callOptions layers the configured per-provider defaults under opts.
func (m *Manager) callOptions(name string, opts llm.CallOptions) llm.CallOptions {
	defaults := m.settings.provider(name).Defaults
	if len(defaults) == 0 {
		if opts == nil {
			return llm.CallOptions{}
		}
		return opts
	}
	return opts.WithDefaults(defaults)
}

func (m *Manager) chatProvider(name string, opts llm.CallOptions, op string) (llm.ChatProvider, error) {
	p, err := m.Provider(name, opts)
	if err != nil {
		return nil, err
	}
	cp, ok := p.(llm.ChatProvider)
	if !ok {
		return nil, llm.NewUnsupportedCapabilityError(p.Name(), op)
	}
	return cp, nil
}

// Chat sends messages and returns the provider's raw response.
func (m *Manager) Chat(ctx context.Context, name string, messages []llm.Message, opts llm.CallOptions) (llm.RawResponse, error) {
	opts = m.callOptions(name, opts)
	cp, err := m.chatProvider(name, opts, "chat")
	if err != nil {
		return nil, err
	}
	return cp.Chat(ctx, messages, opts)
}

// ChatNormalized is Chat followed by llm.NormalizeChat.
func (m *Manager) ChatNormalized(ctx context.Context, name string, messages []llm.Message, opts llm.CallOptions) (*llm.NormalizedChatResult, error) {
	raw, err := m.Chat(ctx, name, messages, opts)
	if err != nil {
		return nil, err
	}
	normalized := llm.NormalizeChat(raw)
	return &normalized, nil
}

// Stream opens a text delta stream. Providers that report no streaming
// support fail with an unsupported-capability error.
func (m *Manager) Stream(ctx context.Context, name string, messages []llm.Message, opts llm.CallOptions) (llm.DeltaStream, error) {
	opts = m.callOptions(name, opts)
	cp, err := m.chatProvider(name, opts, "stream")
	if err != nil {
		return nil, err
	}
	if !cp.SupportsStreaming() {
		return nil, llm.NewUnsupportedCapabilityError(cp.Name(), "stream")
	}
	return cp.Stream(ctx, messages, opts)
}

// StreamEvents opens a structured event stream, using the provider's native
// one when it has it.
func (m *Manager) StreamEvents(ctx context.Context, name string, messages []llm.Message, opts llm.CallOptions) (llm.EventStream, error) {
	opts = m.callOptions(name, opts)
	cp, err := m.chatProvider(name, opts, "streamEvents")
	if err != nil {
		return nil, err
	}
	if !cp.SupportsStreaming() {
		return nil, llm.NewUnsupportedCapabilityError(cp.Name(), "streamEvents")
	}
	if es, ok := cp.(llm.EventStreamer); ok {
		return es.StreamEvents(ctx, messages, opts)
	}
	deltas, err := cp.Stream(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return llm.EventsFromDeltas(deltas), nil
}

// Embeddings computes one vector per input.
func (m *Manager) Embeddings(ctx context.Context, name string, inputs []string, opts llm.CallOptions) (*llm.EmbeddingsResult, error) {
	opts = m.callOptions(name, opts)
	p, err := m.Provider(name, opts)
	if err != nil {
		return nil, err
	}
	ep, ok := p.(llm.EmbeddingsProvider)
	if !ok {
		return nil, llm.NewUnsupportedCapabilityError(p.Name(), "embeddings")
	}
	return ep.Embeddings(ctx, inputs, opts)
}

// GenerateImage generates images from prompt.
func (m *Manager) GenerateImage(ctx context.Context, name, prompt string, opts llm.CallOptions) (*llm.ImageResult, error) {
	opts = m.callOptions(name, opts)
	p, err := m.Provider(name, opts)
	if err != nil {
		return nil, err
	}
	ip, ok := p.(llm.ImageProvider)
	if !ok {
		return nil, llm.NewUnsupportedCapabilityError(p.Name(), "image")
	}
	return ip.GenerateImage(ctx, prompt, opts)
}

func (m *Manager) audioProvider(name string, opts llm.CallOptions, op string) (llm.AudioProvider, error) {
	p, err := m.Provider(name, opts)
	if err != nil {
		return nil, err
	}
	ap, ok := p.(llm.AudioProvider)
	if !ok {
		return nil, llm.NewUnsupportedCapabilityError(p.Name(), op)
	}
	return ap, nil
}

// TextToSpeech synthesizes audio for text.
func (m *Manager) TextToSpeech(ctx context.Context, name, text string, opts llm.CallOptions) (*llm.SpeechResult, error) {
	opts = m.callOptions(name, opts)
	ap, err := m.audioProvider(name, opts, "tts")
	if err != nil {
		return nil, err
	}
	return ap.TextToSpeech(ctx, text, opts)
}

// SpeechToText transcribes the audio file at path.
func (m *Manager) SpeechToText(ctx context.Context, name, path string, opts llm.CallOptions) (*llm.TranscriptionResult, error) {
	opts = m.callOptions(name, opts)
	ap, err := m.audioProvider(name, opts, "stt")
	if err != nil {
		return nil, err
	}
	return ap.SpeechToText(ctx, path, opts)
}

func (m *Manager) modelsProvider(name string) (llm.ModelsProvider, error) {
	p, err := m.Provider(name, nil)
	if err != nil {
		return nil, err
	}
	mp, ok := p.(llm.ModelsProvider)
	if !ok {
		return nil, llm.NewUnsupportedCapabilityError(p.Name(), "models")
	}
	return mp, nil
}

// ListModels lists the models the provider offers.
func (m *Manager) ListModels(ctx context.Context, name string) (llm.RawResponse, error) {
	mp, err := m.modelsProvider(name)
	if err != nil {
		return nil, err
	}
	return mp.ListModels(ctx)
}

// GetModel describes one model.
func (m *Manager) GetModel(ctx context.Context, name, id string) (llm.RawResponse, error) {
	mp, err := m.modelsProvider(name)
	if err != nil {
		return nil, err
	}
	return mp.GetModel(ctx, id)
}

// ChatWithTools runs the tool loop over the registered tools. Only provider
// and transport failures are returned as errors; a loop that hits its
// iteration cap is reported in the result.
func (m *Manager) ChatWithTools(ctx context.Context, name string, messages []llm.Message, opts llm.CallOptions) (*agent.RunResult, error) {
	opts = m.callOptions(name, opts)
	if !opts.Has(llm.OptMaxToolIterations) && m.settings.MaxToolIterations > 0 {
		opts = opts.Clone()
		opts[llm.OptMaxToolIterations] = m.settings.MaxToolIterations
	}
	cp, err := m.chatProvider(name, opts, "chat")
	if err != nil {
		return nil, err
	}

	started := time.Now()
	runner := agent.NewRunner(cp.Chat, m.tools, m.logger)
	result, err := runner.Run(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	m.logger.Info().
		Str("provider", cp.Name()).
		Str("state", string(result.State)).
		Int("iterations", result.Iterations).
		Int("tool_calls", len(result.ToolCalls)).
		Dur("duration", time.Since(started)).
		Msg("Tool chat finished")

	if m.recorder != nil {
		id, recErr := m.recorder.RecordRun(ctx, cp.Name(), opts.String(llm.OptModel), result)
		if recErr != nil {
			m.logger.Warn().Err(recErr).Msg("Failed to record tool chat")
		} else {
			m.logger.Debug().Str("run_id", id).Msg("Recorded tool chat")
		}
	}
	return result, nil
}

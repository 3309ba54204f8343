package llm

import (
	"sort"
	"strings"
	"sync"
)

// Provider names understood by the default builders.
const (
	ProviderOpenAI       = "openai"
	ProviderOpenAICustom = "openai_custom"
	ProviderOpenRouter   = "openrouter"
	ProviderMistral      = "mistral"
	ProviderGrok         = "grok"
	ProviderOllama       = "ollama"
	ProviderOllamaTurbo  = "ollama_turbo"
	ProviderAnthropic    = "anthropic"
	ProviderClaude       = "claude"
	ProviderGemini       = "gemini"
)

// CanonicalName lower-cases a provider name and resolves aliases.
func CanonicalName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case ProviderClaude:
		return ProviderAnthropic
	case "xai":
		return ProviderGrok
	case "custom", "openai-compatible", "openai_compatible":
		return ProviderOpenAICustom
	}
	return name
}

// ProviderRegistry is the synchronized name→Provider cache. Reads take the
// shared lock; registration and adoption are serialized.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// Register stores p under name, replacing any previous entry.
func (r *ProviderRegistry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[CanonicalName(name)] = p
}

// Get returns the provider registered under name.
func (r *ProviderRegistry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[CanonicalName(name)]
	return p, ok
}

// Adopt stores p under name unless another writer got there first, and
// returns whichever provider ends up registered.
func (r *ProviderRegistry) Adopt(name string, p Provider) Provider {
	key := CanonicalName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.providers[key]; ok {
		return existing
	}
	r.providers[key] = p
	return p
}

// Remove deletes the provider registered under name.
func (r *ProviderRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, CanonicalName(name))
}

// Names returns the registered provider names, sorted.
func (r *ProviderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

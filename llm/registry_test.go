package llm

import (
	"fmt"
	"sync"
	"testing"
)

type namedProvider string

func (p namedProvider) Name() string { return string(p) }

func TestProviderRegistry_RegisterAndGet(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("OpenAI", namedProvider("openai"))
	registry.Register(ProviderClaude, namedProvider("anthropic"))

	if _, ok := registry.Get("openai"); !ok {
		t.Error("openai should be registered")
	}
	p, ok := registry.Get(ProviderAnthropic)
	if !ok {
		t.Fatal("claude alias should resolve to anthropic")
	}
	if p.Name() != "anthropic" {
		t.Errorf("Expected provider 'anthropic', got '%s'", p.Name())
	}
	if _, ok := registry.Get("ollama"); ok {
		t.Error("ollama should not be registered")
	}
}

func TestProviderRegistry_AdoptKeepsFirst(t *testing.T) {
	registry := NewProviderRegistry()

	first := registry.Adopt("ollama", namedProvider("first"))
	second := registry.Adopt("ollama", namedProvider("second"))

	if first.Name() != "first" || second.Name() != "first" {
		t.Errorf("Expected first adopted provider to win, got %q and %q", first.Name(), second.Name())
	}
}

func TestProviderRegistry_Remove(t *testing.T) {
	registry := NewProviderRegistry()
	registry.Register("gemini", namedProvider("gemini"))
	registry.Remove("gemini")

	if _, ok := registry.Get("gemini"); ok {
		t.Error("gemini should have been removed")
	}
	if len(registry.Names()) != 0 {
		t.Errorf("Expected no names, got %v", registry.Names())
	}
}

func TestProviderRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewProviderRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			registry.Adopt(fmt.Sprintf("p%d", i%5), namedProvider(fmt.Sprintf("p%d", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			registry.Get(fmt.Sprintf("p%d", i%5))
			registry.Names()
		}(i)
	}
	wg.Wait()

	if got := len(registry.Names()); got != 5 {
		t.Errorf("Expected 5 adopted providers, got %d", got)
	}
}

func TestCanonicalName(t *testing.T) {
	tests := map[string]string{
		"Claude":            ProviderAnthropic,
		" openai ":          ProviderOpenAI,
		"xai":               ProviderGrok,
		"openai-compatible": ProviderOpenAICustom,
		"ollama_turbo":      ProviderOllamaTurbo,
	}
	for in, want := range tests {
		if got := CanonicalName(in); got != want {
			t.Errorf("CanonicalName(%q) = %q, want %q", in, got, want)
		}
	}
}

package bridge

import (
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/samber/lo"
)

// Builder-only option keys. They configure a provider instance but do not,
// on their own, force a one-off build.
const (
	OptReferer    = "referer"
	OptTitle      = "title"
	OptKeyInQuery = "key_in_query"
)

// ProviderSettings is the construction surface of one provider family.
type ProviderSettings struct {
	APIKey       string
	Endpoint     string
	BaseURL      string
	ChatEndpoint string
	Paths        map[string]string
	AuthHeader   string
	AuthPrefix   *string // nil leaves the provider default
	ExtraHeaders map[string]string
	Referer      string
	Title        string
	KeyInQuery   bool

	// Defaults are call options applied under every call to this provider.
	Defaults map[string]any
}

// Options renders the settings as builder options. Empty fields are omitted.
func (p ProviderSettings) Options() llm.CallOptions {
	opts := llm.CallOptions{}
	set := func(key, value string) {
		if value != "" {
			opts[key] = value
		}
	}
	set(llm.OptAPIKey, p.APIKey)
	set(llm.OptEndpoint, p.Endpoint)
	set(llm.OptBaseURL, p.BaseURL)
	set(llm.OptChatEndpoint, p.ChatEndpoint)
	set(llm.OptAuthHeader, p.AuthHeader)
	if p.AuthPrefix != nil {
		opts[llm.OptAuthPrefix] = *p.AuthPrefix
	}
	set(OptReferer, p.Referer)
	set(OptTitle, p.Title)
	if len(p.Paths) > 0 {
		opts[llm.OptPaths] = p.Paths
	}
	if len(p.ExtraHeaders) > 0 {
		opts[llm.OptExtraHeaders] = p.ExtraHeaders
	}
	if p.KeyInQuery {
		opts[OptKeyInQuery] = true
	}
	return opts
}

// Settings configures a Manager.
type Settings struct {
	Transport transport.Config

	// Providers is keyed by provider name; aliases are canonicalized.
	Providers map[string]ProviderSettings

	// MaxToolIterations is used by ChatWithTools when the call does not set
	// max_tool_iterations. Zero selects the runner default.
	MaxToolIterations int
}

func (s Settings) provider(name string) ProviderSettings {
	return s.Providers[llm.CanonicalName(name)]
}

func canonicalSettings(in map[string]ProviderSettings) map[string]ProviderSettings {
	return lo.MapKeys(in, func(_ ProviderSettings, name string) string {
		return llm.CanonicalName(name)
	})
}

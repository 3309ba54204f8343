// Package config loads the aibridge YAML configuration: built-in defaults,
// then the config file, then API keys from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/aschepis/backscratcher/bridge/bridge"
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/transport"
	"gopkg.in/yaml.v3"
)

// HTTPConfig is the transport policy shared by every provider.
type HTTPConfig struct {
	Timeout    int    `yaml:"timeout,omitempty"`        // Seconds
	RetryTimes int    `yaml:"retry_times,omitempty"`    // Retries after the first attempt
	RetrySleep int    `yaml:"retry_sleep_ms,omitempty"` // Initial delay between retries
	Verify     *bool  `yaml:"verify,omitempty"`         // TLS verification (default true)
	CABundle   string `yaml:"ca_bundle,omitempty"`      // Extra PEM roots
	UserAgent  string `yaml:"user_agent,omitempty"`
}

// ProviderConfig holds the construction parameters of one provider family.
type ProviderConfig struct {
	APIKey       string            `yaml:"api_key,omitempty"`
	Endpoint     string            `yaml:"endpoint,omitempty"`
	BaseURL      string            `yaml:"base_url,omitempty"`
	ChatEndpoint string            `yaml:"chat_endpoint,omitempty"`
	Paths        map[string]string `yaml:"paths,omitempty"` // chat, responses, embeddings, image, tts, stt, models
	AuthHeader   string            `yaml:"auth_header,omitempty"`
	AuthPrefix   *string           `yaml:"auth_prefix,omitempty"` // Unset means "Bearer "
	ExtraHeaders map[string]string `yaml:"extra_headers,omitempty"`
	Referer      string            `yaml:"referer,omitempty"` // OpenRouter attribution
	Title        string            `yaml:"title,omitempty"`   // OpenRouter attribution
	KeyInQuery   bool              `yaml:"key_in_query,omitempty"`
	Defaults     map[string]any    `yaml:"defaults,omitempty"` // Call options applied to every call
}

// RemoteToolConfig describes a tool executed by an HTTP endpoint.
type RemoteToolConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	URL         string         `yaml:"url"`
	AuthToken   string         `yaml:"auth_token,omitempty"`
	Schema      map[string]any `yaml:"schema,omitempty"`
}

// ToolsConfig controls the tool registry used by tool-augmented chats.
type ToolsConfig struct {
	MaxIterations     int                `yaml:"max_iterations,omitempty"`
	Workspace         string             `yaml:"workspace,omitempty"`
	DisableFilesystem bool               `yaml:"disable_filesystem,omitempty"`
	DisableCommands   bool               `yaml:"disable_commands,omitempty"` // execute_command
	ValidateArgs      bool               `yaml:"validate_args,omitempty"`
	Remote            []RemoteToolConfig `yaml:"remote,omitempty"`
}

// MCPServerConfig represents configuration for an MCP server.
type MCPServerConfig struct {
	Name     string            `yaml:"name,omitempty"`
	Command  string            `yaml:"command,omitempty"` // For STDIO transport
	URL      string            `yaml:"url,omitempty"`     // For streamable HTTP transport
	Args     []string          `yaml:"args,omitempty"`    // Additional args for STDIO command
	Env      []string          `yaml:"env,omitempty"`     // KEY=VALUE pairs for STDIO
	Headers  map[string]string `yaml:"headers,omitempty"` // For HTTP transport
	Prefix   string            `yaml:"prefix,omitempty"`  // Tool name prefix; defaults to the server key
	Disabled bool              `yaml:"disabled,omitempty"`
}

// MCPImportConfig imports MCP servers from an editor config file that uses
// the common "mcpServers" JSON layout (e.g. ~/.claude.json).
type MCPImportConfig struct {
	Enabled    bool     `yaml:"enabled,omitempty"`
	ConfigPath string   `yaml:"config_path,omitempty"`
	Projects   []string `yaml:"projects,omitempty"` // Empty = all projects and global servers
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"`
	Path     string `yaml:"path,omitempty"`
}

// LogConfig controls logger initialization.
type LogConfig struct {
	File   string `yaml:"file,omitempty"`
	Pretty bool   `yaml:"pretty,omitempty"`
}

// Config is the complete aibridge configuration.
type Config struct {
	DefaultProvider string                      `yaml:"default_provider,omitempty"`
	HTTP            HTTPConfig                  `yaml:"http,omitempty"`
	Providers       map[string]*ProviderConfig  `yaml:"providers,omitempty"`
	Tools           ToolsConfig                 `yaml:"tools,omitempty"`
	MCPServers      map[string]*MCPServerConfig `yaml:"mcp_servers,omitempty"`
	MCPImport       MCPImportConfig             `yaml:"mcp_import,omitempty"`
	History         HistoryConfig               `yaml:"history,omitempty"`
	Log             LogConfig                   `yaml:"log,omitempty"`
}

// envKeys maps provider names to the environment variables holding their API keys.
var envKeys = map[string]string{
	llm.ProviderOpenAI:      "OPENAI_API_KEY",
	llm.ProviderAnthropic:   "ANTHROPIC_API_KEY",
	llm.ProviderGemini:      "GEMINI_API_KEY",
	llm.ProviderOllamaTurbo: "OLLAMA_API_KEY",
	llm.ProviderOpenRouter:  "OPENROUTER_API_KEY",
	llm.ProviderMistral:     "MISTRAL_API_KEY",
	llm.ProviderGrok:        "XAI_API_KEY",
}

// Path returns the config file path. Can be overridden via the AIBRIDGE_CONFIG
// environment variable.
func Path() string {
	if envPath := os.Getenv("AIBRIDGE_CONFIG"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.aibridge/config.yaml"
	}
	return filepath.Join(homeDir, ".aibridge", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		DefaultProvider: llm.ProviderOpenAI,
		HTTP: HTTPConfig{
			Timeout:    60,
			RetryTimes: 2,
			RetrySleep: 200,
		},
		Providers: make(map[string]*ProviderConfig),
		Tools: ToolsConfig{
			MaxIterations: 5,
			Workspace:     ".",
		},
		MCPServers: make(map[string]*MCPServerConfig),
		MCPImport: MCPImportConfig{
			ConfigPath: "~/.claude.json",
		},
		History: HistoryConfig{
			Path: "~/.aibridge/history.db",
		},
	}
}

// Load reads the config file at path on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec G304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}
		if err := merge(cfg, data); err != nil {
			return nil, err
		}
	}

	cfg.normalize()
	cfg.applyEnv()
	return cfg, nil
}

// Parse builds a config from YAML bytes on top of the defaults. The
// environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := merge(cfg, data); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func merge(cfg *Config, data []byte) error {
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// applyEnv fills API keys and the Ollama host from the environment. Env
// values take precedence over the file.
func (c *Config) applyEnv() {
	for name, env := range envKeys {
		if v := os.Getenv(env); v != "" {
			c.provider(name).APIKey = v
		}
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.provider(llm.ProviderOllama).Endpoint = host
	}
}

// provider returns the section for name, creating it if needed.
func (c *Config) provider(name string) *ProviderConfig {
	name = llm.CanonicalName(name)
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

func (c *Config) normalize() {
	providers := make(map[string]*ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		if p != nil {
			providers[llm.CanonicalName(name)] = p
		}
	}
	c.Providers = providers
	if c.MCPServers == nil {
		c.MCPServers = make(map[string]*MCPServerConfig)
	}
	for key, server := range c.MCPServers {
		if server == nil {
			delete(c.MCPServers, key)
			continue
		}
		if server.Name == "" {
			server.Name = key
		}
	}
	c.DefaultProvider = llm.CanonicalName(c.DefaultProvider)
	c.Tools.Workspace = expandPath(c.Tools.Workspace)
	c.History.Path = expandPath(c.History.Path)
	c.HTTP.CABundle = expandPath(c.HTTP.CABundle)
	c.Log.File = expandPath(c.Log.File)
}

// Transport converts the http section into a transport policy.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Timeout:            time.Duration(c.HTTP.Timeout) * time.Second,
		RetryTimes:         c.HTTP.RetryTimes,
		RetrySleep:         time.Duration(c.HTTP.RetrySleep) * time.Millisecond,
		InsecureSkipVerify: c.HTTP.Verify != nil && !*c.HTTP.Verify,
		CABundle:           c.HTTP.CABundle,
		UserAgent:          c.HTTP.UserAgent,
	}
}

// Settings converts the configuration into Manager settings.
func (c *Config) Settings() bridge.Settings {
	providers := make(map[string]bridge.ProviderSettings, len(c.Providers))
	for name, p := range c.Providers {
		if p == nil {
			continue
		}
		providers[llm.CanonicalName(name)] = bridge.ProviderSettings{
			APIKey:       p.APIKey,
			Endpoint:     p.Endpoint,
			BaseURL:      p.BaseURL,
			ChatEndpoint: p.ChatEndpoint,
			Paths:        p.Paths,
			AuthHeader:   p.AuthHeader,
			AuthPrefix:   p.AuthPrefix,
			ExtraHeaders: p.ExtraHeaders,
			Referer:      p.Referer,
			Title:        p.Title,
			KeyInQuery:   p.KeyInQuery,
			Defaults:     p.Defaults,
		}
	}
	return bridge.Settings{
		Transport:         c.Transport(),
		Providers:         providers,
		MaxToolIterations: c.Tools.MaxIterations,
	}
}

// Save writes cfg to path, creating the directory if needed.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	// Ensure directory exists
	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Redacted returns a copy of c with API keys and tool tokens masked, suitable
// for printing.
func (c *Config) Redacted() *Config {
	out := *c
	out.Providers = make(map[string]*ProviderConfig, len(c.Providers))
	for name, p := range c.Providers {
		cp := *p
		cp.APIKey = mask(cp.APIKey)
		out.Providers[name] = &cp
	}
	out.Tools.Remote = make([]RemoteToolConfig, len(c.Tools.Remote))
	for i, rt := range c.Tools.Remote {
		rt.AuthToken = mask(rt.AuthToken)
		out.Tools.Remote[i] = rt
	}
	return &out
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****" + secret[len(secret)-2:]
	}
}

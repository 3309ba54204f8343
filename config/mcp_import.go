package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// globalScope selects the top-level servers of an imported file in
// MCPImportConfig.Projects.
const globalScope = "Global"

// importedFile is the "mcpServers" layout shared by several editor configs:
// global servers at the root plus per-project servers.
type importedFile struct {
	MCPServers map[string]importedServer `json:"mcpServers,omitempty"`
	Projects   map[string]struct {
		MCPServers map[string]importedServer `json:"mcpServers"`
	} `json:"projects,omitempty"`
}

type importedServer struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     json.RawMessage   `json:"env,omitempty"` // Array of KEY=VALUE strings or an object
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// envStrings returns Env as KEY=VALUE pairs, sorted when it was an object.
func (s importedServer) envStrings(logger zerolog.Logger) []string {
	if len(s.Env) == 0 {
		return nil
	}
	var envArray []string
	if err := json.Unmarshal(s.Env, &envArray); err == nil {
		return envArray
	}
	var envMap map[string]string
	if err := json.Unmarshal(s.Env, &envMap); err == nil {
		pairs := lo.MapToSlice(envMap, func(key, value string) string {
			return fmt.Sprintf("%s=%s", key, value)
		})
		sort.Strings(pairs)
		return pairs
	}
	logger.Warn().Str("env", string(s.Env)).Msg("Failed to parse env field, expected array of strings or object")
	return nil
}

// ImportMCPServers reads the file named by cfg.ConfigPath and returns its
// servers keyed "imported_<name>". A missing file yields no servers.
func ImportMCPServers(logger zerolog.Logger, cfg MCPImportConfig) (map[string]*MCPServerConfig, error) {
	path := expandPath(cfg.ConfigPath)
	data, err := os.ReadFile(path) //#nosec G304 -- intentional file read for config
	if os.IsNotExist(err) {
		logger.Debug().Str("path", path).Msg("MCP import file does not exist")
		return map[string]*MCPServerConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read MCP import file %q: %w", path, err)
	}

	var file importedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse MCP import file %q: %w", path, err)
	}

	result := make(map[string]*MCPServerConfig)
	for name, server := range selectServers(file, cfg.Projects) {
		result["imported_"+name] = &MCPServerConfig{
			Name:    name,
			Command: server.Command,
			Args:    server.Args,
			Env:     server.envStrings(logger),
			URL:     server.URL,
			Headers: server.Headers,
		}
	}
	logger.Info().Str("path", path).Int("servers", len(result)).Msg("Imported MCP servers")
	return result, nil
}

// selectServers picks global and project servers. An empty filter selects
// everything; a filter path also matches projects nested below it.
func selectServers(file importedFile, filter []string) map[string]importedServer {
	includeGlobal := len(filter) == 0 || lo.Contains(filter, globalScope)
	roots := lo.FilterMap(filter, func(p string, _ int) (string, bool) {
		return filepath.Clean(expandPath(p)), p != globalScope
	})

	servers := make(map[string]importedServer)
	if includeGlobal {
		for name, s := range file.MCPServers {
			servers[name] = s
		}
	}
	for projectPath, project := range file.Projects {
		if len(filter) > 0 && !withinAny(filepath.Clean(expandPath(projectPath)), roots) {
			continue
		}
		for name, s := range project.MCPServers {
			servers[name] = s
		}
	}
	return servers
}

func withinAny(path string, roots []string) bool {
	return lo.SomeBy(roots, func(root string) bool {
		rel, err := filepath.Rel(root, path)
		return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
	})
}

// MergeImportedMCPServers adds imported servers that do not collide with
// configured ones.
func (c *Config) MergeImportedMCPServers(imported map[string]*MCPServerConfig) {
	for key, server := range imported {
		if _, exists := c.MCPServers[key]; !exists {
			c.MCPServers[key] = server
		}
	}
}

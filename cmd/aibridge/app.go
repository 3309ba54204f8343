package main

import (
	"context"
	"fmt"

	"github.com/aschepis/backscratcher/bridge/bridge"
	"github.com/aschepis/backscratcher/bridge/config"
	"github.com/aschepis/backscratcher/bridge/history"
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/logger"
	"github.com/aschepis/backscratcher/bridge/mcp"
	"github.com/aschepis/backscratcher/bridge/tools"
	"github.com/aschepis/backscratcher/bridge/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// app holds everything a command needs. Commands build it with newApp and
// must call close.
type app struct {
	cfg        *config.Config
	manager    *bridge.Manager
	history    *history.Store
	mcpClients []*mcp.Client
	logger     zerolog.Logger
}

type appOptions struct {
	tools   bool // Register built-in, remote and MCP tools
	history bool // Open the run history
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logFile := viper.GetString("logfile")
	if logFile == "" {
		logFile = cfg.Log.File
	}
	pretty := viper.GetBool("pretty") || cfg.Log.Pretty
	if logFile != "" && viper.GetBool("pretty") {
		return nil, fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}
	log, err := logger.InitWithOptions(logger.Options{File: logFile, Pretty: pretty, Level: viper.GetString("log_level")})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	log.Debug().Str("config", path).Msg("Loaded configuration")

	a := &app{cfg: cfg, logger: log}

	client, err := transport.New(cfg.Transport(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	var registryOpts []tools.RegistryOption
	if cfg.Tools.ValidateArgs {
		registryOpts = append(registryOpts, tools.WithArgumentValidation())
	}
	registry := tools.NewRegistry(log, registryOpts...)
	if opts.tools {
		if err := a.registerTools(ctx, registry, client); err != nil {
			a.close()
			return nil, err
		}
	}

	managerOpts := []bridge.Option{
		bridge.WithLogger(log),
		bridge.WithTransport(client),
		bridge.WithToolRegistry(registry),
	}
	if opts.history && !cfg.History.Disabled {
		store, err := history.Open(cfg.History.Path, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.history = store
		managerOpts = append(managerOpts, bridge.WithRecorder(store))
	}

	a.manager, err = bridge.New(cfg.Settings(), managerOpts...)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) registerTools(ctx context.Context, registry *tools.Registry, client *transport.Client) error {
	workspace := a.cfg.Tools.Workspace
	if !a.cfg.Tools.DisableFilesystem {
		registry.RegisterFilesystemTools(workspace)
	}
	if a.cfg.Tools.DisableCommands {
		registry.Register(tools.SystemInfoTool())
	} else {
		registry.RegisterSystemTools(workspace)
	}

	for _, rt := range a.cfg.Tools.Remote {
		registry.Register(tools.NewRemoteTool(client, rt.URL, rt.AuthToken, rt.Name, rt.Description, rt.Schema))
	}

	if a.cfg.MCPImport.Enabled {
		imported, err := config.ImportMCPServers(a.logger, a.cfg.MCPImport)
		if err != nil {
			return err
		}
		a.cfg.MergeImportedMCPServers(imported)
	}
	for key, server := range a.cfg.MCPServers {
		if server.Disabled {
			continue
		}
		if err := a.connectMCP(ctx, registry, key, server); err != nil {
			// One broken server should not take the others down.
			a.logger.Error().Err(err).Str("server", key).Msg("Failed to load MCP server tools")
		}
	}
	return nil
}

func (a *app) connectMCP(ctx context.Context, registry *tools.Registry, key string, server *config.MCPServerConfig) error {
	var (
		client *mcp.Client
		err    error
	)
	switch {
	case server.URL != "":
		client, err = mcp.NewHTTPClient(a.logger, server.URL, server.Headers)
	case server.Command != "":
		client, err = mcp.NewStdioClient(a.logger, server.Command, server.Args, server.Env)
	default:
		return fmt.Errorf("MCP server %s has neither command nor url", key)
	}
	if err != nil {
		return err
	}
	a.mcpClients = append(a.mcpClients, client)

	if err := client.Start(ctx); err != nil {
		return err
	}
	prefix := server.Prefix
	if prefix == "" {
		prefix = mcp.ToSafeName(key)
	}
	names, err := registry.RegisterMCPTools(ctx, client, prefix)
	if err != nil {
		return err
	}
	a.logger.Debug().Str("server", key).Strs("tools", names).Msg("Registered MCP server tools")
	return nil
}

func (a *app) close() {
	for _, c := range a.mcpClients {
		if err := c.Close(); err != nil {
			a.logger.Debug().Err(err).Str("server", c.Label()).Msg("Failed to close MCP client")
		}
	}
	if a.history != nil {
		_ = a.history.Close() //nolint:errcheck // No remedy for db close errors
	}
}

// provider returns the --provider flag or the configured default.
func (a *app) provider() string {
	if p := viper.GetString("provider"); p != "" {
		return llm.CanonicalName(p)
	}
	return a.cfg.DefaultProvider
}

// callOptions starts the options of a call with the --model flag.
func (a *app) callOptions() llm.CallOptions {
	opts := llm.CallOptions{}
	if model := viper.GetString("model"); model != "" {
		opts[llm.OptModel] = model
	}
	return opts
}

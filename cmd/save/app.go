package main

import (
	"context"
	"fmt"

	"github.com/comigor/save-go/internal/agent"
	"github.com/comigor/save-go/internal/config"
	"github.com/comigor/save-go/internal/dispatch"
	"github.com/comigor/save-go/internal/history"
	"github.com/comigor/save-go/internal/llm"
	"github.com/comigor/save-go/internal/logger"
	"github.com/comigor/save-go/internal/memory"
	"github.com/comigor/save-go/internal/validator"
	"github.com/comigor/save-go/pkg/tools"
)

// app holds the wired components of one process.
type app struct {
	cfg      *config.Config
	registry *tools.Registry
	mcp      []tools.MCPClient
	history  *history.Store
	memory   *memory.Manager
	agent    *agent.Agent
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	logger.SetLevel(level)
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	client := llm.NewClient(cfg.LLM)

	registry, err := tools.NewDefaultRegistry(cfg.Tools, client, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}
	// MCP tools must be registered before the definitions are bound to the responder.
	mcpClients := tools.ConnectMCP(ctx, registry, cfg.MCPServers)

	a := &app{cfg: cfg, registry: registry, mcp: mcpClients}

	memOpts := []memory.Option{memory.WithTokenCounter(memory.NewTiktokenCounter(cfg.Memory.Encoding))}
	if cfg.History.Enabled {
		a.history = history.Open(cfg.History.Path)
		memOpts = append(memOpts, memory.WithArchive(a.history))
	}
	a.memory = memory.NewManager(memory.LimitsFromConfig(cfg.Memory), memOpts...)

	responder := llm.NewResponder(client, cfg.LLM.Model, cfg.LLM.SystemPrompt, registry.Definitions())
	v := validator.New(llm.NewJudge(client, cfg.LLM.ValidatorModel), validator.WithMaxMessages(cfg.Agent.MaxMessages))
	d := dispatch.New(registry,
		dispatch.WithTimeout(cfg.Agent.ToolTimeout),
		dispatch.WithMaxParallel(cfg.Agent.MaxParallelTools))

	a.agent = agent.New(responder, d, v, a.memory,
		agent.WithMaxMessages(cfg.Agent.MaxMessages),
		agent.WithEvidence(cfg.Agent.EvidenceItems, cfg.Agent.EvidenceChars),
		agent.WithAnswerChars(cfg.Agent.AnswerChars),
		agent.WithTurnTimeout(cfg.Agent.TurnTimeout))

	logger.L.Info("SAVE initialized",
		"model", cfg.LLM.Model,
		"tools", len(registry.List()),
		"mcp_servers", len(mcpClients),
		"history", a.history != nil && a.history.Persistent())
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.mcp {
		if err := c.Close(); err != nil {
			logger.L.Warn("MCP client close error", "error", err)
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logger.L.Warn("history close error", "error", err)
		}
	}
}

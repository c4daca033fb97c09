package main

import (
	"fmt"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/openworkhq/openwork/internal/config"
	"github.com/openworkhq/openwork/internal/orchestrator"
	"github.com/openworkhq/openwork/internal/planner"
	"github.com/openworkhq/openwork/internal/sandbox"
	"github.com/openworkhq/openwork/internal/state"
	"github.com/openworkhq/openwork/internal/tool"
)

// runtimeDir returns the project-local .openwork directory.
func runtimeDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".openwork")
}

// newRegistryFactory builds the standard tool set against a sandbox.
func newRegistryFactory(cfg *config.Config) func(sb *sandbox.Sandbox) (*tool.Registry, error) {
	return func(sb *sandbox.Sandbox) (*tool.Registry, error) {
		registry := tool.NewRegistry()

		tools := []tool.Tool{
			tool.NewReadFileTool(sb),
			tool.NewWriteFileTool(sb),
			tool.NewListDirTool(sb),
			tool.NewBashTool(sb,
				tool.WithBashTimeout(cfg.Tools.BashTimeout),
				tool.WithBashOutputCap(cfg.Tools.OutputCap),
			),
			tool.NewSearchTool(sb),
			tool.NewCodeTool(sb,
				tool.WithCodeOutputCap(cfg.Tools.OutputCap),
			),
		}
		if cfg.Tools.FetchEnabled {
			tools = append(tools, tool.NewFetchTool())
		}

		for _, t := range tools {
			if err := registry.Register(t); err != nil {
				return nil, err
			}
		}
		return registry, nil
	}
}

// buildOrchestrator assembles the full engine for CLI commands. The
// caller owns shutdown of the returned orchestrator, store and watcher.
func buildOrchestrator(cfg *config.Config, projectRoot string) (*orchestrator.Orchestrator, *state.DB, *orchestrator.SignalWatcher, error) {
	client, err := planner.NewClient(planner.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
		MaxRetries:    cfg.Anthropic.MaxRetries,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create planner: %w", err)
	}

	db, err := state.OpenProject(projectRoot)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state db: %w", err)
	}

	signals, err := orchestrator.NewSignalWatcher(runtimeDir(projectRoot))
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("start signal watcher: %w", err)
	}

	var verifier planner.Verifier
	if cfg.Agent.Verify {
		verifier = client
	}

	orch := orchestrator.New(orchestrator.Config{
		Planner:          client,
		Verifier:         verifier,
		NewRegistry:      newRegistryFactory(cfg),
		Store:            db,
		Signals:          signals,
		Workers:          cfg.Workers.Count,
		QueueSize:        cfg.Workers.QueueSize,
		MaxIterations:    cfg.Agent.MaxIterations,
		VerifyMaxRetries: cfg.Agent.VerifyMaxRetries,
		FanOut:           int64(cfg.Subagents.FanOut),
		MaxDepth:         cfg.Subagents.MaxDepth,
		ChildIterations:  cfg.Subagents.MaxIterations,
		ContextBudget:    cfg.Agent.ContextBudget,
	})

	return orch, db, signals, nil
}

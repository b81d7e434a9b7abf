// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	weaviateclient "github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/aleutian-ai/coggraph/checkpoint"
	"github.com/aleutian-ai/coggraph/config"
	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/graph"
	"github.com/aleutian-ai/coggraph/llmclient"
	"github.com/aleutian-ai/coggraph/memory"
	"github.com/aleutian-ai/coggraph/nodes"
	"github.com/aleutian-ai/coggraph/pkg/logging"
	"github.com/aleutian-ai/coggraph/telemetry"
	"github.com/aleutian-ai/coggraph/tools"
)

// app bundles everything a command needs to drive the runner.
type app struct {
	cfg    config.Config
	logger *logging.Logger
	runner *graph.Runner
	tel    *telemetry.Telemetry

	checkpoints checkpoint.Store
}

// buildApp assembles the full dependency graph from configuration: logger,
// secrets, telemetry, stores, LLM backends, nodes, and the runner.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Dir:     cfg.Logging.Dir,
		Service: "cogcore",
	})
	if err != nil {
		return nil, err
	}

	secrets := config.LoadSecretsFromEnv()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		TraceExporter: cfg.Telemetry.TraceExporter,
		OTLPEndpoint:  cfg.Telemetry.OTLPEndpoint,
		ServiceName:   "cogcore",
	})
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.Influx.URL != "" {
		token := cfg.Telemetry.Influx.Token
		if token == "" && secrets.Has(config.EnvInfluxToken) {
			token, _ = secrets.Reveal(config.EnvInfluxToken)
		}
		tel.WithInfluxSink(telemetry.NewInfluxSink(
			cfg.Telemetry.Influx.URL, token,
			cfg.Telemetry.Influx.Org, cfg.Telemetry.Influx.Bucket,
			logger.Logger,
		))
	}

	llm, classifier, err := buildLLM(cfg, secrets, logger)
	if err != nil {
		return nil, err
	}

	ckpt, err := buildCheckpointStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	longTerm, err := buildMemoryStore(cfg)
	if err != nil {
		return nil, err
	}
	if ws, ok := longTerm.(*memory.WeaviateStore); ok {
		if err := ws.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	reasoning := nodes.NewReasoningNode(llm, cfg.LLM.SystemPrompt, registry, longTerm, logger.Logger)
	reasoning.MaxHITLChainDepth = cfg.HITL.MaxChainDepth
	reasoning.HistoryWindow = cfg.Context.MaxHistory

	imageHITL := nodes.NewHITLNode(nil, nil, logger.Logger)
	imageHITL.ContractType = contract.ContractImageMemory

	orch := &graph.Orchestrator{
		Intent:           nodes.NewIntentNode(intentRules(registry), classifier, cfg),
		Emotion:          nodes.NewEmotionNode(nil),
		Memory:           nodes.NewMemoryNode(longTerm, cfg.Memory.TopK, logger.Logger),
		Reasoning:        reasoning,
		Tool:             nodes.NewToolNode(registry, nil, nil),
		HITL:             nodes.NewHITLNode(nil, nil, logger.Logger),
		Image:            nodes.NewImageNode(nil, logger.Logger),
		MemoryExtraction: nodes.NewMemoryExtractionNode(logger.Logger),
		ImageHITL:        imageHITL,
	}

	runner := graph.NewRunner(orch, ckpt,
		graph.WithLogger(logger.Logger),
		graph.WithMemoryStore(longTerm),
		graph.WithInstrumentation(tel),
		graph.WithMaxConcurrentSessions(cfg.Runner.MaxConcurrentSessions),
		graph.WithContextBudget(cfg.Context.BudgetBytes),
		graph.WithMaxHistory(cfg.Context.MaxHistory),
	)

	return &app{
		cfg:         cfg,
		logger:      logger,
		runner:      runner,
		tel:         tel,
		checkpoints: ckpt,
	}, nil
}

// close releases the app's resources in reverse construction order.
func (a *app) close(ctx context.Context) {
	if a.checkpoints != nil {
		_ = a.checkpoints.Close()
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

func buildLLM(cfg config.Config, secrets *config.Secrets, logger *logging.Logger) (llmclient.LLMClient, llmclient.Classifier, error) {
	switch cfg.LLM.Backend {
	case "openai":
		key, err := secrets.Reveal(config.EnvOpenAIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("openai backend selected but %s is not set", config.EnvOpenAIKey)
		}
		client, err := llmclient.NewOpenAIClient(key, cfg.LLM.Model, logger.Logger)
		if err != nil {
			return nil, nil, err
		}
		classifier, err := buildClassifier(cfg, secrets, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, classifier, nil

	case "anthropic":
		key, err := secrets.Reveal(config.EnvAnthropicKey)
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic backend selected but %s is not set", config.EnvAnthropicKey)
		}
		client, err := llmclient.NewAnthropicClient(key, cfg.LLM.Model, logger.Logger)
		if err != nil {
			return nil, nil, err
		}
		// The anthropic client doubles as the layer-2 classifier.
		return client, client, nil

	default:
		return nil, nil, fmt.Errorf("unknown llm backend %q", cfg.LLM.Backend)
	}
}

// buildClassifier constructs the layer-2 intent classifier on the Anthropic
// path when configured; layer 2 stays off without a key or model.
func buildClassifier(cfg config.Config, secrets *config.Secrets, logger *logging.Logger) (llmclient.Classifier, error) {
	if !cfg.Intent.Layer2Enabled || cfg.LLM.ClassifierModel == "" || !secrets.Has(config.EnvAnthropicKey) {
		return nil, nil
	}
	key, err := secrets.Reveal(config.EnvAnthropicKey)
	if err != nil {
		return nil, err
	}
	return llmclient.NewAnthropicClient(key, cfg.LLM.ClassifierModel, logger.Logger)
}

func buildCheckpointStore(ctx context.Context, cfg config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "badger":
		path, err := cfg.CheckpointPath()
		if err != nil {
			return nil, err
		}
		return checkpoint.OpenBadgerStore(checkpoint.DefaultBadgerConfig(path))
	case "gcs":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs checkpoint backend: %w", err)
		}
		return checkpoint.NewGCSStore(client, cfg.Checkpoint.Bucket, cfg.Checkpoint.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

func buildMemoryStore(cfg config.Config) (memory.LongTermStore, error) {
	embedder := memory.NewHashEmbedder(0)
	if cfg.Memory.Backend == "weaviate" {
		client, err := weaviateclient.NewClient(weaviateclient.Config{
			Host:   cfg.Memory.Host,
			Scheme: cfg.Memory.Scheme,
		})
		if err != nil {
			return nil, fmt.Errorf("weaviate memory backend: %w", err)
		}
		return memory.NewWeaviateStore(client, embedder), nil
	}
	return memory.NewInMemoryStore(embedder), nil
}

// intentRules derives Layer 1 rules from the tool registry's trigger
// keywords, so registered tools are routable by intent without extra
// configuration.
func intentRules(registry *tools.Registry) []nodes.IntentRule {
	var rules []nodes.IntentRule
	for _, def := range registry.Definitions() {
		if len(def.TriggerKeywords) == 0 {
			continue
		}
		rules = append(rules, nodes.IntentRule{
			Category:    "mcp",
			IntentType:  "mcp_tool",
			MatchedRule: "tool:" + def.Name,
			MCPService:  def.Name,
			Keywords:    def.TriggerKeywords,
		})
	}
	return rules
}

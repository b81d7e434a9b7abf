// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the runtime settings for the cognitive graph core
// from a YAML file, applying defaults and home-directory expansion, and
// keeps LLM credentials in guarded memory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LLMConfig selects the Reasoning backend and the Layer-2 classifier.
type LLMConfig struct {
	// Backend is "openai" or "anthropic".
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`

	// ClassifierModel selects the model of the Layer-2 intent classifier on
	// the openai backend, where empty leaves Layer 2 without a classifier.
	// The anthropic backend uses its Reasoning client as the classifier and
	// ignores this field.
	ClassifierModel string `yaml:"classifier_model"`

	SystemPrompt string `yaml:"system_prompt"`
}

// IntentConfig holds the intent-recognition toggles.
type IntentConfig struct {
	Enabled       bool `yaml:"enabled"`
	Layer2Enabled bool `yaml:"layer2_enabled"`
}

// HITLConfig bounds human-in-the-loop behavior.
type HITLConfig struct {
	MaxChainDepth     int `yaml:"max_chain_depth"`
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
}

// CheckpointConfig selects and parameterizes the checkpoint store.
type CheckpointConfig struct {
	// Backend is "badger" (default, on-disk) or "gcs".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// MemoryConfig selects the long-term memory backend.
type MemoryConfig struct {
	// Backend is "weaviate" or "inmemory".
	Backend string `yaml:"backend"`
	Host    string `yaml:"host"`
	Scheme  string `yaml:"scheme"`
	Class   string `yaml:"class"`
	TopK    int    `yaml:"top_k"`
}

// ContextConfig bounds per-session state growth.
type ContextConfig struct {
	BudgetBytes int `yaml:"budget_bytes"`
	MaxHistory  int `yaml:"max_history"`
}

// InfluxConfig configures the optional transition time-series sink.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// TelemetryConfig configures tracing and metrics export.
type TelemetryConfig struct {
	// TraceExporter is "otlp", "stdout", or "off".
	TraceExporter string       `yaml:"trace_exporter"`
	OTLPEndpoint  string       `yaml:"otlp_endpoint"`
	Influx        InfluxConfig `yaml:"influx"`
}

// LoggingConfig configures the layered logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// RunnerConfig bounds the execution loop.
type RunnerConfig struct {
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`
}

// Config is the root settings document.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Intent     IntentConfig     `yaml:"intent"`
	HITL       HITLConfig       `yaml:"hitl"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Memory     MemoryConfig     `yaml:"memory"`
	Context    ContextConfig    `yaml:"context"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
	Runner     RunnerConfig     `yaml:"runner"`
}

// Default returns the built-in configuration used when no file exists.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: "127.0.0.1:8170"},
		LLM: LLMConfig{
			Backend:      "openai",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a helpful desktop assistant.",
		},
		Intent: IntentConfig{Enabled: true, Layer2Enabled: false},
		HITL:   HITLConfig{MaxChainDepth: 5, DefaultTTLSeconds: 0},
		Checkpoint: CheckpointConfig{
			Backend: "badger",
			Path:    "~/.coggraph/checkpoints",
		},
		Memory: MemoryConfig{
			Backend: "inmemory",
			Scheme:  "http",
			Host:    "localhost:8080",
			Class:   "AssistantMemory",
			TopK:    5,
		},
		Context: ContextConfig{BudgetBytes: 64 * 1024, MaxHistory: 100},
		Telemetry: TelemetryConfig{
			TraceExporter: "off",
			OTLPEndpoint:  "localhost:4317",
		},
		Logging: LoggingConfig{Level: "info"},
		Runner:  RunnerConfig{MaxConcurrentSessions: 8},
	}
}

// Load reads the YAML file at path, merged over Default. A missing file is
// not an error: the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	expanded, err := ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", expanded, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", expanded, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot start with.
func (c Config) Validate() error {
	switch c.LLM.Backend {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown llm backend %q", c.LLM.Backend)
	}
	switch c.Checkpoint.Backend {
	case "badger", "gcs":
	default:
		return fmt.Errorf("config: unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	switch c.Memory.Backend {
	case "weaviate", "inmemory":
	default:
		return fmt.Errorf("config: unknown memory backend %q", c.Memory.Backend)
	}
	if c.HITL.MaxChainDepth < 1 {
		return fmt.Errorf("config: hitl.max_chain_depth must be at least 1")
	}
	return nil
}

// IntentRecognitionEnabled implements the settings interface the Intent
// node reads its process-wide toggle through.
func (c Config) IntentRecognitionEnabled() bool { return c.Intent.Enabled }

// Layer2Enabled reports whether the LLM classifier layer is active.
func (c Config) Layer2Enabled() bool { return c.Intent.Layer2Enabled }

// CheckpointPath returns the expanded badger directory.
func (c Config) CheckpointPath() (string, error) {
	return ExpandHome(c.Checkpoint.Path)
}

// ExpandHome resolves a leading "~" to the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

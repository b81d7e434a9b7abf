// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, 5, cfg.HITL.MaxChainDepth)
	assert.True(t, cfg.IntentRecognitionEnabled())
	assert.False(t, cfg.Layer2Enabled())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  backend: anthropic
  model: claude-3-5-haiku-latest
intent:
  enabled: false
hitl:
  max_chain_depth: 3
memory:
  backend: weaviate
  host: weaviate.local:8080
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Backend)
	assert.Equal(t, 3, cfg.HITL.MaxChainDepth)
	assert.False(t, cfg.IntentRecognitionEnabled())
	assert.Equal(t, "weaviate.local:8080", cfg.Memory.Host)
	// Untouched sections keep their defaults.
	assert.Equal(t, "badger", cfg.Checkpoint.Backend)
}

func TestLoad_RejectsInvalidBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  backend: cohere\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm backend")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/x/y")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y"), got)

	got, err = ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)
}

func TestSecrets_UseAndReveal(t *testing.T) {
	t.Setenv(EnvOpenAIKey, "sk-test-123")
	s := LoadSecretsFromEnv()

	assert.True(t, s.Has(EnvOpenAIKey))
	assert.Empty(t, os.Getenv(EnvOpenAIKey), "env var must be scrubbed after capture")

	var seen string
	require.NoError(t, s.Use(EnvOpenAIKey, func(v string) error {
		seen = strings.Clone(v)
		return nil
	}))
	assert.Equal(t, "sk-test-123", seen)

	v, err := s.Reveal(EnvOpenAIKey)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-123", v)

	assert.Error(t, s.Use(EnvAnthropicKey, func(string) error { return nil }))
}

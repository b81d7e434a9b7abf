// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StderrOnly(t *testing.T) {
	l, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	defer l.Close()
	assert.NotNil(t, l.Logger)
}

func TestNew_FileSinkWritesJSON(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Level: "info", Dir: dir, Service: "testsvc"})
	require.NoError(t, err)

	l.Info("run started", "session_id", "s1")
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "testsvc_"))

	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(string(raw), "\n", 2)[0]), &rec))
	assert.Equal(t, "run started", rec["msg"])
	assert.Equal(t, "s1", rec["session_id"])
}

func TestNew_LevelFiltering(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Level: "warn", Dir: dir, Service: "lvl"})
	require.NoError(t, err)

	l.Info("should be filtered")
	l.Warn("should be written")
	require.NoError(t, l.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	raw, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "should be filtered")
	assert.Contains(t, string(raw), "should be written")
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	result, err := r.Invoke(context.Background(), "math.add", map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, result)

	_, err = r.Invoke(context.Background(), "no.such.tool", nil)
	require.Error(t, err)
}

func TestRegistry_Metadata(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	irreversible, idempotent, ok := r.Metadata("math.add")
	require.True(t, ok)
	assert.False(t, irreversible)
	assert.True(t, idempotent)

	_, _, ok = r.Metadata("missing")
	assert.False(t, ok)
}

func TestRegistry_RejectsInvalidDefinitions(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Definition{Name: ""}))
	assert.Error(t, r.Register(Definition{Name: "x"}))
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)
	names := r.Names()
	require.Len(t, names, 3)
	assert.Equal(t, []string{"echo.say", "math.add", "time.now"}, names)
}

func TestBuiltins_MathAddValidation(t *testing.T) {
	r := NewRegistry()
	RegisterBuiltins(r)

	_, err := r.Invoke(context.Background(), "math.add", map[string]any{"a": "two"})
	assert.Error(t, err)
	_, err = r.Invoke(context.Background(), "math.add", map[string]any{"a": 1.0})
	assert.Error(t, err)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tools provides an in-process tool registry satisfying the Tool
// node's invoker and metadata interfaces. The MCP transport proper is an
// external collaborator; this registry stands in for it during
// development and hosts locally implemented tools in production.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Handler executes one tool call.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition describes a registered tool. Irreversible and Idempotent feed
// the Tool node's contract bookkeeping.
type Definition struct {
	Name         string
	Description  string
	Irreversible bool
	Idempotent   bool

	// TriggerKeywords seed the Intent node's Layer 1 rules for this tool.
	TriggerKeywords []string

	Handler Handler
}

// Registry is a named set of tool definitions.
//
// Thread Safety: safe for concurrent use; registration normally happens at
// startup but is permitted at any time.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds or replaces a definition. The name must be non-empty and
// the handler non-nil.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tools: definition needs a name")
	}
	if def.Handler == nil {
		return fmt.Errorf("tools: %q needs a handler", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	return nil
}

// Invoke implements nodes.ToolInvoker.
func (r *Registry) Invoke(ctx context.Context, tool string, args map[string]any) (any, error) {
	r.mu.RLock()
	def, ok := r.defs[tool]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tools: unknown tool %q", tool)
	}
	return def.Handler(ctx, args)
}

// Metadata implements nodes.ToolMetadata.
func (r *Registry) Metadata(tool string) (irreversible, idempotent, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, found := r.defs[tool]
	return def.Irreversible, def.Idempotent, found
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions returns a copy of every definition, sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RegisterBuiltins installs the small built-in toolset used by the CLI and
// demos: arithmetic, clock, and echo.
func RegisterBuiltins(r *Registry) {
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}

	must(r.Register(Definition{
		Name:            "math.add",
		Description:     "Add two numbers a and b.",
		Idempotent:      true,
		TriggerKeywords: []string{"add", "sum", "plus"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			a, err := numberArg(args, "a")
			if err != nil {
				return nil, err
			}
			b, err := numberArg(args, "b")
			if err != nil {
				return nil, err
			}
			return a + b, nil
		},
	}))

	must(r.Register(Definition{
		Name:            "time.now",
		Description:     "Current local time in RFC 3339 format.",
		TriggerKeywords: []string{"what time", "current time"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return time.Now().Format(time.RFC3339), nil
		},
	}))

	must(r.Register(Definition{
		Name:        "echo.say",
		Description: "Echo the given text back.",
		Idempotent:  true,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			text, _ := args["text"].(string)
			return strings.TrimSpace(text), nil
		},
	}))
}

func numberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("tools: missing argument %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("tools: argument %q is not a number", key)
	}
}

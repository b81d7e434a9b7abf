// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph wires the cognitive nodes into a compiled graph with
// conditional edges and owns the execution loop that drives it,
// streaming events and checkpointing across HITL suspensions.
package graph

import (
	"fmt"

	"github.com/aleutian-ai/coggraph/nodes"
	"github.com/aleutian-ai/coggraph/state"
)

// EntryPoint selects which compiled variant of the graph a run uses.
type EntryPoint string

const (
	EntryText  EntryPoint = "text"
	EntryImage EntryPoint = "image"
)

// end is the sentinel "no next node" value returned by a route.
const end = ""

// Node names used for routing. They match each node's Name() so log lines,
// spans, and routes agree.
const (
	nodeIntent           = "intent"
	nodeEmotion          = "emotion"
	nodeMemory           = "memory"
	nodeReasoning        = "reasoning"
	nodeTool             = "tool"
	nodeHITL             = "hitl"
	nodeImage            = "image"
	nodeMemoryExtraction = "memory_extraction"
)

// Orchestrator holds the node instances and compiles them into runnable
// graphs. The text and image variants share the HITL node machinery but the
// image pipeline uses its own instance stamped with the image_memory
// contract type.
type Orchestrator struct {
	Intent    nodes.Node
	Emotion   nodes.Node
	Memory    nodes.Node
	Reasoning nodes.Node
	Tool      nodes.Node
	HITL      nodes.Node

	// Image entry variant. Image and MemoryExtraction may be nil when the
	// deployment has no OCR provider; Compile(EntryImage) then fails.
	Image            nodes.Node
	MemoryExtraction nodes.Node
	ImageHITL        nodes.Node
}

// CompiledGraph is an immutable wiring of named nodes plus a conditional
// routing function.
//
// Thread Safety: CompiledGraph is read-only after Compile and safe to share
// across sessions.
type CompiledGraph struct {
	entry string
	byName map[string]nodes.Node
	route  func(current string, gs state.GraphState) string
}

// Entry returns the name of the graph's entry node.
func (g *CompiledGraph) Entry() string { return g.entry }

// Node returns the named node, or nil when the graph has no such node.
func (g *CompiledGraph) Node(name string) nodes.Node { return g.byName[name] }

// Next returns the name of the node to run after current, or "" when the
// run ends (either normal completion or a suspension the caller detects
// through gs.Status).
func (g *CompiledGraph) Next(current string, gs state.GraphState) string {
	return g.route(current, gs)
}

// Compile wires the nodes for the given entry point.
//
// Text entry: Intent → Emotion → Memory → Reasoning → {Tool | HITL | END},
// with Tool looping back to Reasoning and HITL ending the iteration on
// suspend. Image entry: Image → MemoryExtraction → HITL → END.
func (o *Orchestrator) Compile(entry EntryPoint) (*CompiledGraph, error) {
	switch entry {
	case EntryText:
		return o.compileText()
	case EntryImage:
		return o.compileImage()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntryPoint, entry)
	}
}

func (o *Orchestrator) compileText() (*CompiledGraph, error) {
	for name, n := range map[string]nodes.Node{
		nodeIntent: o.Intent, nodeEmotion: o.Emotion, nodeMemory: o.Memory,
		nodeReasoning: o.Reasoning, nodeTool: o.Tool, nodeHITL: o.HITL,
	} {
		if n == nil {
			return nil, fmt.Errorf("graph: text graph is missing node %q", name)
		}
	}

	return &CompiledGraph{
		entry: nodeIntent,
		byName: map[string]nodes.Node{
			nodeIntent:    o.Intent,
			nodeEmotion:   o.Emotion,
			nodeMemory:    o.Memory,
			nodeReasoning: o.Reasoning,
			nodeTool:      o.Tool,
			nodeHITL:      o.HITL,
		},
		route: func(current string, gs state.GraphState) string {
			switch current {
			case nodeIntent:
				return nodeEmotion
			case nodeEmotion:
				return nodeMemory
			case nodeMemory:
				return nodeReasoning
			case nodeReasoning:
				if gs.HITLRequest != nil {
					return nodeHITL
				}
				if len(gs.PendingToolCalls) > 0 {
					return nodeTool
				}
				return end
			case nodeTool:
				return nodeReasoning
			case nodeHITL:
				// Suspension: the runner checkpoints and stops. The resume
				// path re-enters at Reasoning.
				return end
			default:
				return end
			}
		},
	}, nil
}

func (o *Orchestrator) compileImage() (*CompiledGraph, error) {
	if o.Image == nil || o.MemoryExtraction == nil {
		return nil, fmt.Errorf("graph: image graph requires Image and MemoryExtraction nodes")
	}
	hitl := o.ImageHITL
	if hitl == nil {
		hitl = o.HITL
	}
	if hitl == nil {
		return nil, fmt.Errorf("graph: image graph is missing a HITL node")
	}

	return &CompiledGraph{
		entry: nodeImage,
		byName: map[string]nodes.Node{
			nodeImage:            o.Image,
			nodeMemoryExtraction: o.MemoryExtraction,
			nodeHITL:             hitl,
		},
		route: func(current string, gs state.GraphState) string {
			switch current {
			case nodeImage:
				return nodeMemoryExtraction
			case nodeMemoryExtraction:
				if gs.HITLRequest != nil {
					return nodeHITL
				}
				return end
			default:
				return end
			}
		},
	}, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"log/slog"
	"strings"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/memory"
	"github.com/aleutian-ai/coggraph/state"
)

// defaultMemoryTopK is used when MemoryNode.TopK is not set.
const defaultMemoryTopK = 5

// MemoryNode retrieves relevant long-term memories and syncs them into
// working memory. A retrieval failure degrades gracefully to an
// empty result set rather than failing the turn, since memory is an
// external collaborator whose outage shouldn't block
// conversation.
type MemoryNode struct {
	Store  memory.LongTermStore
	TopK   int
	Logger *slog.Logger
}

// NewMemoryNode constructs a MemoryNode. A zero topK uses defaultMemoryTopK.
func NewMemoryNode(store memory.LongTermStore, topK int, logger *slog.Logger) *MemoryNode {
	if topK <= 0 {
		topK = defaultMemoryTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryNode{Store: store, TopK: topK, Logger: logger}
}

func (n *MemoryNode) Name() string { return "memory" }

func (n *MemoryNode) Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error) {
	if n.Store == nil || strings.TrimSpace(gs.SemanticInput.Text) == "" {
		return state.StateUpdate{WorkingMemory: &state.WorkingMemory{}}, nil
	}

	refs, err := n.Store.Query(ctx, gs.SessionID, gs.SemanticInput.Text, n.TopK)
	if err != nil {
		n.Logger.Warn("memory: query failed, continuing with no memories",
			slog.String("session_id", gs.SessionID), slog.Any("error", err))
		return state.StateUpdate{WorkingMemory: &state.WorkingMemory{}}, nil
	}

	if len(refs) > 0 {
		ids := make([]string, len(refs))
		for i, r := range refs {
			ids[i] = r.ID
		}
		if err := n.Store.RecordAccess(ctx, ids); err != nil {
			n.Logger.Warn("memory: record access failed",
				slog.String("session_id", gs.SessionID), slog.Any("error", err))
		}
	}

	return state.StateUpdate{WorkingMemory: &state.WorkingMemory{
		RetrievedMemories: refs,
		Summary:           summarizeMemories(refs),
	}}, nil
}

func summarizeMemories(refs []state.MemoryReference) string {
	if len(refs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range refs {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString("[" + r.Category + "] " + r.Summary)
	}
	return b.String()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"testing"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/memory"
	"github.com/aleutian-ai/coggraph/state"
)

type constantEmbedder struct{}

func (constantEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func TestMemoryNode_PopulatesWorkingMemoryAndRecordsAccess(t *testing.T) {
	store := memory.NewInMemoryStore(constantEmbedder{})
	id, err := store.Upsert(context.Background(), "s1", "fact", "likes coffee", "user likes coffee")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n := NewMemoryNode(store, 5, nil)
	gs := state.NewGraphState("s1", nil, 0)
	gs.SemanticInput.Text = "what do I like to drink"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(update.WorkingMemory.RetrievedMemories) != 1 {
		t.Fatalf("expected 1 retrieved memory, got %d", len(update.WorkingMemory.RetrievedMemories))
	}
	if update.WorkingMemory.Summary == "" {
		t.Fatal("expected non-empty summary")
	}
	if store.AccessCount(id) != 1 {
		t.Fatalf("expected RecordAccess to have run, got count %d", store.AccessCount(id))
	}
}

func TestMemoryNode_EmptyTextReturnsEmptyWorkingMemory(t *testing.T) {
	store := memory.NewInMemoryStore(constantEmbedder{})
	n := NewMemoryNode(store, 5, nil)
	gs := state.NewGraphState("s1", nil, 0)

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(update.WorkingMemory.RetrievedMemories) != 0 {
		t.Fatalf("expected no memories for empty text, got %+v", update.WorkingMemory.RetrievedMemories)
	}
}

func TestMemoryNode_NoStoreDegradesGracefully(t *testing.T) {
	n := NewMemoryNode(nil, 5, nil)
	gs := state.NewGraphState("s1", nil, 0)
	gs.SemanticInput.Text = "anything"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(update.WorkingMemory.RetrievedMemories) != 0 {
		t.Fatalf("expected empty working memory with no store, got %+v", update.WorkingMemory)
	}
}

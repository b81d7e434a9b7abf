// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory abstracts the long-term memory collaborator the Memory
// node retrieves from and the MemoryExtraction path writes to. Persistence
// itself is an external collaborator; the core only
// depends on the narrow LongTermStore interface below.
package memory

import (
	"context"

	"github.com/aleutian-ai/coggraph/state"
)

// Embedder produces a vector embedding for a piece of text. Retrieval and
// upsert both depend on it; it is a separate interface from LongTermStore
// because some backends embed server-side.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LongTermStore is the interface the Memory node and MemoryExtraction
// depend on.
type LongTermStore interface {
	// Query returns the topK memories most relevant to text, scored and
	// ordered descending by relevance.
	Query(ctx context.Context, sessionID, text string, topK int) ([]state.MemoryReference, error)

	// RecordAccess updates per-memory access statistics for every id in
	// ids. Called after a retrieval whose results were actually surfaced
	// to Reasoning.
	RecordAccess(ctx context.Context, ids []string) error

	// Upsert persists a new long-term memory and returns its id.
	Upsert(ctx context.Context, sessionID string, category string, summary string, content string) (id string, err error)
}

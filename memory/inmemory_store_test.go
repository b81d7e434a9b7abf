// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"strings"
	"testing"
)

// hashEmbedder is a deterministic, dependency-free Embedder for tests: it
// buckets words into a small fixed-size vector by byte sum, so texts
// sharing words score more similar than unrelated texts.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 16)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := 0
		for _, r := range word {
			sum += int(r)
		}
		vec[sum%len(vec)]++
	}
	return vec, nil
}

func TestInMemoryStore_QueryScopesBySessionAndRanksBySimilarity(t *testing.T) {
	store := NewInMemoryStore(hashEmbedder{})
	ctx := context.Background()

	idA, err := store.Upsert(ctx, "sess-1", "fact", "likes coffee", "user likes coffee in the morning")
	if err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	_, err = store.Upsert(ctx, "sess-1", "fact", "dislikes broccoli", "user dislikes broccoli intensely")
	if err != nil {
		t.Fatalf("upsert b: %v", err)
	}
	_, err = store.Upsert(ctx, "sess-2", "fact", "other session", "unrelated memory in another session")
	if err != nil {
		t.Fatalf("upsert c: %v", err)
	}

	results, err := store.Query(ctx, "sess-1", "user likes coffee in the morning", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results scoped to sess-1, got %d", len(results))
	}
	if results[0].ID != idA {
		t.Fatalf("expected closest match first, got %+v", results[0])
	}
}

func TestInMemoryStore_QueryRespectsTopK(t *testing.T) {
	store := NewInMemoryStore(hashEmbedder{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := store.Upsert(ctx, "sess-1", "fact", "summary", "some memory content"); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	results, err := store.Query(ctx, "sess-1", "some memory content", 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(results))
	}
}

func TestInMemoryStore_RecordAccessIncrementsCounter(t *testing.T) {
	store := NewInMemoryStore(hashEmbedder{})
	ctx := context.Background()
	id, err := store.Upsert(ctx, "sess-1", "fact", "summary", "content")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.RecordAccess(ctx, []string{id}); err != nil {
		t.Fatalf("record access: %v", err)
	}
	if err := store.RecordAccess(ctx, []string{id}); err != nil {
		t.Fatalf("record access: %v", err)
	}
	if got := store.AccessCount(id); got != 2 {
		t.Fatalf("expected access count 2, got %d", got)
	}
}

func TestCosineSimilarity_IdenticalVectorsScoreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosineSimilarity(v, v); got < 0.999 {
		t.Fatalf("expected similarity ~1 for identical vectors, got %f", got)
	}
}

func TestCosineSimilarity_MismatchedLengthsScoreZero(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("expected 0 for mismatched lengths, got %f", got)
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/aleutian-ai/coggraph/state"
)

type inMemoryRecord struct {
	id          string
	sessionID   string
	category    string
	summary     string
	content     string
	vector      []float32
	accessCount int
}

// InMemoryStore is a process-local LongTermStore used in tests and in
// single-process demos where no Weaviate instance is available. It scores
// memories by cosine similarity over embeddings from the same Embedder the
// real backend would use.
type InMemoryStore struct {
	mu       sync.Mutex
	embedder Embedder
	records  []*inMemoryRecord
	nextID   int
}

// NewInMemoryStore constructs an empty store backed by embedder.
func NewInMemoryStore(embedder Embedder) *InMemoryStore {
	return &InMemoryStore{embedder: embedder}
}

func (s *InMemoryStore) Query(ctx context.Context, sessionID, text string, topK int) ([]state.MemoryReference, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		rec   *inMemoryRecord
		score float64
	}
	var candidates []scored
	for _, r := range s.records {
		if r.sessionID != sessionID {
			continue
		}
		candidates = append(candidates, scored{rec: r, score: cosineSimilarity(vector, r.vector)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]state.MemoryReference, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, state.MemoryReference{
			ID:       c.rec.id,
			Category: c.rec.category,
			Summary:  c.rec.summary,
			Score:    c.score,
		})
	}
	return out, nil
}

func (s *InMemoryStore) RecordAccess(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, r := range s.records {
		if want[r.id] {
			r.accessCount++
		}
	}
	return nil
}

func (s *InMemoryStore) Upsert(ctx context.Context, sessionID, category, summary, content string) (string, error) {
	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := idFromCounter(s.nextID)
	s.records = append(s.records, &inMemoryRecord{
		id:        id,
		sessionID: sessionID,
		category:  category,
		summary:   summary,
		content:   content,
		vector:    vector,
	})
	return id, nil
}

// AccessCount exposes the current access_count for a memory id, used by
// tests to verify RecordAccess ran.
func (s *InMemoryStore) AccessCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.id == id {
			return r.accessCount
		}
	}
	return 0
}

func idFromCounter(n int) string {
	const digits = "0123456789abcdef"
	if n == 0 {
		return "mem-0"
	}
	buf := make([]byte, 0, 8)
	for n > 0 {
		buf = append([]byte{digits[n%16]}, buf...)
		n /= 16
	}
	return "mem-" + string(buf)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ LongTermStore = (*InMemoryStore)(nil)

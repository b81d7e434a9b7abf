// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/aleutian-ai/coggraph/state"
)

// MemoryClassName is the Weaviate class long-term memories are stored
// under.
const MemoryClassName = "CoreMemory"

// WeaviateStore implements LongTermStore against a Weaviate instance.
type WeaviateStore struct {
	client   *weaviate.Client
	embedder Embedder
}

// NewWeaviateStore wraps an existing client. host/scheme construction
// (e.g. weaviate.NewClient(weaviate.Config{Host: ..., Scheme: ...})) is the
// caller's responsibility, same as the rest of this codebase's Weaviate
// wiring.
func NewWeaviateStore(client *weaviate.Client, embedder Embedder) *WeaviateStore {
	return &WeaviateStore{client: client, embedder: embedder}
}

// EnsureSchema creates the CoreMemory class if the instance does not have
// it yet. Vectors are supplied by the core's Embedder, so the class is
// configured with no server-side vectorizer.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(MemoryClassName).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("memory: check schema: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       MemoryClassName,
		Description: "Long-term assistant memories, one object per memory",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "session_id", DataType: []string{"text"}},
			{Name: "category", DataType: []string{"text"}},
			{Name: "summary", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "access_count", DataType: []string{"int"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("memory: create class %s: %w", MemoryClassName, err)
	}
	return nil
}

type memoryQueryResponse struct {
	Get struct {
		CoreMemory []struct {
			SessionID  string `json:"session_id"`
			Category   string `json:"category"`
			Summary    string `json:"summary"`
			Content    string `json:"content"`
			Additional struct {
				ID       string  `json:"id"`
				Distance float32 `json:"distance"`
			} `json:"_additional"`
		} `json:"CoreMemory"`
	} `json:"Get"`
}

func (s *WeaviateStore) Query(ctx context.Context, sessionID, text string, topK int) ([]state.MemoryReference, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	where := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	resp, err := s.client.GraphQL().Get().
		WithClassName(MemoryClassName).
		WithNearVector(nearVector).
		WithWhere(where).
		WithLimit(topK).
		WithFields(
			graphql.Field{Name: "session_id"},
			graphql.Field{Name: "category"},
			graphql.Field{Name: "summary"},
			graphql.Field{Name: "content"},
			graphql.Field{Name: "_additional", Fields: []graphql.Field{
				{Name: "id"}, {Name: "distance"},
			}},
		).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: query weaviate: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("memory: weaviate graphql errors: %v", resp.Errors)
	}

	parsed, err := parseGraphQLResponse[memoryQueryResponse](resp.Data)
	if err != nil {
		return nil, fmt.Errorf("memory: parse query response: %w", err)
	}

	out := make([]state.MemoryReference, 0, len(parsed.Get.CoreMemory))
	for _, r := range parsed.Get.CoreMemory {
		out = append(out, state.MemoryReference{
			ID:       r.Additional.ID,
			Category: r.Category,
			Summary:  r.Summary,
			Score:    1 - float64(r.Additional.Distance),
		})
	}
	return out, nil
}

func (s *WeaviateStore) RecordAccess(ctx context.Context, ids []string) error {
	for _, id := range ids {
		existing, err := s.client.Data().ObjectsGetter().
			WithClassName(MemoryClassName).
			WithID(id).
			Do(ctx)
		if err != nil || len(existing) == 0 {
			continue
		}

		count := 0
		if raw, ok := existing[0].Properties.(map[string]any)["access_count"]; ok {
			if f, ok := raw.(float64); ok {
				count = int(f)
			}
		}

		err = s.client.Data().Updater().
			WithClassName(MemoryClassName).
			WithID(id).
			WithMerge().
			WithProperties(map[string]any{"access_count": count + 1}).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("memory: record access for %s: %w", id, err)
		}
	}
	return nil
}

func (s *WeaviateStore) Upsert(ctx context.Context, sessionID, category, summary, content string) (string, error) {
	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", fmt.Errorf("memory: embed upsert content: %w", err)
	}

	id := uuid.New().String()
	_, err = s.client.Data().Creator().
		WithClassName(MemoryClassName).
		WithID(id).
		WithProperties(map[string]any{
			"session_id":   sessionID,
			"category":     category,
			"summary":      summary,
			"content":      content,
			"access_count": 0,
		}).
		WithVector(vector).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("memory: upsert to weaviate: %w", err)
	}
	return id, nil
}

// parseGraphQLResponse converts Weaviate's dynamic GraphQL response data
// into a strongly-typed struct via a JSON marshal/unmarshal round trip.
func parseGraphQLResponse[T any](data map[string]models.JSONObject) (*T, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql data: %w", err)
	}
	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal graphql data: %w", err)
	}
	return &result, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := OpenBadgerStore(InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("open badger store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBadgerStore_SaveLoadDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := Record{SessionID: "sess-1", StateJSON: []byte(`{"a":1}`), CreatedAt: time.Unix(0, 0), UpdatedAt: time.Unix(0, 0)}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(loaded.StateJSON) != `{"a":1}` {
		t.Fatalf("unexpected state json: %s", loaded.StateJSON)
	}

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "sess-1"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound after delete, got %v", err)
	}
}

func TestBadgerStore_LoadMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}
}

func TestBadgerStore_SaveReplacesPreservingCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Unix(100, 0)
	if err := store.Save(ctx, Record{SessionID: "sess-1", StateJSON: []byte(`{"v":1}`), CreatedAt: created, UpdatedAt: created}); err != nil {
		t.Fatalf("initial save: %v", err)
	}

	updated := time.Unix(200, 0)
	if err := store.Save(ctx, Record{SessionID: "sess-1", StateJSON: []byte(`{"v":2}`), CreatedAt: updated, UpdatedAt: updated}); err != nil {
		t.Fatalf("replace save: %v", err)
	}

	loaded, err := store.Load(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(loaded.StateJSON) != `{"v":2}` {
		t.Fatalf("expected replaced state json, got %s", loaded.StateJSON)
	}
	if !loaded.CreatedAt.Equal(created) {
		t.Fatalf("expected created_at preserved as %v, got %v", created, loaded.CreatedAt)
	}
}

func TestBadgerStore_DeleteMissingIsNotError(t *testing.T) {
	store := newTestStore(t)
	if err := store.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("expected no error deleting missing session, got %v", err)
	}
}

func TestOpenBadgerStore_RequiresPathWhenNotInMemory(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	if err == nil {
		t.Fatal("expected an error when neither Path nor InMemory is set")
	}
}

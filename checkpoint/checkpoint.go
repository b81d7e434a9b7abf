// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package checkpoint persists and restores GraphState across suspend/resume
// boundaries, keyed by session_id. At most one checkpoint exists per
// session; every write is a full replacement of the prior one.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrCheckpointNotFound is returned by Load when no checkpoint exists for
// the given session_id (surfaced to /continue callers as HTTP 404).
var ErrCheckpointNotFound = errors.New("checkpoint: not found")

// ErrCheckpointSaveFailed wraps any underlying storage error from Save. The
// runner treats this as fatal for the current call but leaves the
// in-memory contract in WAITING so a later resume can be retried.
var ErrCheckpointSaveFailed = errors.New("checkpoint: save failed")

// Record is the persisted envelope for one session's checkpoint:
// {session_id, state_json, created_at, updated_at}.
type Record struct {
	SessionID string    `json:"session_id"`
	StateJSON []byte    `json:"state_json"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the narrow persistence interface the runner depends on. It is
// satisfied by BadgerStore (default, on-disk) and GCSStore (cloud-backed
// alternate), so the runner never imports either implementation directly.
type Store interface {
	// Save upserts the checkpoint for record.SessionID, replacing any prior
	// value. On failure it returns an error wrapping ErrCheckpointSaveFailed.
	Save(ctx context.Context, record Record) error

	// Load returns the checkpoint for sessionID, or an error wrapping
	// ErrCheckpointNotFound if none exists.
	Load(ctx context.Context, sessionID string) (Record, error)

	// Delete removes any checkpoint for sessionID. Deleting a session with
	// no checkpoint is not an error.
	Delete(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}

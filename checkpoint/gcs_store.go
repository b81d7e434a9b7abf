// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore is the cloud-backed alternate checkpoint.Store: each session's
// checkpoint is one object at "<prefix>/<session_id>.json" in a bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore wraps an existing storage.Client. bucket must already exist;
// prefix is prepended to every object key (no leading/trailing slash
// required).
func NewGCSStore(client *storage.Client, bucket, prefix string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *GCSStore) objectName(sessionID string) string {
	if s.prefix == "" {
		return sessionID + ".json"
	}
	return s.prefix + "/" + sessionID + ".json"
}

func (s *GCSStore) Save(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointSaveFailed, err)
	}

	obj := s.client.Bucket(s.bucket).Object(s.objectName(record.SessionID))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("%w: write object: %v", ErrCheckpointSaveFailed, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close writer: %v", ErrCheckpointSaveFailed, err)
	}
	return nil
}

func (s *GCSStore) Load(ctx context.Context, sessionID string) (Record, error) {
	obj := s.client.Bucket(s.bucket).Object(s.objectName(sessionID))
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Record{}, ErrCheckpointNotFound
		}
		return Record{}, fmt.Errorf("checkpoint: open gcs reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return Record{}, fmt.Errorf("checkpoint: read gcs object: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("checkpoint: unmarshal gcs object: %w", err)
	}
	return record, nil
}

func (s *GCSStore) Delete(ctx context.Context, sessionID string) error {
	obj := s.client.Bucket(s.bucket).Object(s.objectName(sessionID))
	if err := obj.Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("checkpoint: delete gcs object: %w", err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

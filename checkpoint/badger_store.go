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
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig mirrors the options a production deployment cares about:
// on-disk path, write durability, and background GC cadence.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	GCInterval time.Duration
	GCRatio    float64
}

// DefaultBadgerConfig is the durable, on-disk configuration.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:       path,
		SyncWrites: true,
		GCInterval: 5 * time.Minute,
		GCRatio:    0.5,
	}
}

// InMemoryBadgerConfig is suitable for tests and single-process demos.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

const badgerKeyPrefix = "checkpoint:"

// BadgerStore is the default checkpoint.Store, backed by an embedded
// BadgerDB instance. Keys are "checkpoint:<session_id>"; values are the
// JSON produced by Marshal.
type BadgerStore struct {
	db       *badger.DB
	gcCancel context.CancelFunc
}

// OpenBadgerStore opens (creating if necessary) a BadgerDB at cfg.Path, or
// an in-memory instance when cfg.InMemory is set.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("checkpoint: path is required for a persistent badger store")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open badger db: %w", err)
	}

	s := &BadgerStore{db: db}
	if cfg.GCInterval > 0 {
		s.startGC(cfg.GCInterval, cfg.GCRatio)
	}
	return s, nil
}

func (s *BadgerStore) startGC(interval time.Duration, ratio float64) {
	ctx, cancel := context.WithCancel(context.Background())
	s.gcCancel = cancel
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for s.db.RunValueLogGC(ratio) == nil {
				}
			}
		}
	}()
}

func (s *BadgerStore) Save(ctx context.Context, record Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointSaveFailed, err)
	}

	existing, err := s.Load(ctx, record.SessionID)
	if err == nil {
		record.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrCheckpointNotFound) {
		return fmt.Errorf("%w: %v", ErrCheckpointSaveFailed, err)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointSaveFailed, err)
	}

	key := []byte(badgerKeyPrefix + record.SessionID)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointSaveFailed, err)
	}
	return nil
}

func (s *BadgerStore) Load(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var record Record
	key := []byte(badgerKeyPrefix + sessionID)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrCheckpointNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if errors.Is(err, ErrCheckpointNotFound) {
			return Record{}, ErrCheckpointNotFound
		}
		return Record{}, fmt.Errorf("checkpoint: load from badger: %w", err)
	}
	return record, nil
}

func (s *BadgerStore) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(badgerKeyPrefix + sessionID)
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("checkpoint: delete from badger: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.gcCancel != nil {
		s.gcCancel()
	}
	return s.db.Close()
}

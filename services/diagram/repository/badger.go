// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// diagramKeyPrefix namespaces diagram snapshots inside the shared database.
const diagramKeyPrefix = "diagram:"

// BadgerConfig holds configuration for the Badger-backed repository.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Required unless InMemory.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites a
	// value log file.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns production defaults: sync writes on, GC every
// five minutes at a 0.5 discard ratio.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns a configuration for tests: in-memory mode,
// async writes, GC disabled.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerRepository persists diagram snapshots in an embedded BadgerDB.
//
// Snapshots are stored as JSON under "diagram:<id>". The repository owns the
// database handle and an optional GC loop; Close stops GC and closes the
// database.
type BadgerRepository struct {
	db     *badger.DB
	logger *slog.Logger
	gcStop chan struct{}
	gcDone chan struct{}
}

// OpenBadgerRepository opens (and if needed creates) the database and starts
// the GC loop when configured.
func OpenBadgerRepository(cfg BadgerConfig) (*BadgerRepository, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	repo := &BadgerRepository{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		repo.gcStop = make(chan struct{})
		repo.gcDone = make(chan struct{})
		go repo.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return repo, nil
}

// DB exposes the underlying database so the command journal can share it.
func (r *BadgerRepository) DB() *badger.DB { return r.db }

// Close stops the GC loop and closes the database.
func (r *BadgerRepository) Close() error {
	if r.gcStop != nil {
		close(r.gcStop)
		<-r.gcDone
	}
	return r.db.Close()
}

func (r *BadgerRepository) runGC(interval time.Duration, ratio float64) {
	defer close(r.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing
			// to collect; that is the common case, not a failure.
			err := r.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("badger value log GC failed", "error", err)
			}
		case <-r.gcStop:
			return
		}
	}
}

func diagramKey(id string) []byte {
	return []byte(diagramKeyPrefix + id)
}

func (r *BadgerRepository) FindByID(_ context.Context, diagramID string) (*domain.DiagramAggregate, error) {
	var snap domain.DiagramSnapshot
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(diagramKey(diagramID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrDiagramNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load diagram %s: %w", diagramID, err)
	}
	return domain.RestoreDiagramAggregate(snap), nil
}

func (r *BadgerRepository) Save(_ context.Context, agg *domain.DiagramAggregate) error {
	key := diagramKey(agg.ID())
	data, err := json.Marshal(agg.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal diagram %s: %w", agg.ID(), err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrDiagramNotFound
	}
	return err
}

func (r *BadgerRepository) Create(_ context.Context, agg *domain.DiagramAggregate) error {
	key := diagramKey(agg.ID())
	data, err := json.Marshal(agg.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal diagram %s: %w", agg.ID(), err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrDiagramExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

func (r *BadgerRepository) Delete(_ context.Context, diagramID string) error {
	key := diagramKey(diagramID)
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrDiagramNotFound
	}
	return err
}

func (r *BadgerRepository) List(_ context.Context) ([]domain.DiagramSnapshot, error) {
	var out []domain.DiagramSnapshot
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(diagramKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var snap domain.DiagramSnapshot
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &snap)
			})
			if err != nil {
				return err
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list diagrams: %w", err)
	}
	return out, nil
}

var _ Repository = (*BadgerRepository)(nil)

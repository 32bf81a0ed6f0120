// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package journal provides an append-only BadgerDB log of executed commands.
//
// The serialization middleware appends every dispatched command to the
// journal as JSON. The journal is an audit and debugging surface, not a
// source of truth: appends are best-effort and a journal failure never fails
// the user's edit. Replay reads a diagram's commands back in sequence order.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// ErrJournalClosed is returned when operations are called after Close.
var ErrJournalClosed = errors.New("journal is closed")

const journalKeyPrefix = "journal:"

// Record is one journaled command.
type Record struct {
	// Sequence is the journal-wide append order, starting at 1.
	Sequence uint64 `json:"sequence"`

	// CommandID, CommandType, DiagramID, UserID, OperationID mirror the
	// command envelope for filtering without unmarshalling the payload.
	CommandID   string             `json:"command_id"`
	CommandType domain.CommandType `json:"command_type"`
	DiagramID   string             `json:"diagram_id"`
	UserID      string             `json:"user_id"`
	OperationID string             `json:"operation_id,omitempty"`

	// Timestamp is the append time.
	Timestamp time.Time `json:"timestamp"`

	// Payload is the full command serialized as JSON.
	Payload json.RawMessage `json:"payload"`
}

// CommandJournal appends command records to a shared BadgerDB.
//
// Keys are "journal:<big-endian sequence>" so a prefix iteration yields
// append order. The sequence counter is restored from the last key at open.
type CommandJournal struct {
	mu     sync.Mutex
	db     *badger.DB
	seq    uint64
	closed bool
	logger *slog.Logger
}

// New opens a journal over the given database handle. The handle is shared
// with the repository; the journal does not own or close it.
func New(db *badger.DB, logger *slog.Logger) (*CommandJournal, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &CommandJournal{db: db, logger: logger}
	if err := j.restoreSequence(); err != nil {
		return nil, fmt.Errorf("restore journal sequence: %w", err)
	}
	return j, nil
}

// restoreSequence scans backwards for the highest existing sequence number.
func (j *CommandJournal) restoreSequence() error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(journalKeyPrefix)
		// Seek past the prefix range, then step back into it.
		seekKey := append(append([]byte{}, prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seekKey)
		if it.ValidForPrefix(prefix) {
			key := it.Item().Key()
			if len(key) == len(prefix)+8 {
				j.seq = binary.BigEndian.Uint64(key[len(prefix):])
			}
		}
		return nil
	})
}

func journalKey(seq uint64) []byte {
	key := make([]byte, len(journalKeyPrefix)+8)
	copy(key, journalKeyPrefix)
	binary.BigEndian.PutUint64(key[len(journalKeyPrefix):], seq)
	return key
}

// Append journals one command. Marshal or write failures are returned to
// the caller (the serialization middleware), which logs and continues.
func (j *CommandJournal) Append(ctx context.Context, cmd domain.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command %s: %w", cmd.Meta().CommandID, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}

	seq := j.seq + 1
	meta := cmd.Meta()
	record := Record{
		Sequence:    seq,
		CommandID:   meta.CommandID,
		CommandType: cmd.Type(),
		DiagramID:   meta.DiagramID,
		UserID:      meta.UserID,
		OperationID: meta.OperationID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal journal record: %w", err)
	}

	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(seq), data)
	})
	if err != nil {
		return fmt.Errorf("append journal record %d: %w", seq, err)
	}
	j.seq = seq
	return nil
}

// Replay returns all records for a diagram in append order. An empty
// diagramID returns every record.
func (j *CommandJournal) Replay(ctx context.Context, diagramID string) ([]Record, error) {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil, ErrJournalClosed
	}
	j.mu.Unlock()

	var out []Record
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(journalKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("decode journal record: %w", err)
			}
			if diagramID == "" || record.DiagramID == diagramID {
				out = append(out, record)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close marks the journal closed. The shared database handle is left open
// for its owner to close.
func (j *CommandJournal) Close() {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()
}

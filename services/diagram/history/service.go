// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package history maintains bounded undo and redo stacks of command/inverse
// pairs and replays them through the command bus.
//
// The service never throws for undo or redo failures: a failed replay puts
// the popped entry back on its source stack and reports false. History is
// in-memory only and scoped to the current editing session; loading a
// different diagram clears it.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// Entry pairs an executed command with its inverse.
type Entry struct {
	ID          string
	Command     domain.Command
	Inverse     domain.Command
	Timestamp   time.Time
	OperationID string
	Author      string
}

// State is the observable undo/redo state exposed to the API layer.
type State struct {
	UndoCount int  `json:"undo_count"`
	RedoCount int  `json:"redo_count"`
	CanUndo   bool `json:"can_undo"`
	CanRedo   bool `json:"can_redo"`
}

// Config bounds the undo stack.
type Config struct {
	// MaxSize is the size the undo stack is trimmed down to.
	MaxSize int

	// CleanupThreshold is the size that triggers trimming. Keeping it
	// above MaxSize amortizes the copy instead of shifting on every push.
	CleanupThreshold int
}

// DefaultConfig returns the production defaults: 50 entries, cleanup at 60.
func DefaultConfig() Config {
	return Config{MaxSize: 50, CleanupThreshold: 60}
}

// Service owns the undo and redo stacks for one editing session.
//
// # Thread Safety
//
// Stack state is mutex-protected so observers may read counters from other
// goroutines, but undo/redo correctness relies on the single-caller
// sequential dispatch the service boundary enforces.
type Service struct {
	mu       sync.Mutex
	undo     []Entry
	redo     []Entry
	cfg      Config
	executor bus.Executor
	logger   *slog.Logger
	observer func(State)
}

// NewService creates a history service replaying through executor.
func NewService(cfg Config, executor bus.Executor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSize <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.CleanupThreshold < cfg.MaxSize {
		cfg.CleanupThreshold = cfg.MaxSize
	}
	return &Service{cfg: cfg, executor: executor, logger: logger}
}

// SetObserver installs a callback invoked (outside the lock) whenever the
// observable state changes. Used by the websocket layer to push undo/redo
// availability to clients.
func (s *Service) SetObserver(fn func(State)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// RecordCommand pushes a new entry onto the undo stack and trims it once the
// cleanup threshold is exceeded. Trimmed entries are discarded oldest-first
// and are unrecoverable.
func (s *Service) RecordCommand(cmd, inverse domain.Command, operationID string) {
	s.mu.Lock()
	s.undo = append(s.undo, Entry{
		ID:          uuid.New().String(),
		Command:     cmd,
		Inverse:     inverse,
		Timestamp:   time.Now().UTC(),
		OperationID: operationID,
		Author:      cmd.Meta().UserID,
	})
	if len(s.undo) > s.cfg.CleanupThreshold {
		dropped := len(s.undo) - s.cfg.MaxSize
		s.undo = append(s.undo[:0:0], s.undo[dropped:]...)
		s.logger.Debug("history trimmed", "dropped", dropped, "remaining", len(s.undo))
	}
	s.mu.Unlock()
	s.notifyObserver()
}

// Undo pops the newest entry and executes its inverse through the bus. On
// success the entry moves to the redo stack. On failure the entry is
// restored to the undo stack and false is returned; Undo never panics and
// never propagates the replay error.
func (s *Service) Undo(ctx context.Context) bool {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return false
	}
	entry := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.mu.Unlock()

	_, err := s.executor.Execute(ctx, entry.Inverse.ForReplay())

	s.mu.Lock()
	if err != nil {
		s.undo = append(s.undo, entry)
		s.mu.Unlock()
		s.logger.Warn("undo failed, entry restored",
			"entry_id", entry.ID,
			"command_type", string(entry.Command.Type()),
			"error", err)
		s.notifyObserver()
		return false
	}
	s.redo = append(s.redo, entry)
	s.mu.Unlock()
	s.notifyObserver()
	return true
}

// Redo pops the newest redo entry and re-executes its original command. On
// success the entry moves back to the undo stack; on failure it is restored
// to the redo stack and false is returned.
func (s *Service) Redo(ctx context.Context) bool {
	s.mu.Lock()
	if len(s.redo) == 0 {
		s.mu.Unlock()
		return false
	}
	entry := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.mu.Unlock()

	_, err := s.executor.Execute(ctx, entry.Command.ForReplay())

	s.mu.Lock()
	if err != nil {
		s.redo = append(s.redo, entry)
		s.mu.Unlock()
		s.logger.Warn("redo failed, entry restored",
			"entry_id", entry.ID,
			"command_type", string(entry.Command.Type()),
			"error", err)
		s.notifyObserver()
		return false
	}
	s.undo = append(s.undo, entry)
	s.mu.Unlock()
	s.notifyObserver()
	return true
}

// ClearRedoStack discards all redo entries. Invoked whenever a new
// recordable command executes, so there is no redo branching.
func (s *Service) ClearRedoStack() {
	s.mu.Lock()
	changed := len(s.redo) > 0
	s.redo = nil
	s.mu.Unlock()
	if changed {
		s.notifyObserver()
	}
}

// Clear wipes both stacks, e.g. when a different diagram is loaded.
func (s *Service) Clear() {
	s.mu.Lock()
	s.undo = nil
	s.redo = nil
	s.mu.Unlock()
	s.notifyObserver()
}

// CurrentState returns the observable counters.
func (s *Service) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		UndoCount: len(s.undo),
		RedoCount: len(s.redo),
		CanUndo:   len(s.undo) > 0,
		CanRedo:   len(s.redo) > 0,
	}
}

// Entries returns a copy of the undo stack, oldest first. Exposed for the
// history inspection endpoint.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.undo))
	copy(out, s.undo)
	return out
}

func (s *Service) notifyObserver() {
	s.mu.Lock()
	fn := s.observer
	state := State{
		UndoCount: len(s.undo),
		RedoCount: len(s.redo),
		CanUndo:   len(s.undo) > 0,
		CanRedo:   len(s.redo) > 0,
	}
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package bus routes commands through an ordered middleware pipeline to the
// handler registered for the command type.
//
// The bus owns two explicit registries: the handler map (exactly one handler
// per command type) and the middleware list (ordered by ascending priority,
// insertion order breaking ties). Dispatch composes the middleware into an
// onion around the handler via a right fold; the composed chain is cached per
// command type and invalidated whenever registration changes.
//
// All handler and middleware errors propagate to the caller unmodified; the
// bus never suppresses an error.
package bus

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// Result is the outcome of a successfully handled command.
type Result struct {
	// Success is true when the handler committed the command.
	Success bool `json:"success"`

	// DiagramID identifies the aggregate the command was applied to.
	DiagramID string `json:"diagram_id"`

	// Events are the domain events committed by this command, in emission
	// order. A composite result carries the flattened sub-events.
	Events []domain.DomainEvent `json:"events"`

	// Snapshot is the aggregate state after the command was applied.
	Snapshot domain.DiagramSnapshot `json:"snapshot"`
}

// Handler executes one command type against the domain.
type Handler interface {
	// CommandType returns the single type this handler is registered for.
	CommandType() domain.CommandType

	// Handle loads the aggregate, applies the command, persists, and
	// returns the committed events and resulting snapshot.
	Handle(ctx context.Context, cmd domain.Command) (*Result, error)
}

// Next forwards a command to the remainder of the pipeline.
type Next func(ctx context.Context, cmd domain.Command) (*Result, error)

// Middleware intercepts command dispatch.
//
// A middleware may transform the command before forwarding or react to the
// result or error, but must not change routing: the command it forwards is
// dispatched to the handler for the (possibly transformed) command's type by
// the chain it was composed into.
type Middleware interface {
	// Name identifies the middleware in logs.
	Name() string

	// Priority orders the middleware; lower priorities run first (outermost).
	Priority() int

	// Execute wraps the rest of the pipeline.
	Execute(ctx context.Context, cmd domain.Command, next Next) (*Result, error)
}

// Executor is the narrow dispatch contract consumed by collaborators that
// must execute commands without owning the bus (history service, composite
// handler). *CommandBus satisfies it.
type Executor interface {
	Execute(ctx context.Context, cmd domain.Command) (*Result, error)
}

type middlewareEntry struct {
	mw  Middleware
	seq int // insertion order, breaks priority ties deterministically
}

// CommandBus routes commands to handlers through the middleware pipeline.
//
// # Thread Safety
//
// Registration and dispatch take a mutex so the bus tolerates concurrent
// callers, but ordering guarantees hold only for commands a single caller
// submits sequentially and awaits.
type CommandBus struct {
	mu         sync.RWMutex
	handlers   map[domain.CommandType]Handler
	middleware []middlewareEntry
	nextSeq    int
	chains     map[domain.CommandType]Next
	logger     *slog.Logger
}

// NewCommandBus creates an empty bus. A nil logger falls back to
// slog.Default().
func NewCommandBus(logger *slog.Logger) *CommandBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandBus{
		handlers: make(map[domain.CommandType]Handler),
		chains:   make(map[domain.CommandType]Next),
		logger:   logger,
	}
}

// RegisterHandler installs the handler for its command type. Registering a
// second handler for the same type fails with a DuplicateRegistrationError.
func (b *CommandBus) RegisterHandler(h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	typ := h.CommandType()
	if _, exists := b.handlers[typ]; exists {
		return &DuplicateRegistrationError{CommandType: typ}
	}
	b.handlers[typ] = h
	b.invalidateChains()
	b.logger.Debug("command handler registered", "command_type", string(typ))
	return nil
}

// AddMiddleware appends a middleware. The pipeline is re-sorted by ascending
// priority (stable on insertion order) before the next dispatch.
func (b *CommandBus) AddMiddleware(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.middleware = append(b.middleware, middlewareEntry{mw: mw, seq: b.nextSeq})
	b.nextSeq++
	b.invalidateChains()
	b.logger.Debug("middleware added", "middleware", mw.Name(), "priority", mw.Priority())
}

// Execute dispatches a command through the middleware chain to its handler.
// Returns a HandlerNotFoundError if no handler is registered for the type.
func (b *CommandBus) Execute(ctx context.Context, cmd domain.Command) (*Result, error) {
	chain, err := b.chainFor(cmd.Type())
	if err != nil {
		return nil, err
	}
	return chain(ctx, cmd)
}

// chainFor returns the cached composed pipeline for the type, building it on
// first use after a registration change.
func (b *CommandBus) chainFor(typ domain.CommandType) (Next, error) {
	b.mu.RLock()
	if chain, ok := b.chains[typ]; ok {
		b.mu.RUnlock()
		return chain, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Re-check under the write lock.
	if chain, ok := b.chains[typ]; ok {
		return chain, nil
	}

	handler, ok := b.handlers[typ]
	if !ok {
		return nil, &HandlerNotFoundError{CommandType: typ}
	}

	chain := b.compose(handler)
	b.chains[typ] = chain
	return chain, nil
}

// compose builds the onion: the lowest-priority middleware is outermost, the
// handler is the terminal. Right fold over the sorted middleware list.
func (b *CommandBus) compose(handler Handler) Next {
	sorted := make([]middlewareEntry, len(b.middleware))
	copy(sorted, b.middleware)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].mw.Priority() != sorted[j].mw.Priority() {
			return sorted[i].mw.Priority() < sorted[j].mw.Priority()
		}
		return sorted[i].seq < sorted[j].seq
	})

	next := Next(handler.Handle)
	for i := len(sorted) - 1; i >= 0; i-- {
		mw := sorted[i].mw
		inner := next
		next = func(ctx context.Context, cmd domain.Command) (*Result, error) {
			return mw.Execute(ctx, cmd, inner)
		}
	}
	return next
}

// invalidateChains drops every cached pipeline. Caller holds the write lock.
func (b *CommandBus) invalidateChains() {
	b.chains = make(map[domain.CommandType]Next)
}

// HasHandler reports whether a handler is registered for the type.
func (b *CommandBus) HasHandler(typ domain.CommandType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[typ]
	return ok
}

// MiddlewareNames returns the middleware names in execution order. Used by
// tests and the health endpoint.
func (b *CommandBus) MiddlewareNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sorted := make([]middlewareEntry, len(b.middleware))
	copy(sorted, b.middleware)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].mw.Priority() != sorted[j].mw.Priority() {
			return sorted[i].mw.Priority() < sorted[j].mw.Priority()
		}
		return sorted[i].seq < sorted[j].seq
	})

	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.mw.Name()
	}
	return names
}

var _ Executor = (*CommandBus)(nil)

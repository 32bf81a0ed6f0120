// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tracker follows the lifecycle of logical user gestures.
//
// An interactive gesture (a continuous drag, a resize, a vertex edit)
// surfaces to the domain as a stream of low-level commands correlated by one
// operation id. The tracker decides when such a gesture is final: only a
// final operation produces an undo history entry, so a drag of fifty
// intermediate positions collapses into a single undoable step.
//
// Operations transition Active -> Completed (final per policy) or Active ->
// Cancelled (never final). Entries are deleted shortly after they settle and
// a periodic sweep force-expires stale Active entries, so the operation map
// cannot leak even when a caller forgets to complete or cancel.
//
// Bookkeeping problems (unknown ids, duplicate starts) are logged as
// warnings and never propagate: tracker failures must not break an edit.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"
)

// OperationTrackingError reports a bookkeeping failure: an unknown or
// inactive operation id, or a duplicate start. Tracking errors are logged at
// the tracker boundary and never propagate; a bookkeeping problem must not
// break an edit.
type OperationTrackingError struct {
	OperationID string
	Reason      string
}

func (e *OperationTrackingError) Error() string {
	return fmt.Sprintf("operation %q: %s", e.OperationID, e.Reason)
}

// OperationType classifies a user gesture.
type OperationType string

const (
	OpDrag       OperationType = "drag"
	OpResize     OperationType = "resize"
	OpVertexEdit OperationType = "vertex-edit"
	OpLabelEdit  OperationType = "label-edit"
	OpDataEdit   OperationType = "data-edit"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// OperationState is the tracked state of one gesture.
type OperationState struct {
	ID        string
	Type      OperationType
	Status    Status
	StartTime time.Time
	// IsFinal is true only for completed operations whose type resolves to
	// final under the policy. Cancelled operations are never final.
	IsFinal bool
	// Data holds free-form gesture metadata, merged across updates.
	Data map[string]any
}

// Config tunes tracker retention and sweeping.
type Config struct {
	// ActiveTimeout force-expires Active operations not completed or
	// cancelled within this window.
	ActiveTimeout time.Duration

	// CompletedRetention is how long a completed entry remains queryable
	// before deletion. Must cover the window between command completion
	// and the history middleware's finality check.
	CompletedRetention time.Duration

	// CancelledRetention is how long a cancelled entry remains queryable.
	CancelledRetention time.Duration

	// SweepInterval is how often the sweep looks for stale Active entries.
	SweepInterval time.Duration
}

// DefaultConfig returns the production defaults: 30s active timeout, 5s
// completed retention, 1s cancelled retention, 10s sweep interval.
func DefaultConfig() Config {
	return Config{
		ActiveTimeout:      30 * time.Second,
		CompletedRetention: 5 * time.Second,
		CancelledRetention: time.Second,
		SweepInterval:      10 * time.Second,
	}
}

// finalityPolicy decides whether an explicitly completed operation of a
// given type settles as final. Every current type resolves to final; the
// distinct flag exists so a future type (e.g. a preview gesture) can
// complete without becoming undoable.
var finalityPolicy = map[OperationType]bool{
	OpDrag:       true,
	OpResize:     true,
	OpVertexEdit: true,
	OpLabelEdit:  true,
	OpDataEdit:   true,
}

type trackedOperation struct {
	state OperationState
	timer *time.Timer // pending deletion, nil while active
}

// Tracker owns the operation map. One instance per service, passed by
// injection; there is no package-level singleton.
type Tracker struct {
	mu     sync.Mutex
	ops    map[string]*trackedOperation
	cfg    Config
	logger *slog.Logger
	now    func() time.Time // test seam
}

// New creates a Tracker. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SweepInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Tracker{
		ops:    make(map[string]*trackedOperation),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// StartOperation creates an Active entry for the gesture. Starting an id
// that is already active logs a warning and leaves the existing entry
// untouched.
func (t *Tracker) StartOperation(id string, typ OperationType, data map[string]any) {
	if id == "" {
		t.logTrackingError("start", &OperationTrackingError{Reason: "empty operation id"})
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.ops[id]; ok && existing.state.Status == StatusActive {
		t.logTrackingError("start", &OperationTrackingError{OperationID: id, Reason: "already active"})
		return
	}

	t.ops[id] = &trackedOperation{
		state: OperationState{
			ID:        id,
			Type:      typ,
			Status:    StatusActive,
			StartTime: t.now(),
			Data:      cloneData(data),
		},
	}
}

// UpdateOperation merges data into an Active entry. A missing or inactive
// target logs a warning and is a no-op.
func (t *Tracker) UpdateOperation(id string, partial map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok || op.state.Status != StatusActive {
		t.logTrackingError("update", &OperationTrackingError{OperationID: id, Reason: "missing or inactive"})
		return
	}
	if op.state.Data == nil {
		op.state.Data = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		op.state.Data[k] = v
	}
}

// CompleteOperation marks an Active entry Completed and computes its
// finality from the per-type policy. The entry is deleted after the
// completed-retention window.
func (t *Tracker) CompleteOperation(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok || op.state.Status != StatusActive {
		t.logTrackingError("complete", &OperationTrackingError{OperationID: id, Reason: "missing or inactive"})
		return
	}

	op.state.Status = StatusCompleted
	op.state.IsFinal = finalityPolicy[op.state.Type]
	t.scheduleDeletion(op, t.cfg.CompletedRetention)
}

// CancelOperation marks an Active entry Cancelled. Cancelled operations are
// never final, which suppresses any later history write for the id. The
// entry is deleted after the shorter cancelled-retention window. An unknown
// id logs a warning and is a no-op.
func (t *Tracker) CancelOperation(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok || op.state.Status != StatusActive {
		t.logTrackingError("cancel", &OperationTrackingError{OperationID: id, Reason: "missing or inactive"})
		return
	}

	op.state.Status = StatusCancelled
	op.state.IsFinal = false
	t.scheduleDeletion(op, t.cfg.CancelledRetention)
}

// IsFinalState reports the stored finality flag. Unknown ids return false:
// history is never recorded for an operation the tracker cannot vouch for.
func (t *Tracker) IsFinalState(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return false
	}
	return op.state.IsFinal
}

// Get returns a copy of the operation state.
func (t *Tracker) Get(id string) (OperationState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.ops[id]
	if !ok {
		return OperationState{}, false
	}
	state := op.state
	state.Data = cloneData(op.state.Data)
	return state, true
}

// ActiveCount returns the number of Active operations. Exposed for metrics.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, op := range t.ops {
		if op.state.Status == StatusActive {
			n++
		}
	}
	return n
}

// Run sweeps stale Active entries until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep force-expires Active entries older than the active timeout. An
// expired entry is treated as cancelled: never final, deleted immediately.
func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.cfg.ActiveTimeout)
	for id, op := range t.ops {
		if op.state.Status == StatusActive && op.state.StartTime.Before(cutoff) {
			t.logger.Warn("stale operation force-expired",
				"operation_id", id,
				"operation_type", string(op.state.Type),
				"age", t.now().Sub(op.state.StartTime).String())
			delete(t.ops, id)
		}
	}
}

// scheduleDeletion arms the retention timer. Caller holds the lock. The
// callback deletes only the entry it was armed for: the id may have been
// reused for a new gesture by the time the timer fires, and a stale timer
// must not take the new entry with it.
func (t *Tracker) scheduleDeletion(op *trackedOperation, after time.Duration) {
	if op.timer != nil {
		op.timer.Stop()
	}
	id := op.state.ID
	op.timer = time.AfterFunc(after, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if current, ok := t.ops[id]; ok && current == op {
			delete(t.ops, id)
		}
	})
}

// logTrackingError records a bookkeeping failure without propagating it.
func (t *Tracker) logTrackingError(action string, err *OperationTrackingError) {
	t.logger.Warn("operation tracking failed, ignored", "action", action, "error", err.Error())
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	c := make(map[string]any, len(data))
	for k, v := range data {
		c[k] = v
	}
	return c
}

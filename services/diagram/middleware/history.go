// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"log/slog"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/history"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/inverse"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/observability"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/repository"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/tracker"
)

// HistoryMiddleware captures undo information for local user commands.
//
// It is a pure observer of the pipeline: it snapshots the aggregate before
// the handler runs, builds the inverse command from that snapshot after the
// handler succeeds, and records the pair in the history service. Replayed
// and remote commands pass through untouched, as do commands with no
// inverse. History bookkeeping failures are logged and never fail the
// command.
//
// A command that carries an operation id is part of a continuous gesture
// (drag, resize). Its intermediate steps are executed but not recorded; only
// the step that lands while the operation is in a final state produces a
// history entry. A command without an operation id is discrete and records
// immediately.
type HistoryMiddleware struct {
	history *history.Service
	factory *inverse.Factory
	tracker *tracker.Tracker
	repo    repository.Repository
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewHistoryMiddleware creates the history middleware. A nil logger falls
// back to slog.Default(); nil metrics disables the recorded-entries counter.
func NewHistoryMiddleware(
	hist *history.Service,
	factory *inverse.Factory,
	trk *tracker.Tracker,
	repo repository.Repository,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *HistoryMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryMiddleware{
		history: hist,
		factory: factory,
		tracker: trk,
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
}

func (m *HistoryMiddleware) Name() string  { return "history" }
func (m *HistoryMiddleware) Priority() int { return PriorityHistory }

func (m *HistoryMiddleware) Execute(ctx context.Context, cmd domain.Command, next bus.Next) (*bus.Result, error) {
	meta := cmd.Meta()
	if !meta.IsLocalUserInitiated || !m.factory.CanCreateInverse(cmd) {
		return next(ctx, cmd)
	}

	before, captured := m.captureBefore(ctx, meta)

	result, err := next(ctx, cmd)
	if err != nil {
		// The aggregate rejected the command; nothing changed, so there
		// is nothing to undo and the redo stack stays intact.
		return nil, err
	}

	// Any new local change invalidates the redo branch, whether or not
	// this particular step produces an entry.
	m.history.ClearRedoStack()

	if !m.shouldRecord(meta.OperationID) {
		return result, nil
	}
	if !captured {
		m.logger.WarnContext(ctx, "history entry skipped, before-state unavailable",
			"command_id", meta.CommandID,
			"diagram_id", meta.DiagramID)
		return result, nil
	}

	inv, invErr := m.factory.CreateInverse(cmd, before)
	if invErr != nil {
		m.logger.WarnContext(ctx, "inverse generation failed, history entry skipped",
			"command_id", meta.CommandID,
			"command_type", string(cmd.Type()),
			"error", invErr.Error())
		return result, nil
	}
	if verr := m.factory.ValidateInverse(cmd, inv); verr != nil {
		m.logger.WarnContext(ctx, "inverse validation failed, history entry skipped",
			"command_id", meta.CommandID,
			"command_type", string(cmd.Type()),
			"error", verr.Error())
		return result, nil
	}

	m.history.RecordCommand(cmd, inv, meta.OperationID)
	if m.metrics != nil {
		m.metrics.HistoryEntriesRecorded.Inc()
	}
	return result, nil
}

// captureBefore snapshots the aggregate state the inverse must restore.
func (m *HistoryMiddleware) captureBefore(ctx context.Context, meta domain.CommandMeta) (domain.DiagramSnapshot, bool) {
	agg, err := m.repo.FindByID(ctx, meta.DiagramID)
	if err != nil {
		m.logger.WarnContext(ctx, "before-state capture failed",
			"diagram_id", meta.DiagramID,
			"error", err.Error())
		return domain.DiagramSnapshot{}, false
	}
	return agg.Snapshot(), true
}

// shouldRecord reports whether this command closes out an undoable step.
// Discrete commands (no operation id) always do; gesture steps only when the
// tracked operation has reached a final state.
func (m *HistoryMiddleware) shouldRecord(operationID string) bool {
	if operationID == "" {
		return true
	}
	return m.tracker.IsFinalState(operationID)
}

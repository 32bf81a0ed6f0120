// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"fmt"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// CompositeHandler expands a composite command by dispatching each
// sub-command through the bus in array order.
//
// Composite execution is not transactional: a mid-sequence failure aborts
// without compensating already-applied sub-commands, so sub-command #1's
// effect stays committed when sub-command #2 fails. Undo of a fully-applied
// composite is the inverse factory's job (sub-inverses in reverse order).
type CompositeHandler struct {
	executor bus.Executor
}

// NewCompositeHandler creates the composite handler. The executor is the
// bus itself, injected after construction by the registry.
func NewCompositeHandler(executor bus.Executor) *CompositeHandler {
	return &CompositeHandler{executor: executor}
}

// SetExecutor installs the dispatch target. Used by the registry to break
// the construction cycle between the bus and this handler.
func (h *CompositeHandler) SetExecutor(executor bus.Executor) {
	h.executor = executor
}

func (h *CompositeHandler) CommandType() domain.CommandType {
	return domain.CommandComposite
}

func (h *CompositeHandler) Handle(ctx context.Context, cmd domain.Command) (*bus.Result, error) {
	c, ok := cmd.(domain.CompositeCommand)
	if !ok {
		return nil, domain.NewValidationError("type",
			fmt.Sprintf("expected CompositeCommand, got %T", cmd))
	}
	if len(c.Commands) == 0 {
		return nil, domain.NewValidationError("commands", "composite command has no sub-commands")
	}

	var (
		events []domain.DomainEvent
		last   *bus.Result
	)
	for i, sub := range c.Commands {
		// Sub-commands re-enter the pipeline with the origin flag cleared:
		// the composite itself is the undoable unit, its steps are not.
		result, err := h.executor.Execute(ctx, sub.ForReplay())
		if err != nil {
			return nil, fmt.Errorf("composite sub-command %d (%s): %w", i, sub.Type(), err)
		}
		events = append(events, result.Events...)
		last = result
	}

	return &bus.Result{
		Success:   true,
		DiagramID: c.DiagramID,
		Events:    events,
		Snapshot:  last.Snapshot,
	}, nil
}

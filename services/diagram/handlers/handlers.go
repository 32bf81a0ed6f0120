// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides one command handler per command type plus the
// registry that wires handlers and middleware into the bus.
//
// Every single-cell handler follows the same sequence: load the aggregate by
// diagram id, apply the command through ProcessCommand, persist, drain the
// uncommitted events, and return the result with a fresh snapshot. The
// composite handler is the exception: it expands its sub-commands back
// through the bus one at a time.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/repository"
)

// cellHandler is the shared load-apply-persist flow behind every
// single-cell command handler. One instance is registered per command type
// so the bus invariant (exactly one handler per type) holds structurally.
type cellHandler struct {
	commandType domain.CommandType
	repo        repository.Repository
}

func (h *cellHandler) CommandType() domain.CommandType { return h.commandType }

func (h *cellHandler) Handle(ctx context.Context, cmd domain.Command) (*bus.Result, error) {
	agg, err := h.repo.FindByID(ctx, cmd.Meta().DiagramID)
	if err != nil {
		if errors.Is(err, repository.ErrDiagramNotFound) {
			return nil, domain.NewNotFoundError("diagram", cmd.Meta().DiagramID)
		}
		return nil, fmt.Errorf("load diagram %s: %w", cmd.Meta().DiagramID, err)
	}

	if err := agg.ProcessCommand(cmd); err != nil {
		return nil, err
	}

	if err := h.repo.Save(ctx, agg); err != nil {
		return nil, fmt.Errorf("persist diagram %s: %w", agg.ID(), err)
	}

	events := agg.UncommittedEvents()
	agg.MarkEventsCommitted()

	return &bus.Result{
		Success:   true,
		DiagramID: agg.ID(),
		Events:    events,
		Snapshot:  agg.Snapshot(),
	}, nil
}

// NewAddNodeHandler handles node.add.
func NewAddNodeHandler(repo repository.Repository) bus.Handler {
	return &cellHandler{commandType: domain.CommandAddNode, repo: repo}
}

// NewUpdateNodePositionHandler handles node.update_position.
func NewUpdateNodePositionHandler(repo repository.Repository) bus.Handler {
	return &cellHandler{commandType: domain.CommandUpdateNodePosition, repo: repo}
}

// NewUpdateNodeDataHandler handles node.update_data.
func NewUpdateNodeDataHandler(repo repository.Repository) bus.Handler {
	return &cellHandler{commandType: domain.CommandUpdateNodeData, repo: repo}
}

// NewRemoveNodeHandler handles node.remove.
func NewRemoveNodeHandler(repo repository.Repository) bus.Handler {
	return &cellHandler{commandType: domain.CommandRemoveNode, repo: repo}
}

// NewAddEdgeHandler handles edge.add.
func NewAddEdgeHandler(repo repository.Repository) bus.Handler {
	return &cellHandler{commandType: domain.CommandAddEdge, repo: repo}
}

// NewUpdateEdgeVerticesHandler handles edge.update_vertices.
func NewUpdateEdgeVerticesHandler(repo repository.Repository) bus.Handler {
	return &cellHandler{commandType: domain.CommandUpdateEdgeVertices, repo: repo}
}

// NewUpdateEdgeDataHandler handles edge.update_data.
func NewUpdateEdgeDataHandler(repo repository.Repository) bus.Handler {
	return &cellHandler{commandType: domain.CommandUpdateEdgeData, repo: repo}
}

// NewRemoveEdgeHandler handles edge.remove.
func NewRemoveEdgeHandler(repo repository.Repository) bus.Handler {
	return &cellHandler{commandType: domain.CommandRemoveEdge, repo: repo}
}

// createDiagramHandler creates a new aggregate rather than loading one.
type createDiagramHandler struct {
	repo repository.Repository
}

// NewCreateDiagramHandler handles diagram.create.
func NewCreateDiagramHandler(repo repository.Repository) bus.Handler {
	return &createDiagramHandler{repo: repo}
}

func (h *createDiagramHandler) CommandType() domain.CommandType {
	return domain.CommandCreateDiagram
}

func (h *createDiagramHandler) Handle(ctx context.Context, cmd domain.Command) (*bus.Result, error) {
	c, ok := cmd.(domain.CreateDiagramCommand)
	if !ok {
		return nil, domain.NewValidationError("type",
			fmt.Sprintf("expected CreateDiagramCommand, got %T", cmd))
	}

	agg := domain.NewDiagramAggregate(c)
	if err := h.repo.Create(ctx, agg); err != nil {
		return nil, fmt.Errorf("create diagram %s: %w", agg.ID(), err)
	}

	events := agg.UncommittedEvents()
	agg.MarkEventsCommitted()

	return &bus.Result{
		Success:   true,
		DiagramID: agg.ID(),
		Events:    events,
		Snapshot:  agg.Snapshot(),
	}, nil
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"context"
	"sync"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// MemoryRepository is an in-memory Repository for tests and ephemeral runs.
//
// Aggregates are stored as snapshots; FindByID restores a fresh aggregate
// from the stored snapshot so callers never share mutable state with the
// store.
type MemoryRepository struct {
	mu       sync.RWMutex
	diagrams map[string]domain.DiagramSnapshot
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{diagrams: make(map[string]domain.DiagramSnapshot)}
}

func (r *MemoryRepository) FindByID(_ context.Context, diagramID string) (*domain.DiagramAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.diagrams[diagramID]
	if !ok {
		return nil, ErrDiagramNotFound
	}
	return domain.RestoreDiagramAggregate(snap), nil
}

func (r *MemoryRepository) Save(_ context.Context, agg *domain.DiagramAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.diagrams[agg.ID()]; !ok {
		return ErrDiagramNotFound
	}
	r.diagrams[agg.ID()] = agg.Snapshot()
	return nil
}

func (r *MemoryRepository) Create(_ context.Context, agg *domain.DiagramAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.diagrams[agg.ID()]; ok {
		return ErrDiagramExists
	}
	r.diagrams[agg.ID()] = agg.Snapshot()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, diagramID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.diagrams[diagramID]; !ok {
		return ErrDiagramNotFound
	}
	delete(r.diagrams, diagramID)
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]domain.DiagramSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.DiagramSnapshot, 0, len(r.diagrams))
	for _, snap := range r.diagrams {
		out = append(out, snap)
	}
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)

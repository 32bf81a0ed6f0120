// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package repository persists diagram aggregates.
//
// The command core depends only on the narrow Repository contract. Two
// implementations are provided: an in-memory store for tests and a BadgerDB
// store for the running service. Both hand out restored aggregates built
// from deep-copied snapshots, never live references to stored state.
package repository

import (
	"context"
	"errors"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

var (
	// ErrDiagramNotFound is returned by FindByID and Save when no diagram
	// with the given id exists.
	ErrDiagramNotFound = errors.New("diagram not found")

	// ErrDiagramExists is returned by Create when the id is already taken.
	ErrDiagramExists = errors.New("diagram already exists")
)

// Repository is the persistence collaborator for diagram aggregates.
//
// Saves are last-writer-wins: no aggregate version check guards concurrent
// writers. The single-caller dispatch model makes this safe for one editor;
// a future collaboration layer owns multi-editor conflict handling.
type Repository interface {
	// FindByID loads the aggregate with the given id.
	FindByID(ctx context.Context, diagramID string) (*domain.DiagramAggregate, error)

	// Save persists an existing aggregate.
	Save(ctx context.Context, agg *domain.DiagramAggregate) error

	// Create persists a new aggregate, failing if the id is taken.
	Create(ctx context.Context, agg *domain.DiagramAggregate) error

	// Delete removes the aggregate with the given id.
	Delete(ctx context.Context, diagramID string) error

	// List returns snapshots of every stored diagram.
	List(ctx context.Context) ([]domain.DiagramSnapshot, error)
}

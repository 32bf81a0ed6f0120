// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import "time"

// DiagramSnapshot is a value projection of an aggregate at a point in time.
//
// Snapshots share no mutable state with the aggregate: node and edge maps,
// attribute maps and vertex slices are deep copies. The history middleware
// captures a snapshot before dispatch so the inverse factory can reconstruct
// removed cells, and the API layer returns snapshots to clients.
type DiagramSnapshot struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Version    uint64          `json:"version"`
	Nodes      map[string]Node `json:"nodes"`
	Edges      map[string]Edge `json:"edges"`
	CreatedAt  time.Time       `json:"created_at"`
	ModifiedAt time.Time       `json:"modified_at"`
}

// Snapshot returns a deep value copy of the aggregate state.
func (a *DiagramAggregate) Snapshot() DiagramSnapshot {
	snap := DiagramSnapshot{
		ID:         a.id,
		Name:       a.name,
		Version:    a.version,
		Nodes:      make(map[string]Node, len(a.nodes)),
		Edges:      make(map[string]Edge, len(a.edges)),
		CreatedAt:  a.createdAt,
		ModifiedAt: a.modifiedAt,
	}
	for id, n := range a.nodes {
		snap.Nodes[id] = cloneNode(n)
	}
	for id, e := range a.edges {
		snap.Edges[id] = cloneEdge(e)
	}
	return snap
}

// Node returns the snapshot node with the given id.
func (s DiagramSnapshot) Node(id string) (Node, bool) {
	n, ok := s.Nodes[id]
	return n, ok
}

// Edge returns the snapshot edge with the given id.
func (s DiagramSnapshot) Edge(id string) (Edge, bool) {
	e, ok := s.Edges[id]
	return e, ok
}

// StructurallyEqual reports whether two snapshots have identical node and
// edge maps, ignoring version and timestamps. Used by tests to verify that
// applying a command and its inverse restores the original structure.
func (s DiagramSnapshot) StructurallyEqual(other DiagramSnapshot) bool {
	if len(s.Nodes) != len(other.Nodes) || len(s.Edges) != len(other.Edges) {
		return false
	}
	for id, n := range s.Nodes {
		o, ok := other.Nodes[id]
		if !ok || !nodesEqual(n, o) {
			return false
		}
	}
	for id, e := range s.Edges {
		o, ok := other.Edges[id]
		if !ok || !edgesEqual(e, o) {
			return false
		}
	}
	return true
}

func nodesEqual(a, b Node) bool {
	return a.ID == b.ID &&
		a.Position == b.Position &&
		a.Data.Kind == b.Data.Kind &&
		a.Data.Label == b.Data.Label &&
		a.Data.Size == b.Data.Size &&
		attributesEqual(a.Data.Attributes, b.Data.Attributes)
}

func edgesEqual(a, b Edge) bool {
	if a.ID != b.ID || a.SourceID != b.SourceID || a.TargetID != b.TargetID {
		return false
	}
	if len(a.Vertices) != len(b.Vertices) {
		return false
	}
	for i := range a.Vertices {
		if a.Vertices[i] != b.Vertices[i] {
			return false
		}
	}
	return a.Data.Kind == b.Data.Kind &&
		a.Data.Label == b.Data.Label &&
		attributesEqual(a.Data.Attributes, b.Data.Attributes)
}

func attributesEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

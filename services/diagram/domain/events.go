// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of committed mutation an event describes.
type EventType string

const (
	EventDiagramCreated      EventType = "diagram.created"
	EventNodeAdded           EventType = "node.added"
	EventNodeMoved           EventType = "node.moved"
	EventNodeDataUpdated     EventType = "node.data_updated"
	EventNodeRemoved         EventType = "node.removed"
	EventEdgeAdded           EventType = "edge.added"
	EventEdgeVerticesUpdated EventType = "edge.vertices_updated"
	EventEdgeDataUpdated     EventType = "edge.data_updated"
	EventEdgeRemoved         EventType = "edge.removed"
)

// DomainEvent records one committed mutation of a diagram aggregate.
//
// Exactly one event is emitted per successfully applied command branch. The
// Sequence field equals the aggregate version after the command was applied,
// so a consumer replaying events in sequence order reconstructs the aggregate.
type DomainEvent struct {
	// EventID uniquely identifies this event instance.
	EventID string `json:"event_id"`

	// DiagramID identifies the aggregate that emitted the event.
	DiagramID string `json:"diagram_id"`

	// Sequence is the aggregate version after applying the command.
	Sequence uint64 `json:"sequence"`

	// Type classifies the mutation.
	Type EventType `json:"type"`

	// Timestamp records when the mutation was applied.
	Timestamp time.Time `json:"timestamp"`

	// Payload carries the type-specific event body. Concrete payload types
	// are defined below; the field is typed any so events marshal directly
	// to JSON for the view-command sink.
	Payload any `json:"payload"`
}

func newEvent(diagramID string, seq uint64, typ EventType, payload any) DomainEvent {
	return DomainEvent{
		EventID:   uuid.New().String(),
		DiagramID: diagramID,
		Sequence:  seq,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// =============================================================================
// Event Payloads
// =============================================================================

// DiagramCreatedPayload describes a newly created diagram.
type DiagramCreatedPayload struct {
	Name string `json:"name"`
}

// NodePayload describes a node's full state at event time.
type NodePayload struct {
	NodeID   string   `json:"node_id"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// NodeMovedPayload describes a position change.
type NodeMovedPayload struct {
	NodeID      string   `json:"node_id"`
	OldPosition Position `json:"old_position"`
	NewPosition Position `json:"new_position"`
}

// NodeDataUpdatedPayload describes a data change.
type NodeDataUpdatedPayload struct {
	NodeID  string   `json:"node_id"`
	OldData NodeData `json:"old_data"`
	NewData NodeData `json:"new_data"`
}

// NodeRemovedPayload describes a removed node, including its final state so
// view consumers can animate the removal.
type NodeRemovedPayload struct {
	NodeID   string   `json:"node_id"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// EdgePayload describes an edge's full state at event time.
type EdgePayload struct {
	EdgeID   string     `json:"edge_id"`
	SourceID string     `json:"source_id"`
	TargetID string     `json:"target_id"`
	Vertices []Position `json:"vertices,omitempty"`
	Data     EdgeData   `json:"data"`
}

// EdgeVerticesUpdatedPayload describes a vertex routing change.
type EdgeVerticesUpdatedPayload struct {
	EdgeID      string     `json:"edge_id"`
	OldVertices []Position `json:"old_vertices"`
	NewVertices []Position `json:"new_vertices"`
}

// EdgeDataUpdatedPayload describes an edge data change.
type EdgeDataUpdatedPayload struct {
	EdgeID  string   `json:"edge_id"`
	OldData EdgeData `json:"old_data"`
	NewData EdgeData `json:"new_data"`
}

// EdgeRemovedPayload describes a removed edge.
type EdgeRemovedPayload struct {
	EdgeID   string   `json:"edge_id"`
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Data     EdgeData `json:"data"`
}

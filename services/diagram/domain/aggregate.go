// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import (
	"fmt"
	"time"
)

// Node is a diagram node owned by the aggregate.
type Node struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Edge is a diagram edge owned by the aggregate. Endpoints are stored as node
// ids, not live references, so a removed endpoint leaves a dangling id rather
// than a dangling pointer.
type Edge struct {
	ID       string     `json:"id"`
	SourceID string     `json:"source_id"`
	TargetID string     `json:"target_id"`
	Vertices []Position `json:"vertices,omitempty"`
	Data     EdgeData   `json:"data"`
}

// DiagramAggregate is the authoritative in-memory state of one diagram.
//
// The aggregate is mutated exclusively through ProcessCommand, which applies
// one command at a time under the domain invariants, increments the version
// counter, and buffers exactly one domain event per applied command. The
// calling handler drains the buffer via UncommittedEvents and
// MarkEventsCommitted after persisting.
//
// # Thread Safety
//
// The aggregate takes no locks. Correctness relies on sequential dispatch
// from a single caller context per diagram, which the service boundary
// enforces.
type DiagramAggregate struct {
	id         string
	name       string
	version    uint64
	nodes      map[string]Node
	edges      map[string]Edge
	createdAt  time.Time
	modifiedAt time.Time

	uncommitted []DomainEvent
}

// NewDiagramAggregate creates an aggregate from a CreateDiagramCommand.
// The new aggregate has version 0 and one buffered creation event.
func NewDiagramAggregate(cmd CreateDiagramCommand) *DiagramAggregate {
	now := time.Now().UTC()
	agg := &DiagramAggregate{
		id:         cmd.DiagramID,
		name:       cmd.Name,
		nodes:      make(map[string]Node),
		edges:      make(map[string]Edge),
		createdAt:  now,
		modifiedAt: now,
	}
	agg.record(EventDiagramCreated, DiagramCreatedPayload{Name: cmd.Name})
	return agg
}

// RestoreDiagramAggregate rebuilds an aggregate from persisted state. Used by
// repositories; the restored aggregate has no uncommitted events.
func RestoreDiagramAggregate(snap DiagramSnapshot) *DiagramAggregate {
	agg := &DiagramAggregate{
		id:         snap.ID,
		name:       snap.Name,
		version:    snap.Version,
		nodes:      make(map[string]Node, len(snap.Nodes)),
		edges:      make(map[string]Edge, len(snap.Edges)),
		createdAt:  snap.CreatedAt,
		modifiedAt: snap.ModifiedAt,
	}
	for id, n := range snap.Nodes {
		agg.nodes[id] = cloneNode(n)
	}
	for id, e := range snap.Edges {
		agg.edges[id] = cloneEdge(e)
	}
	return agg
}

// ID returns the aggregate id.
func (a *DiagramAggregate) ID() string { return a.id }

// Name returns the diagram name.
func (a *DiagramAggregate) Name() string { return a.name }

// Version returns the number of commands applied since creation.
func (a *DiagramAggregate) Version() uint64 { return a.version }

// Node returns a copy of the node with the given id.
func (a *DiagramAggregate) Node(id string) (Node, bool) {
	n, ok := a.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

// Edge returns a copy of the edge with the given id.
func (a *DiagramAggregate) Edge(id string) (Edge, bool) {
	e, ok := a.edges[id]
	if !ok {
		return Edge{}, false
	}
	return cloneEdge(e), true
}

// EdgesForNode returns copies of all edges whose source or target is nodeID.
// After a node removal these edges remain in the diagram with a dangling
// endpoint id; the view layer is expected to remove them via a composite
// command before removing the node.
func (a *DiagramAggregate) EdgesForNode(nodeID string) []Edge {
	var out []Edge
	for _, e := range a.edges {
		if e.SourceID == nodeID || e.TargetID == nodeID {
			out = append(out, cloneEdge(e))
		}
	}
	return out
}

// ProcessCommand applies one command to the aggregate.
//
// On success the aggregate version is incremented and exactly one domain
// event is buffered. On failure the aggregate is unchanged. Composite
// commands are rejected here; the composite handler expands them through the
// bus one level up.
func (a *DiagramAggregate) ProcessCommand(cmd Command) error {
	if cmd.Meta().DiagramID != a.id {
		return NewValidationError("diagram_id",
			fmt.Sprintf("command targets diagram %q, aggregate is %q", cmd.Meta().DiagramID, a.id))
	}

	switch c := cmd.(type) {
	case AddNodeCommand:
		return a.applyAddNode(c)
	case UpdateNodePositionCommand:
		return a.applyUpdateNodePosition(c)
	case UpdateNodeDataCommand:
		return a.applyUpdateNodeData(c)
	case RemoveNodeCommand:
		return a.applyRemoveNode(c)
	case AddEdgeCommand:
		return a.applyAddEdge(c)
	case UpdateEdgeVerticesCommand:
		return a.applyUpdateEdgeVertices(c)
	case UpdateEdgeDataCommand:
		return a.applyUpdateEdgeData(c)
	case RemoveEdgeCommand:
		return a.applyRemoveEdge(c)
	case CompositeCommand:
		return NewValidationError("type", "composite commands are expanded by their handler, not the aggregate")
	default:
		return NewValidationError("type", fmt.Sprintf("unsupported command type %q", cmd.Type()))
	}
}

// UncommittedEvents returns the buffered events in emission order.
func (a *DiagramAggregate) UncommittedEvents() []DomainEvent {
	out := make([]DomainEvent, len(a.uncommitted))
	copy(out, a.uncommitted)
	return out
}

// MarkEventsCommitted clears the uncommitted event buffer after persistence.
func (a *DiagramAggregate) MarkEventsCommitted() {
	a.uncommitted = nil
}

// =============================================================================
// Command Application
// =============================================================================

func (a *DiagramAggregate) applyAddNode(c AddNodeCommand) error {
	if _, exists := a.nodes[c.NodeID]; exists {
		return &DuplicateError{Kind: "node", ID: c.NodeID}
	}
	node := Node{ID: c.NodeID, Position: c.Position, Data: c.Data.clone()}
	a.nodes[c.NodeID] = node
	a.record(EventNodeAdded, NodePayload{NodeID: node.ID, Position: node.Position, Data: node.Data.clone()})
	return nil
}

func (a *DiagramAggregate) applyUpdateNodePosition(c UpdateNodePositionCommand) error {
	node, ok := a.nodes[c.NodeID]
	if !ok {
		return NewNotFoundError("node", c.NodeID)
	}
	old := node.Position
	node.Position = c.NewPosition
	a.nodes[c.NodeID] = node
	a.record(EventNodeMoved, NodeMovedPayload{NodeID: c.NodeID, OldPosition: old, NewPosition: c.NewPosition})
	return nil
}

func (a *DiagramAggregate) applyUpdateNodeData(c UpdateNodeDataCommand) error {
	node, ok := a.nodes[c.NodeID]
	if !ok {
		return NewNotFoundError("node", c.NodeID)
	}
	old := node.Data
	node.Data = c.NewData.clone()
	a.nodes[c.NodeID] = node
	a.record(EventNodeDataUpdated, NodeDataUpdatedPayload{NodeID: c.NodeID, OldData: old, NewData: node.Data.clone()})
	return nil
}

func (a *DiagramAggregate) applyRemoveNode(c RemoveNodeCommand) error {
	node, ok := a.nodes[c.NodeID]
	if !ok {
		return NewNotFoundError("node", c.NodeID)
	}
	delete(a.nodes, c.NodeID)
	a.record(EventNodeRemoved, NodeRemovedPayload{NodeID: node.ID, Position: node.Position, Data: node.Data})
	return nil
}

func (a *DiagramAggregate) applyAddEdge(c AddEdgeCommand) error {
	if _, exists := a.edges[c.EdgeID]; exists {
		return &DuplicateError{Kind: "edge", ID: c.EdgeID}
	}
	if _, ok := a.nodes[c.SourceID]; !ok {
		return NewNotFoundError("node", c.SourceID)
	}
	if _, ok := a.nodes[c.TargetID]; !ok {
		return NewNotFoundError("node", c.TargetID)
	}
	edge := Edge{
		ID:       c.EdgeID,
		SourceID: c.SourceID,
		TargetID: c.TargetID,
		Vertices: cloneVertices(c.Vertices),
		Data:     c.Data.clone(),
	}
	a.edges[c.EdgeID] = edge
	a.record(EventEdgeAdded, EdgePayload{
		EdgeID:   edge.ID,
		SourceID: edge.SourceID,
		TargetID: edge.TargetID,
		Vertices: cloneVertices(edge.Vertices),
		Data:     edge.Data.clone(),
	})
	return nil
}

func (a *DiagramAggregate) applyUpdateEdgeVertices(c UpdateEdgeVerticesCommand) error {
	edge, ok := a.edges[c.EdgeID]
	if !ok {
		return NewNotFoundError("edge", c.EdgeID)
	}
	old := edge.Vertices
	edge.Vertices = cloneVertices(c.NewVertices)
	a.edges[c.EdgeID] = edge
	a.record(EventEdgeVerticesUpdated, EdgeVerticesUpdatedPayload{
		EdgeID:      c.EdgeID,
		OldVertices: old,
		NewVertices: cloneVertices(c.NewVertices),
	})
	return nil
}

func (a *DiagramAggregate) applyUpdateEdgeData(c UpdateEdgeDataCommand) error {
	edge, ok := a.edges[c.EdgeID]
	if !ok {
		return NewNotFoundError("edge", c.EdgeID)
	}
	old := edge.Data
	edge.Data = c.NewData.clone()
	a.edges[c.EdgeID] = edge
	a.record(EventEdgeDataUpdated, EdgeDataUpdatedPayload{EdgeID: c.EdgeID, OldData: old, NewData: edge.Data.clone()})
	return nil
}

func (a *DiagramAggregate) applyRemoveEdge(c RemoveEdgeCommand) error {
	edge, ok := a.edges[c.EdgeID]
	if !ok {
		return NewNotFoundError("edge", c.EdgeID)
	}
	delete(a.edges, c.EdgeID)
	a.record(EventEdgeRemoved, EdgeRemovedPayload{
		EdgeID:   edge.ID,
		SourceID: edge.SourceID,
		TargetID: edge.TargetID,
		Data:     edge.Data,
	})
	return nil
}

// record increments the version and buffers the event for that version.
// The creation event is recorded at version 0 before any command applies.
func (a *DiagramAggregate) record(typ EventType, payload any) {
	if typ != EventDiagramCreated {
		a.version++
	}
	a.modifiedAt = time.Now().UTC()
	a.uncommitted = append(a.uncommitted, newEvent(a.id, a.version, typ, payload))
}

func cloneNode(n Node) Node {
	n.Data = n.Data.clone()
	return n
}

func cloneEdge(e Edge) Edge {
	e.Vertices = cloneVertices(e.Vertices)
	e.Data = e.Data.clone()
	return e
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package domain contains the diagram editing domain model: commands,
// domain events, and the diagram aggregate.
//
// Commands are immutable instructions to mutate a diagram. Every command
// carries a CommandMeta envelope (command id, diagram id, author, timestamp,
// origin flag, operation id) plus a type-specific payload. Commands that
// change a value carry both the new and the old value so that a structurally
// valid inverse can be derived without consulting external state.
//
// # Immutability
//
// Commands are treated as immutable once constructed. The one sanctioned
// transformation is ForReplay, which produces a copy whose origin flag is
// cleared so that history replays (undo/redo) are never themselves recorded.
//
// # Operation Correlation
//
// Interactive gestures (a continuous drag, a resize) surface as a stream of
// low-level commands correlated by a single OperationID. The OperationID is
// set at construction time, never attached after the fact.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Command Types
// =============================================================================

// CommandType identifies the kind of mutation a command requests.
type CommandType string

const (
	// CommandCreateDiagram creates a new, empty diagram aggregate.
	CommandCreateDiagram CommandType = "diagram.create"

	// CommandAddNode adds a node to the diagram.
	CommandAddNode CommandType = "node.add"

	// CommandUpdateNodePosition moves a node. Carries old and new position.
	CommandUpdateNodePosition CommandType = "node.update_position"

	// CommandUpdateNodeData replaces a node's typed data. Carries old and new.
	CommandUpdateNodeData CommandType = "node.update_data"

	// CommandRemoveNode removes a node. Edges referencing the node are left
	// in place; callers that want a cascade issue a composite command.
	CommandRemoveNode CommandType = "node.remove"

	// CommandAddEdge adds an edge between two existing nodes.
	CommandAddEdge CommandType = "edge.add"

	// CommandUpdateEdgeVertices replaces an edge's routing vertices.
	CommandUpdateEdgeVertices CommandType = "edge.update_vertices"

	// CommandUpdateEdgeData replaces an edge's typed data.
	CommandUpdateEdgeData CommandType = "edge.update_data"

	// CommandRemoveEdge removes an edge.
	CommandRemoveEdge CommandType = "edge.remove"

	// CommandComposite wraps an ordered sequence of sub-commands that are
	// dispatched one at a time through the bus. Not transactional.
	CommandComposite CommandType = "composite"
)

// =============================================================================
// Command Envelope
// =============================================================================

// CommandMeta is the envelope shared by every command.
type CommandMeta struct {
	// CommandID uniquely identifies this command instance.
	CommandID string `json:"command_id"`

	// DiagramID identifies the target aggregate.
	DiagramID string `json:"diagram_id"`

	// UserID identifies the author of the command.
	UserID string `json:"user_id"`

	// Timestamp records when the command was constructed.
	Timestamp time.Time `json:"timestamp"`

	// IsLocalUserInitiated is true for commands produced by a local user
	// gesture. Remote and system-originated commands (including history
	// replays) carry false and are never recorded in the local undo stack.
	IsLocalUserInitiated bool `json:"is_local_user_initiated"`

	// OperationID correlates this command with a logical user gesture
	// tracked by the operation tracker. Empty for one-shot commands.
	OperationID string `json:"operation_id,omitempty"`
}

// NewMeta builds a CommandMeta for a local-user-initiated command.
func NewMeta(diagramID, userID, operationID string) CommandMeta {
	return CommandMeta{
		CommandID:            uuid.New().String(),
		DiagramID:            diagramID,
		UserID:               userID,
		Timestamp:            time.Now().UTC(),
		IsLocalUserInitiated: true,
		OperationID:          operationID,
	}
}

// replay returns a copy of the meta with a fresh command id and the origin
// flag cleared. Used when history re-dispatches a command or its inverse.
func (m CommandMeta) replay() CommandMeta {
	r := m
	r.CommandID = uuid.New().String()
	r.IsLocalUserInitiated = false
	return r
}

// Command is an immutable instruction to mutate a diagram.
type Command interface {
	// Type returns the command type used for handler routing.
	Type() CommandType

	// Meta returns the command envelope.
	Meta() CommandMeta

	// ForReplay returns a copy of the command with a fresh command id and
	// IsLocalUserInitiated cleared, suitable for undo/redo dispatch.
	ForReplay() Command
}

// =============================================================================
// Geometry and Cell Data
// =============================================================================

// Position is a point in diagram coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a node's width and height in diagram coordinates.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeData is the typed payload of a diagram node.
type NodeData struct {
	// Kind is the node category (process, datastore, external-entity,
	// trust-boundary, text).
	Kind string `json:"kind"`

	// Label is the display text of the node.
	Label string `json:"label"`

	// Size is the rendered extent of the node.
	Size Size `json:"size"`

	// Attributes holds free-form key/value metadata.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EdgeData is the typed payload of a diagram edge.
type EdgeData struct {
	// Kind is the edge category (data-flow, trust-boundary-crossing).
	Kind string `json:"kind"`

	// Label is the display text of the edge.
	Label string `json:"label"`

	// Attributes holds free-form key/value metadata.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// clone helpers keep commands and snapshots free of shared mutable state.

func (d NodeData) clone() NodeData {
	c := d
	c.Attributes = cloneAttributes(d.Attributes)
	return c
}

func (d EdgeData) clone() EdgeData {
	c := d
	c.Attributes = cloneAttributes(d.Attributes)
	return c
}

func cloneAttributes(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	c := make(map[string]string, len(attrs))
	for k, v := range attrs {
		c[k] = v
	}
	return c
}

func cloneVertices(vs []Position) []Position {
	if vs == nil {
		return nil
	}
	c := make([]Position, len(vs))
	copy(c, vs)
	return c
}

// =============================================================================
// Concrete Commands
// =============================================================================

// CreateDiagramCommand creates a new diagram aggregate.
type CreateDiagramCommand struct {
	CommandMeta
	Name string `json:"name"`
}

func (c CreateDiagramCommand) Type() CommandType { return CommandCreateDiagram }
func (c CreateDiagramCommand) Meta() CommandMeta { return c.CommandMeta }
func (c CreateDiagramCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// AddNodeCommand adds a node with an explicit id, position and data.
type AddNodeCommand struct {
	CommandMeta
	NodeID   string   `json:"node_id"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

func (c AddNodeCommand) Type() CommandType { return CommandAddNode }
func (c AddNodeCommand) Meta() CommandMeta { return c.CommandMeta }
func (c AddNodeCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// UpdateNodePositionCommand moves a node, carrying both positions so the
// inverse is a pure structural swap.
type UpdateNodePositionCommand struct {
	CommandMeta
	NodeID      string   `json:"node_id"`
	NewPosition Position `json:"new_position"`
	OldPosition Position `json:"old_position"`
}

func (c UpdateNodePositionCommand) Type() CommandType { return CommandUpdateNodePosition }
func (c UpdateNodePositionCommand) Meta() CommandMeta { return c.CommandMeta }
func (c UpdateNodePositionCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// UpdateNodeDataCommand replaces a node's data payload.
type UpdateNodeDataCommand struct {
	CommandMeta
	NodeID  string   `json:"node_id"`
	NewData NodeData `json:"new_data"`
	OldData NodeData `json:"old_data"`
}

func (c UpdateNodeDataCommand) Type() CommandType { return CommandUpdateNodeData }
func (c UpdateNodeDataCommand) Meta() CommandMeta { return c.CommandMeta }
func (c UpdateNodeDataCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// RemoveNodeCommand removes a node by id. The pre-removal node state needed
// for the inverse is captured by the history middleware, not carried here.
type RemoveNodeCommand struct {
	CommandMeta
	NodeID string `json:"node_id"`
}

func (c RemoveNodeCommand) Type() CommandType { return CommandRemoveNode }
func (c RemoveNodeCommand) Meta() CommandMeta { return c.CommandMeta }
func (c RemoveNodeCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// AddEdgeCommand adds an edge between two existing nodes.
type AddEdgeCommand struct {
	CommandMeta
	EdgeID   string     `json:"edge_id"`
	SourceID string     `json:"source_id"`
	TargetID string     `json:"target_id"`
	Vertices []Position `json:"vertices,omitempty"`
	Data     EdgeData   `json:"data"`
}

func (c AddEdgeCommand) Type() CommandType { return CommandAddEdge }
func (c AddEdgeCommand) Meta() CommandMeta { return c.CommandMeta }
func (c AddEdgeCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// UpdateEdgeVerticesCommand replaces an edge's routing vertices.
type UpdateEdgeVerticesCommand struct {
	CommandMeta
	EdgeID      string     `json:"edge_id"`
	NewVertices []Position `json:"new_vertices"`
	OldVertices []Position `json:"old_vertices"`
}

func (c UpdateEdgeVerticesCommand) Type() CommandType { return CommandUpdateEdgeVertices }
func (c UpdateEdgeVerticesCommand) Meta() CommandMeta { return c.CommandMeta }
func (c UpdateEdgeVerticesCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// UpdateEdgeDataCommand replaces an edge's data payload.
type UpdateEdgeDataCommand struct {
	CommandMeta
	EdgeID  string   `json:"edge_id"`
	NewData EdgeData `json:"new_data"`
	OldData EdgeData `json:"old_data"`
}

func (c UpdateEdgeDataCommand) Type() CommandType { return CommandUpdateEdgeData }
func (c UpdateEdgeDataCommand) Meta() CommandMeta { return c.CommandMeta }
func (c UpdateEdgeDataCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// RemoveEdgeCommand removes an edge by id.
type RemoveEdgeCommand struct {
	CommandMeta
	EdgeID string `json:"edge_id"`
}

func (c RemoveEdgeCommand) Type() CommandType { return CommandRemoveEdge }
func (c RemoveEdgeCommand) Meta() CommandMeta { return c.CommandMeta }
func (c RemoveEdgeCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	return c
}

// CompositeCommand wraps an ordered sequence of sub-commands.
//
// The composite is expanded by its handler, which dispatches each sub-command
// through the bus in array order and aborts on the first failure without
// compensating already-applied sub-commands. Composite execution is therefore
// not transactional; undo of a fully-applied composite is handled by the
// inverse factory (sub-inverses in reverse order).
type CompositeCommand struct {
	CommandMeta
	Commands []Command `json:"commands"`
}

func (c CompositeCommand) Type() CommandType { return CommandComposite }
func (c CompositeCommand) Meta() CommandMeta { return c.CommandMeta }
func (c CompositeCommand) ForReplay() Command {
	c.CommandMeta = c.CommandMeta.replay()
	subs := make([]Command, len(c.Commands))
	for i, sub := range c.Commands {
		subs[i] = sub.ForReplay()
	}
	c.Commands = subs
	return c
}

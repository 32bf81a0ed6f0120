// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregate(t *testing.T) *DiagramAggregate {
	t.Helper()
	agg := NewDiagramAggregate(CreateDiagramCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		Name:        "Test Diagram",
	})
	agg.MarkEventsCommitted()
	return agg
}

func addNode(t *testing.T, agg *DiagramAggregate, nodeID string) {
	t.Helper()
	err := agg.ProcessCommand(AddNodeCommand{
		CommandMeta: NewMeta(agg.ID(), "user-1", ""),
		NodeID:      nodeID,
		Position:    Position{X: 10, Y: 20},
		Data:        NodeData{Kind: "process", Label: "Checkout"},
	})
	require.NoError(t, err)
}

func TestNewDiagramAggregate(t *testing.T) {
	agg := NewDiagramAggregate(CreateDiagramCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		Name:        "Payments",
	})

	assert.Equal(t, "diagram-1", agg.ID())
	assert.Equal(t, "Payments", agg.Name())
	assert.Equal(t, uint64(0), agg.Version())

	events := agg.UncommittedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventDiagramCreated, events[0].Type)
	assert.Equal(t, uint64(0), events[0].Sequence)
}

func TestProcessCommand_OneEventPerCommand(t *testing.T) {
	agg := newTestAggregate(t)

	addNode(t, agg, "node-1")
	addNode(t, agg, "node-2")

	events := agg.UncommittedEvents()
	require.Len(t, events, 2)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)
	assert.Equal(t, uint64(2), agg.Version())

	agg.MarkEventsCommitted()
	assert.Empty(t, agg.UncommittedEvents())
}

func TestProcessCommand_WrongDiagram(t *testing.T) {
	agg := newTestAggregate(t)

	err := agg.ProcessCommand(AddNodeCommand{
		CommandMeta: NewMeta("other-diagram", "user-1", ""),
		NodeID:      "node-1",
	})

	assert.True(t, IsValidation(err))
	assert.Equal(t, uint64(0), agg.Version())
}

func TestProcessCommand_DuplicateNode(t *testing.T) {
	agg := newTestAggregate(t)
	addNode(t, agg, "node-1")

	err := agg.ProcessCommand(AddNodeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		NodeID:      "node-1",
	})

	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "node", dup.Kind)
	// Failed command leaves the version untouched.
	assert.Equal(t, uint64(1), agg.Version())
}

func TestProcessCommand_UpdateMissingNode(t *testing.T) {
	agg := newTestAggregate(t)

	err := agg.ProcessCommand(UpdateNodePositionCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		NodeID:      "ghost",
		NewPosition: Position{X: 1, Y: 1},
	})

	assert.True(t, IsNotFound(err))
}

func TestProcessCommand_MoveNode(t *testing.T) {
	agg := newTestAggregate(t)
	addNode(t, agg, "node-1")
	agg.MarkEventsCommitted()

	err := agg.ProcessCommand(UpdateNodePositionCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		NodeID:      "node-1",
		NewPosition: Position{X: 99, Y: 1},
		OldPosition: Position{X: 10, Y: 20},
	})
	require.NoError(t, err)

	node, ok := agg.Node("node-1")
	require.True(t, ok)
	assert.Equal(t, Position{X: 99, Y: 1}, node.Position)

	events := agg.UncommittedEvents()
	require.Len(t, events, 1)
	payload, ok := events[0].Payload.(NodeMovedPayload)
	require.True(t, ok)
	assert.Equal(t, Position{X: 10, Y: 20}, payload.OldPosition)
	assert.Equal(t, Position{X: 99, Y: 1}, payload.NewPosition)
}

func TestProcessCommand_AddEdgeRequiresEndpoints(t *testing.T) {
	agg := newTestAggregate(t)
	addNode(t, agg, "node-a")

	err := agg.ProcessCommand(AddEdgeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		EdgeID:      "edge-1",
		SourceID:    "node-a",
		TargetID:    "node-missing",
	})

	assert.True(t, IsNotFound(err))
}

func TestProcessCommand_RemoveNodeLeavesDanglingEdges(t *testing.T) {
	agg := newTestAggregate(t)
	addNode(t, agg, "node-a")
	addNode(t, agg, "node-b")
	require.NoError(t, agg.ProcessCommand(AddEdgeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		EdgeID:      "edge-1",
		SourceID:    "node-a",
		TargetID:    "node-b",
	}))

	require.NoError(t, agg.ProcessCommand(RemoveNodeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		NodeID:      "node-a",
	}))

	// The edge stays, with a dangling source. Cascade removal is the
	// caller's job via a composite command.
	_, ok := agg.Edge("edge-1")
	assert.True(t, ok)
	assert.Len(t, agg.EdgesForNode("node-a"), 1)
}

func TestProcessCommand_EdgeLifecycle(t *testing.T) {
	agg := newTestAggregate(t)
	addNode(t, agg, "node-a")
	addNode(t, agg, "node-b")

	require.NoError(t, agg.ProcessCommand(AddEdgeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		EdgeID:      "edge-1",
		SourceID:    "node-a",
		TargetID:    "node-b",
		Data:        EdgeData{Kind: "flow", Label: "submits"},
	}))

	require.NoError(t, agg.ProcessCommand(UpdateEdgeVerticesCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		EdgeID:      "edge-1",
		NewVertices: []Position{{X: 50, Y: 50}},
	}))

	edge, ok := agg.Edge("edge-1")
	require.True(t, ok)
	assert.Equal(t, []Position{{X: 50, Y: 50}}, edge.Vertices)

	require.NoError(t, agg.ProcessCommand(RemoveEdgeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		EdgeID:      "edge-1",
	}))
	_, ok = agg.Edge("edge-1")
	assert.False(t, ok)
}

func TestProcessCommand_RejectsComposite(t *testing.T) {
	agg := newTestAggregate(t)

	err := agg.ProcessCommand(CompositeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		Commands: []Command{RemoveNodeCommand{
			CommandMeta: NewMeta("diagram-1", "user-1", ""),
			NodeID:      "node-1",
		}},
	})

	assert.True(t, IsValidation(err))
}

func TestRestoreDiagramAggregate(t *testing.T) {
	agg := newTestAggregate(t)
	addNode(t, agg, "node-1")
	agg.MarkEventsCommitted()

	restored := RestoreDiagramAggregate(agg.Snapshot())

	assert.Equal(t, agg.ID(), restored.ID())
	assert.Equal(t, agg.Version(), restored.Version())
	assert.Empty(t, restored.UncommittedEvents())
	assert.True(t, agg.Snapshot().StructurallyEqual(restored.Snapshot()))
}

func TestErrorHelpers(t *testing.T) {
	nf := NewNotFoundError("node", "n1")
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsValidation(nf))

	ve := NewValidationError("field", "reason")
	assert.True(t, errors.Is(ve, ErrValidation))
	assert.True(t, IsValidation(ve))
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMeta(t *testing.T) {
	meta := NewMeta("diagram-1", "user-1", "op-1")

	assert.NotEmpty(t, meta.CommandID)
	assert.Equal(t, "diagram-1", meta.DiagramID)
	assert.Equal(t, "user-1", meta.UserID)
	assert.Equal(t, "op-1", meta.OperationID)
	assert.True(t, meta.IsLocalUserInitiated)
	assert.False(t, meta.Timestamp.IsZero())
}

func TestForReplay_ClearsOriginAndRenewsID(t *testing.T) {
	original := AddNodeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", "op-1"),
		NodeID:      "node-1",
		Position:    Position{X: 1, Y: 2},
	}

	replay, ok := original.ForReplay().(AddNodeCommand)
	require.True(t, ok)

	assert.False(t, replay.Meta().IsLocalUserInitiated)
	assert.NotEqual(t, original.CommandID, replay.CommandID)
	// Everything else survives the replay copy.
	assert.Equal(t, original.DiagramID, replay.DiagramID)
	assert.Equal(t, original.UserID, replay.UserID)
	assert.Equal(t, original.OperationID, replay.OperationID)
	assert.Equal(t, original.NodeID, replay.NodeID)
	assert.Equal(t, original.Position, replay.Position)

	// The original is untouched; commands are values.
	assert.True(t, original.Meta().IsLocalUserInitiated)
}

func TestForReplay_CompositeRecurses(t *testing.T) {
	sub := RemoveNodeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		NodeID:      "node-1",
	}
	comp := CompositeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		Commands:    []Command{sub},
	}

	replay, ok := comp.ForReplay().(CompositeCommand)
	require.True(t, ok)

	assert.False(t, replay.Meta().IsLocalUserInitiated)
	require.Len(t, replay.Commands, 1)
	assert.False(t, replay.Commands[0].Meta().IsLocalUserInitiated)
	assert.NotEqual(t, sub.CommandID, replay.Commands[0].Meta().CommandID)
	// The original sub-command slice is untouched.
	assert.True(t, comp.Commands[0].Meta().IsLocalUserInitiated)
}

func TestCommandTypes(t *testing.T) {
	meta := NewMeta("d", "u", "")
	tests := []struct {
		cmd  Command
		want CommandType
	}{
		{CreateDiagramCommand{CommandMeta: meta}, CommandCreateDiagram},
		{AddNodeCommand{CommandMeta: meta}, CommandAddNode},
		{UpdateNodePositionCommand{CommandMeta: meta}, CommandUpdateNodePosition},
		{UpdateNodeDataCommand{CommandMeta: meta}, CommandUpdateNodeData},
		{RemoveNodeCommand{CommandMeta: meta}, CommandRemoveNode},
		{AddEdgeCommand{CommandMeta: meta}, CommandAddEdge},
		{UpdateEdgeVerticesCommand{CommandMeta: meta}, CommandUpdateEdgeVertices},
		{UpdateEdgeDataCommand{CommandMeta: meta}, CommandUpdateEdgeData},
		{RemoveEdgeCommand{CommandMeta: meta}, CommandRemoveEdge},
		{CompositeCommand{CommandMeta: meta}, CommandComposite},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.cmd.Type())
		assert.Equal(t, meta.CommandID, tt.cmd.Meta().CommandID)
	}
}

func TestNodeDataClone_Isolation(t *testing.T) {
	data := NodeData{
		Kind:       "process",
		Attributes: map[string]string{"color": "blue"},
	}

	cloned := data.clone()
	cloned.Attributes["color"] = "red"

	assert.Equal(t, "blue", data.Attributes["color"])
}

func TestSnapshot_DeepCopy(t *testing.T) {
	agg := newTestAggregate(t)
	require.NoError(t, agg.ProcessCommand(AddNodeCommand{
		CommandMeta: NewMeta("diagram-1", "user-1", ""),
		NodeID:      "node-1",
		Data:        NodeData{Kind: "process", Attributes: map[string]string{"color": "blue"}},
	}))

	snap := agg.Snapshot()
	n := snap.Nodes["node-1"]
	n.Data.Attributes["color"] = "red"

	// Mutating the snapshot must not leak into the aggregate.
	node, _ := agg.Node("node-1")
	assert.Equal(t, "blue", node.Data.Attributes["color"])
}

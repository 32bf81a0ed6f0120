// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

func TestDecodeCommand_AddNode(t *testing.T) {
	data := []byte(`{
		"type": "node.add",
		"node_id": "node-1",
		"position": {"x": 10, "y": 20},
		"data": {"kind": "process", "label": "Checkout", "attributes": {"color": "blue"}}
	}`)

	cmd, err := DecodeCommand(data, "diagram-1", "user-1")

	require.NoError(t, err)
	add, ok := cmd.(domain.AddNodeCommand)
	require.True(t, ok)
	assert.Equal(t, "node-1", add.NodeID)
	assert.Equal(t, domain.Position{X: 10, Y: 20}, add.Position)
	assert.Equal(t, "Checkout", add.Data.Label)
	assert.Equal(t, "blue", add.Data.Attributes["color"])
}

func TestDecodeCommand_ServerOwnsMeta(t *testing.T) {
	// A client trying to spoof the envelope gets overwritten.
	data := []byte(`{
		"type": "node.remove",
		"node_id": "node-1",
		"command_id": "spoofed",
		"diagram_id": "other-diagram",
		"user_id": "someone-else",
		"is_local_user_initiated": false
	}`)

	cmd, err := DecodeCommand(data, "diagram-1", "user-1")

	require.NoError(t, err)
	meta := cmd.Meta()
	assert.NotEqual(t, "spoofed", meta.CommandID)
	assert.Equal(t, "diagram-1", meta.DiagramID)
	assert.Equal(t, "user-1", meta.UserID)
	assert.True(t, meta.IsLocalUserInitiated)
	assert.False(t, meta.Timestamp.IsZero())
}

func TestDecodeCommand_PreservesOperationID(t *testing.T) {
	data := []byte(`{
		"type": "node.update_position",
		"node_id": "node-1",
		"new_position": {"x": 5, "y": 5},
		"old_position": {"x": 0, "y": 0},
		"operation_id": "op-drag-1"
	}`)

	cmd, err := DecodeCommand(data, "diagram-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, "op-drag-1", cmd.Meta().OperationID)
}

func TestDecodeCommand_Composite(t *testing.T) {
	data := []byte(`{
		"type": "composite",
		"commands": [
			{"type": "node.add", "node_id": "node-a", "position": {"x": 0, "y": 0}, "data": {"kind": "process"}},
			{"type": "node.remove", "node_id": "node-b"}
		]
	}`)

	cmd, err := DecodeCommand(data, "diagram-1", "user-1")

	require.NoError(t, err)
	comp, ok := cmd.(domain.CompositeCommand)
	require.True(t, ok)
	require.Len(t, comp.Commands, 2)
	assert.Equal(t, domain.CommandAddNode, comp.Commands[0].Type())
	assert.Equal(t, domain.CommandRemoveNode, comp.Commands[1].Type())
	// Sub-commands are bound to the same diagram.
	assert.Equal(t, "diagram-1", comp.Commands[0].Meta().DiagramID)
}

func TestDecodeCommand_Failures(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type": "node.explode"}`},
		{"empty composite", `{"type": "composite", "commands": []}`},
		{"nested composite", `{"type": "composite", "commands": [{"type": "composite", "commands": [{"type": "node.remove", "node_id": "n"}]}]}`},
		{"malformed sub-command", `{"type": "composite", "commands": [{"type": "node.add", "position": "bad"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.data), "diagram-1", "user-1")

			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestWithOperationID(t *testing.T) {
	cmd, err := DecodeCommand([]byte(`{"type":"node.remove","node_id":"node-1"}`), "diagram-1", "user-1")
	require.NoError(t, err)

	tagged := withOperationID(cmd, "op-1")
	assert.Equal(t, "op-1", tagged.Meta().OperationID)

	untouched := withOperationID(cmd, "")
	assert.Empty(t, untouched.Meta().OperationID)
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// commandEnvelope is the wire shape shared by every command. The type field
// selects the concrete struct the full payload unmarshals into.
type commandEnvelope struct {
	Type domain.CommandType `json:"type"`
}

// compositePayload carries raw sub-commands so they can be decoded
// recursively after the envelope is read.
type compositePayload struct {
	domain.CommandMeta
	Commands []json.RawMessage `json:"commands"`
}

// DecodeCommand turns a JSON command payload from a client into a concrete
// domain command. The server owns the envelope: command id, timestamp, and
// the local-origin flag are stamped here, never trusted from the wire. The
// caller supplies the diagram and user the command is bound to.
func DecodeCommand(data []byte, diagramID, userID string) (domain.Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domain.NewValidationError("body", "malformed command JSON")
	}

	cmd, err := decodeTyped(env.Type, data, diagramID, userID)
	if err != nil {
		return nil, err
	}
	return cmd, nil
}

func decodeTyped(typ domain.CommandType, data []byte, diagramID, userID string) (domain.Command, error) {
	switch typ {
	case domain.CommandCreateDiagram:
		var c domain.CreateDiagramCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandAddNode:
		var c domain.AddNodeCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandUpdateNodePosition:
		var c domain.UpdateNodePositionCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandUpdateNodeData:
		var c domain.UpdateNodeDataCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandRemoveNode:
		var c domain.RemoveNodeCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandAddEdge:
		var c domain.AddEdgeCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandUpdateEdgeVertices:
		var c domain.UpdateEdgeVerticesCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandUpdateEdgeData:
		var c domain.UpdateEdgeDataCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandRemoveEdge:
		var c domain.RemoveEdgeCommand
		return stamped(&c, data, diagramID, userID)
	case domain.CommandComposite:
		return decodeComposite(data, diagramID, userID)
	default:
		return nil, domain.NewValidationError("type", fmt.Sprintf("unknown command type %q", typ))
	}
}

func stamped[T domain.Command](c *T, data []byte, diagramID, userID string) (domain.Command, error) {
	if err := json.Unmarshal(data, c); err != nil {
		return nil, domain.NewValidationError("body", "malformed command payload")
	}
	meta := (*c).Meta()
	applyServerMeta(&meta, diagramID, userID)
	return withMeta(*c, meta), nil
}

// withMeta rebuilds the command value with the stamped meta. Commands are
// value types, so this is a copy, not a mutation.
func withMeta(cmd domain.Command, meta domain.CommandMeta) domain.Command {
	switch c := cmd.(type) {
	case domain.CreateDiagramCommand:
		c.CommandMeta = meta
		return c
	case domain.AddNodeCommand:
		c.CommandMeta = meta
		return c
	case domain.UpdateNodePositionCommand:
		c.CommandMeta = meta
		return c
	case domain.UpdateNodeDataCommand:
		c.CommandMeta = meta
		return c
	case domain.RemoveNodeCommand:
		c.CommandMeta = meta
		return c
	case domain.AddEdgeCommand:
		c.CommandMeta = meta
		return c
	case domain.UpdateEdgeVerticesCommand:
		c.CommandMeta = meta
		return c
	case domain.UpdateEdgeDataCommand:
		c.CommandMeta = meta
		return c
	case domain.RemoveEdgeCommand:
		c.CommandMeta = meta
		return c
	case domain.CompositeCommand:
		c.CommandMeta = meta
		return c
	default:
		return cmd
	}
}

func decodeComposite(data []byte, diagramID, userID string) (domain.Command, error) {
	var payload compositePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, domain.NewValidationError("body", "malformed composite payload")
	}
	if len(payload.Commands) == 0 {
		return nil, domain.NewValidationError("commands", "composite command has no sub-commands")
	}

	subs := make([]domain.Command, 0, len(payload.Commands))
	for i, raw := range payload.Commands {
		sub, err := DecodeCommand(raw, diagramID, userID)
		if err != nil {
			return nil, domain.NewValidationError("commands",
				fmt.Sprintf("sub-command %d: %v", i, err))
		}
		if sub.Type() == domain.CommandComposite {
			return nil, domain.NewValidationError("commands", "nested composite commands are not supported")
		}
		subs = append(subs, sub)
	}

	meta := payload.CommandMeta
	applyServerMeta(&meta, diagramID, userID)
	return domain.CompositeCommand{CommandMeta: meta, Commands: subs}, nil
}

// applyServerMeta overwrites the fields the server owns and fills defaults
// for the rest.
func applyServerMeta(meta *domain.CommandMeta, diagramID, userID string) {
	meta.CommandID = uuid.New().String()
	meta.DiagramID = diagramID
	meta.UserID = userID
	meta.Timestamp = time.Now().UTC()
	meta.IsLocalUserInitiated = true
}

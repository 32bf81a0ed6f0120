// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package inverse derives undo commands from executed commands.
//
// Inversion is a structural mapping: adds become removes, removes become
// adds rebuilt from the pre-execution snapshot, updates swap their new and
// old payloads, and a composite inverts to its sub-inverses in reverse
// order. The factory never consults live aggregate state; everything it
// needs is in the command payload or the captured before snapshot.
package inverse

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// ErrInverseGeneration is wrapped by every InverseGenerationError.
var ErrInverseGeneration = errors.New("inverse generation failed")

// InverseGenerationError reports that an inverse could not be safely built
// or validated. Recording is skipped; the original command still succeeds.
type InverseGenerationError struct {
	CommandType domain.CommandType
	Reason      string
}

func (e *InverseGenerationError) Error() string {
	return fmt.Sprintf("cannot invert %q: %s", e.CommandType, e.Reason)
}

func (e *InverseGenerationError) Unwrap() error { return ErrInverseGeneration }

func generationError(typ domain.CommandType, format string, args ...any) error {
	return &InverseGenerationError{CommandType: typ, Reason: fmt.Sprintf(format, args...)}
}

// invertibleTypes is the fixed set of command types an inverse exists for.
var invertibleTypes = map[domain.CommandType]bool{
	domain.CommandAddNode:            true,
	domain.CommandUpdateNodePosition: true,
	domain.CommandUpdateNodeData:     true,
	domain.CommandRemoveNode:         true,
	domain.CommandAddEdge:            true,
	domain.CommandUpdateEdgeVertices: true,
	domain.CommandUpdateEdgeData:     true,
	domain.CommandRemoveEdge:         true,
	domain.CommandComposite:          true,
}

// Factory builds and validates inverse commands.
type Factory struct{}

// NewFactory creates a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// CanCreateInverse reports whether the command's type is in the invertible
// set. Diagram creation is not invertible.
func (f *Factory) CanCreateInverse(cmd domain.Command) bool {
	return invertibleTypes[cmd.Type()]
}

// CreateInverse derives the inverse of cmd against the pre-execution
// snapshot. The inverse carries a fresh command id and the same diagram,
// user, origin flag, and operation id as the original.
func (f *Factory) CreateInverse(cmd domain.Command, before domain.DiagramSnapshot) (domain.Command, error) {
	if !f.CanCreateInverse(cmd) {
		return nil, generationError(cmd.Type(), "type is not invertible")
	}

	meta := inverseMeta(cmd.Meta())

	switch c := cmd.(type) {
	case domain.AddNodeCommand:
		return domain.RemoveNodeCommand{CommandMeta: meta, NodeID: c.NodeID}, nil

	case domain.RemoveNodeCommand:
		node, ok := before.Node(c.NodeID)
		if !ok {
			return nil, generationError(cmd.Type(), "node %q missing from before state", c.NodeID)
		}
		return domain.AddNodeCommand{
			CommandMeta: meta,
			NodeID:      node.ID,
			Position:    node.Position,
			Data:        node.Data,
		}, nil

	case domain.UpdateNodePositionCommand:
		return domain.UpdateNodePositionCommand{
			CommandMeta: meta,
			NodeID:      c.NodeID,
			NewPosition: c.OldPosition,
			OldPosition: c.NewPosition,
		}, nil

	case domain.UpdateNodeDataCommand:
		return domain.UpdateNodeDataCommand{
			CommandMeta: meta,
			NodeID:      c.NodeID,
			NewData:     c.OldData,
			OldData:     c.NewData,
		}, nil

	case domain.AddEdgeCommand:
		return domain.RemoveEdgeCommand{CommandMeta: meta, EdgeID: c.EdgeID}, nil

	case domain.RemoveEdgeCommand:
		edge, ok := before.Edge(c.EdgeID)
		if !ok {
			return nil, generationError(cmd.Type(), "edge %q missing from before state", c.EdgeID)
		}
		return domain.AddEdgeCommand{
			CommandMeta: meta,
			EdgeID:      edge.ID,
			SourceID:    edge.SourceID,
			TargetID:    edge.TargetID,
			Vertices:    edge.Vertices,
			Data:        edge.Data,
		}, nil

	case domain.UpdateEdgeVerticesCommand:
		return domain.UpdateEdgeVerticesCommand{
			CommandMeta: meta,
			EdgeID:      c.EdgeID,
			NewVertices: c.OldVertices,
			OldVertices: c.NewVertices,
		}, nil

	case domain.UpdateEdgeDataCommand:
		return domain.UpdateEdgeDataCommand{
			CommandMeta: meta,
			EdgeID:      c.EdgeID,
			NewData:     c.OldData,
			OldData:     c.NewData,
		}, nil

	case domain.CompositeCommand:
		// Sub-inverses in reverse order: the last applied sub-command must
		// be undone first. All sub-inverses are derived against the same
		// pre-composite snapshot.
		subs := make([]domain.Command, 0, len(c.Commands))
		for i := len(c.Commands) - 1; i >= 0; i-- {
			inv, err := f.CreateInverse(c.Commands[i], before)
			if err != nil {
				return nil, fmt.Errorf("sub-command %d: %w", i, err)
			}
			subs = append(subs, inv)
		}
		return domain.CompositeCommand{CommandMeta: meta, Commands: subs}, nil

	default:
		return nil, generationError(cmd.Type(), "no structural mapping for concrete type %T", cmd)
	}
}

// ValidateInverse checks that inverse is the structurally expected inverse
// of cmd: the right type and the right target id. A mismatch returns an
// InverseGenerationError so a malformed entry never corrupts history.
func (f *Factory) ValidateInverse(cmd, inv domain.Command) error {
	expected, ok := expectedInverseType(cmd.Type())
	if !ok {
		return generationError(cmd.Type(), "type is not invertible")
	}
	if inv.Type() != expected {
		return generationError(cmd.Type(), "inverse has type %q, expected %q", inv.Type(), expected)
	}
	if inv.Meta().DiagramID != cmd.Meta().DiagramID {
		return generationError(cmd.Type(), "inverse targets diagram %q, expected %q",
			inv.Meta().DiagramID, cmd.Meta().DiagramID)
	}

	cmdTarget, err := targetID(cmd)
	if err != nil {
		return err
	}
	invTarget, err := targetID(inv)
	if err != nil {
		return err
	}
	if cmdTarget != invTarget {
		return generationError(cmd.Type(), "inverse targets %q, expected %q", invTarget, cmdTarget)
	}

	if c, ok := cmd.(domain.CompositeCommand); ok {
		i, ok := inv.(domain.CompositeCommand)
		if !ok {
			return generationError(cmd.Type(), "composite inverse is not a composite")
		}
		if len(i.Commands) != len(c.Commands) {
			return generationError(cmd.Type(), "composite inverse has %d sub-commands, expected %d",
				len(i.Commands), len(c.Commands))
		}
		for idx := range c.Commands {
			// Sub-inverse order is reversed relative to the original.
			mirror := i.Commands[len(i.Commands)-1-idx]
			if err := f.ValidateInverse(c.Commands[idx], mirror); err != nil {
				return fmt.Errorf("sub-command %d: %w", idx, err)
			}
		}
	}
	return nil
}

// expectedInverseType returns the inverse command type for each invertible
// type.
func expectedInverseType(typ domain.CommandType) (domain.CommandType, bool) {
	switch typ {
	case domain.CommandAddNode:
		return domain.CommandRemoveNode, true
	case domain.CommandRemoveNode:
		return domain.CommandAddNode, true
	case domain.CommandUpdateNodePosition:
		return domain.CommandUpdateNodePosition, true
	case domain.CommandUpdateNodeData:
		return domain.CommandUpdateNodeData, true
	case domain.CommandAddEdge:
		return domain.CommandRemoveEdge, true
	case domain.CommandRemoveEdge:
		return domain.CommandAddEdge, true
	case domain.CommandUpdateEdgeVertices:
		return domain.CommandUpdateEdgeVertices, true
	case domain.CommandUpdateEdgeData:
		return domain.CommandUpdateEdgeData, true
	case domain.CommandComposite:
		return domain.CommandComposite, true
	default:
		return "", false
	}
}

// targetID extracts the cell id a command operates on. Composites have no
// single target; they validate per sub-command.
func targetID(cmd domain.Command) (string, error) {
	switch c := cmd.(type) {
	case domain.AddNodeCommand:
		return c.NodeID, nil
	case domain.RemoveNodeCommand:
		return c.NodeID, nil
	case domain.UpdateNodePositionCommand:
		return c.NodeID, nil
	case domain.UpdateNodeDataCommand:
		return c.NodeID, nil
	case domain.AddEdgeCommand:
		return c.EdgeID, nil
	case domain.RemoveEdgeCommand:
		return c.EdgeID, nil
	case domain.UpdateEdgeVerticesCommand:
		return c.EdgeID, nil
	case domain.UpdateEdgeDataCommand:
		return c.EdgeID, nil
	case domain.CompositeCommand:
		return "", nil
	default:
		return "", generationError(cmd.Type(), "no target id for concrete type %T", cmd)
	}
}

// inverseMeta copies the original envelope with a fresh id and timestamp.
func inverseMeta(m domain.CommandMeta) domain.CommandMeta {
	inv := m
	inv.CommandID = uuid.New().String()
	inv.Timestamp = time.Now().UTC()
	return inv
}

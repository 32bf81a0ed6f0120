// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/KodiakLabs/KodiakFlow/pkg/validation"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// ValidationMiddleware rejects structurally malformed commands before they
// reach the handler. Failures are ValidationErrors and short-circuit the
// pipeline.
type ValidationMiddleware struct {
	validate *validator.Validate
}

// NewValidationMiddleware creates the validation middleware.
func NewValidationMiddleware() *ValidationMiddleware {
	return &ValidationMiddleware{validate: validator.New()}
}

func (m *ValidationMiddleware) Name() string  { return "validation" }
func (m *ValidationMiddleware) Priority() int { return PriorityValidation }

func (m *ValidationMiddleware) Execute(ctx context.Context, cmd domain.Command, next bus.Next) (*bus.Result, error) {
	if err := m.validateCommand(cmd); err != nil {
		return nil, err
	}
	return next(ctx, cmd)
}

func (m *ValidationMiddleware) validateCommand(cmd domain.Command) error {
	meta := cmd.Meta()
	if err := m.validate.Var(meta.CommandID, "required,uuid4"); err != nil {
		return domain.NewValidationError("command_id", "must be a UUID")
	}
	if err := validation.ValidateCellID("diagram_id", meta.DiagramID); err != nil {
		return domain.NewValidationError("diagram_id", err.Error())
	}
	if err := validation.ValidateUserID(meta.UserID); err != nil {
		return domain.NewValidationError("user_id", err.Error())
	}
	if meta.Timestamp.IsZero() {
		return domain.NewValidationError("timestamp", "must be set")
	}

	switch c := cmd.(type) {
	case domain.CreateDiagramCommand:
		if err := m.validate.Var(c.Name, "required,max=255"); err != nil {
			return domain.NewValidationError("name", "must be 1-255 characters")
		}
	case domain.AddNodeCommand:
		return cellID("node_id", c.NodeID)
	case domain.UpdateNodePositionCommand:
		return cellID("node_id", c.NodeID)
	case domain.UpdateNodeDataCommand:
		return cellID("node_id", c.NodeID)
	case domain.RemoveNodeCommand:
		return cellID("node_id", c.NodeID)
	case domain.AddEdgeCommand:
		for field, id := range map[string]string{
			"edge_id": c.EdgeID, "source_id": c.SourceID, "target_id": c.TargetID,
		} {
			if err := cellID(field, id); err != nil {
				return err
			}
		}
	case domain.UpdateEdgeVerticesCommand:
		return cellID("edge_id", c.EdgeID)
	case domain.UpdateEdgeDataCommand:
		return cellID("edge_id", c.EdgeID)
	case domain.RemoveEdgeCommand:
		return cellID("edge_id", c.EdgeID)
	case domain.CompositeCommand:
		if len(c.Commands) == 0 {
			return domain.NewValidationError("commands", "composite command has no sub-commands")
		}
		// Sub-commands are validated individually when the composite
		// handler re-dispatches them through the pipeline.
	default:
		return domain.NewValidationError("type", fmt.Sprintf("unknown command type %q", cmd.Type()))
	}
	return nil
}

func cellID(field, id string) error {
	if err := validation.ValidateCellID(field, id); err != nil {
		return domain.NewValidationError(field, err.Error())
	}
	return nil
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"log/slog"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/journal"
)

// SerializationMiddleware appends each successfully executed command to the
// durable command journal. Journal failures are logged and never fail the
// command: the aggregate write is the source of truth, the journal is an
// audit trail.
type SerializationMiddleware struct {
	journal *journal.CommandJournal
	logger  *slog.Logger
}

// NewSerializationMiddleware creates the serialization middleware. A nil
// logger falls back to slog.Default().
func NewSerializationMiddleware(j *journal.CommandJournal, logger *slog.Logger) *SerializationMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &SerializationMiddleware{journal: j, logger: logger}
}

func (m *SerializationMiddleware) Name() string  { return "serialization" }
func (m *SerializationMiddleware) Priority() int { return PrioritySerialization }

func (m *SerializationMiddleware) Execute(ctx context.Context, cmd domain.Command, next bus.Next) (*bus.Result, error) {
	result, err := next(ctx, cmd)
	if err != nil {
		return nil, err
	}

	if m.journal != nil {
		if jerr := m.journal.Append(ctx, cmd); jerr != nil {
			m.logger.WarnContext(ctx, "journal append failed",
				"command_id", cmd.Meta().CommandID,
				"command_type", string(cmd.Type()),
				"error", jerr.Error())
		}
	}
	return result, nil
}

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
	"time"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

// LoggingMiddleware emits one structured log line per dispatched command,
// covering both outcomes.
type LoggingMiddleware struct {
	logger *slog.Logger
}

// NewLoggingMiddleware creates the logging middleware. A nil logger falls
// back to slog.Default().
func NewLoggingMiddleware(logger *slog.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) Name() string  { return "logging" }
func (m *LoggingMiddleware) Priority() int { return PriorityLogging }

func (m *LoggingMiddleware) Execute(ctx context.Context, cmd domain.Command, next bus.Next) (*bus.Result, error) {
	meta := cmd.Meta()
	start := time.Now()

	result, err := next(ctx, cmd)
	elapsed := time.Since(start)

	attrs := []any{
		"command_type", string(cmd.Type()),
		"command_id", meta.CommandID,
		"diagram_id", meta.DiagramID,
		"user_id", meta.UserID,
		"local_origin", meta.IsLocalUserInitiated,
		"duration_ms", elapsed.Milliseconds(),
	}
	if meta.OperationID != "" {
		attrs = append(attrs, "operation_id", meta.OperationID)
	}

	if err != nil {
		attrs = append(attrs, "error", err.Error())
		m.logger.WarnContext(ctx, "command failed", attrs...)
		return nil, err
	}

	attrs = append(attrs, "events", len(result.Events))
	m.logger.InfoContext(ctx, "command executed", attrs...)
	return result, nil
}

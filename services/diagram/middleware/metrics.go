// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"context"
	"time"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/observability"
)

// MetricsMiddleware records command counts and latency. It sits inside the
// serialization layer so the observed duration covers the handler and the
// history bookkeeping but not journaling.
type MetricsMiddleware struct {
	metrics *observability.Metrics
}

// NewMetricsMiddleware creates the metrics middleware.
func NewMetricsMiddleware(m *observability.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

func (m *MetricsMiddleware) Name() string  { return "metrics" }
func (m *MetricsMiddleware) Priority() int { return PriorityMetrics }

func (m *MetricsMiddleware) Execute(ctx context.Context, cmd domain.Command, next bus.Next) (*bus.Result, error) {
	typ := string(cmd.Type())
	start := time.Now()

	result, err := next(ctx, cmd)

	m.metrics.CommandDurationSeconds.WithLabelValues(typ).Observe(time.Since(start).Seconds())
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.metrics.CommandsTotal.WithLabelValues(typ, outcome).Inc()
	return result, err
}

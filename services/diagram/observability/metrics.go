// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability defines the Prometheus metrics for the diagram
// service. Metrics are registered with a caller-supplied registry so tests
// can use an isolated one.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "kodiakflow"
	diagramSubsystem = "diagram"
)

// Metrics holds every metric the diagram service emits.
type Metrics struct {
	// CommandsTotal counts dispatched commands by type and outcome.
	CommandsTotal *prometheus.CounterVec

	// CommandDurationSeconds observes full pipeline dispatch latency.
	CommandDurationSeconds *prometheus.HistogramVec

	// HistoryEntriesRecorded counts history entries written.
	HistoryEntriesRecorded prometheus.Counter

	// UndoStackSize and RedoStackSize gauge the current stack depths.
	UndoStackSize prometheus.Gauge
	RedoStackSize prometheus.Gauge

	// UndoTotal counts undo/redo attempts by direction and outcome.
	UndoTotal *prometheus.CounterVec

	// ActiveOperations gauges gestures currently tracked as Active.
	ActiveOperations prometheus.Gauge

	// WebsocketClients gauges connected graph-view clients.
	WebsocketClients prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := func(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(opts, labels)
		reg.MustRegister(c)
		return c
	}

	m := &Metrics{
		CommandsTotal: factory(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: diagramSubsystem,
			Name:      "commands_total",
			Help:      "Total commands dispatched by type and outcome",
		}, []string{"command_type", "outcome"}),

		CommandDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: diagramSubsystem,
			Name:      "command_duration_seconds",
			Help:      "Command dispatch latency through the full middleware pipeline",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
		}, []string{"command_type"}),

		HistoryEntriesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: diagramSubsystem,
			Name:      "history_entries_recorded_total",
			Help:      "Total undo history entries recorded",
		}),

		UndoStackSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: diagramSubsystem,
			Name:      "undo_stack_size",
			Help:      "Current undo stack depth",
		}),

		RedoStackSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: diagramSubsystem,
			Name:      "redo_stack_size",
			Help:      "Current redo stack depth",
		}),

		UndoTotal: factory(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: diagramSubsystem,
			Name:      "undo_total",
			Help:      "Undo and redo attempts by direction and outcome",
		}, []string{"direction", "outcome"}),

		ActiveOperations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: diagramSubsystem,
			Name:      "active_operations",
			Help:      "Gestures currently tracked as active",
		}),

		WebsocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: diagramSubsystem,
			Name:      "websocket_clients",
			Help:      "Connected graph-view websocket clients",
		}),
	}

	reg.MustRegister(
		m.CommandDurationSeconds,
		m.HistoryEntriesRecorded,
		m.UndoStackSize,
		m.RedoStackSize,
		m.ActiveOperations,
		m.WebsocketClients,
	)
	return m
}

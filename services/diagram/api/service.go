// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api exposes the diagram command core over HTTP and websockets.
//
// The Service owns the full object graph: Badger-backed repository, command
// journal, bus with the five-stage middleware pipeline, history service,
// operation tracker, Prometheus metrics, and the collaboration hub. All
// command execution funnels through Dispatch, which serializes commands per
// diagram so the lock-free core only ever sees sequential traffic for a
// given aggregate.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/config"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/handlers"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/history"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/inverse"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/journal"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/middleware"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/observability"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/repository"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/tracker"
)

// Service wires the diagram command core to its transport and persistence.
type Service struct {
	cfg    config.Config
	logger *slog.Logger

	repo     *repository.BadgerRepository
	journal  *journal.CommandJournal
	bus      *bus.CommandBus
	history  *history.Service
	tracker  *tracker.Tracker
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	hub      *Hub

	locks keyedLocks
}

// NewService builds the full service from configuration. Metrics are
// registered with reg; pass prometheus.DefaultRegisterer in production and a
// fresh registry in tests.
func NewService(cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	badgerCfg := repository.BadgerConfig{
		Path:           cfg.Storage.Path,
		InMemory:       cfg.Storage.InMemory,
		SyncWrites:     cfg.Storage.SyncWrites,
		Logger:         logger,
		GCInterval:     cfg.Storage.GCInterval,
		GCDiscardRatio: 0.5,
	}
	repo, err := repository.OpenBadgerRepository(badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("open diagram store: %w", err)
	}

	jnl, err := journal.New(repo.DB(), logger)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("open command journal: %w", err)
	}

	metrics := observability.NewMetrics(reg)

	// /metrics must gather from the same registry the metrics were
	// registered with. prometheus.DefaultRegisterer and fresh registries
	// both implement Gatherer.
	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Service{
		cfg:      cfg,
		logger:   logger,
		repo:     repo,
		journal:  jnl,
		metrics:  metrics,
		gatherer: gatherer,
		tracker: tracker.New(tracker.Config{
			ActiveTimeout:      cfg.Tracker.ActiveTimeout,
			CompletedRetention: cfg.Tracker.CompletedRetention,
			CancelledRetention: cfg.Tracker.CancelledRetention,
			SweepInterval:      cfg.Tracker.SweepInterval,
		}, logger),
	}

	// The history service replays inverses through the service itself so
	// replayed commands take the per-diagram lock and their events reach
	// websocket viewers.
	s.history = history.NewService(history.Config{
		MaxSize:          cfg.History.MaxSize,
		CleanupThreshold: cfg.History.CleanupThreshold,
	}, replayExecutor{s}, logger)
	s.history.SetObserver(func(state history.State) {
		metrics.UndoStackSize.Set(float64(state.UndoCount))
		metrics.RedoStackSize.Set(float64(state.RedoCount))
	})

	s.bus = bus.NewCommandBus(logger)
	registry := handlers.NewRegistry(repo,
		middleware.NewValidationMiddleware(),
		middleware.NewLoggingMiddleware(logger),
		middleware.NewSerializationMiddleware(jnl, logger),
		middleware.NewMetricsMiddleware(metrics),
		middleware.NewHistoryMiddleware(s.history, inverse.NewFactory(), s.tracker, repo, metrics, logger),
	)
	if err := registry.Initialize(s.bus); err != nil {
		jnl.Close()
		repo.Close()
		return nil, fmt.Errorf("initialize command bus: %w", err)
	}

	s.hub = NewHub(s, cfg.Collaboration, logger)
	return s, nil
}

// Dispatch executes one command, serialized per diagram.
func (s *Service) Dispatch(ctx context.Context, cmd domain.Command) (*bus.Result, error) {
	unlock := s.locks.lock(cmd.Meta().DiagramID)
	defer unlock()
	return s.bus.Execute(ctx, cmd)
}

// Undo reverts the most recent undoable command. Returns false when the undo
// stack is empty or the inverse failed to apply.
func (s *Service) Undo(ctx context.Context, diagramID, userID string) bool {
	ok := s.history.Undo(ctx)
	s.observeUndo("undo", ok)
	return ok
}

// Redo re-applies the most recently undone command.
func (s *Service) Redo(ctx context.Context, diagramID, userID string) bool {
	ok := s.history.Redo(ctx)
	s.observeUndo("redo", ok)
	return ok
}

func (s *Service) observeUndo(direction string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "noop"
	}
	s.metrics.UndoTotal.WithLabelValues(direction, outcome).Inc()
}

// History exposes the history service for route handlers.
func (s *Service) History() *history.Service { return s.history }

// Tracker exposes the operation tracker for route handlers.
func (s *Service) Tracker() *tracker.Tracker { return s.tracker }

// Hub exposes the collaboration hub.
func (s *Service) Hub() *Hub { return s.hub }

// Repository exposes the diagram store for route handlers.
func (s *Service) Repository() repository.Repository { return s.repo }

// Run serves HTTP and background loops until the context is cancelled, then
// shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	router := s.Router()
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("diagram service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.tracker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if cerr := s.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Close releases the journal and the diagram store.
func (s *Service) Close() error {
	s.journal.Close()
	return s.repo.Close()
}

// replayExecutor dispatches history replays through the service so they get
// the same locking and broadcasting as fresh commands.
type replayExecutor struct {
	s *Service
}

func (e replayExecutor) Execute(ctx context.Context, cmd domain.Command) (*bus.Result, error) {
	result, err := e.s.Dispatch(ctx, cmd)
	if err != nil {
		return nil, err
	}
	e.s.hub.BroadcastEvents(cmd.Meta().DiagramID, cmd.Meta().UserID, result.Events)
	return result, nil
}

// keyedLocks hands out one mutex per diagram id.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// release drops the mutex for a key. Called when a diagram is deleted so the
// map does not accumulate an entry per diagram that ever existed. A concurrent
// dispatch for the same key at worst recreates the entry; commands against a
// deleted diagram fail on the repository lookup.
func (k *keyedLocks) release(key string) {
	k.mu.Lock()
	delete(k.locks, key)
	k.mu.Unlock()
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"sync"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/bus"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/repository"
)

// Registry collects every handler instance and installs them, plus the
// middleware pipeline, into a bus exactly once.
type Registry struct {
	mu          sync.Mutex
	initialized bool
	repo        repository.Repository
	middleware  []bus.Middleware
	composite   *CompositeHandler
}

// NewRegistry builds a registry for the given repository. Middleware is
// installed in the order given; each middleware carries its own fixed
// priority so the pipeline order is deterministic regardless.
func NewRegistry(repo repository.Repository, middleware ...bus.Middleware) *Registry {
	return &Registry{repo: repo, middleware: middleware}
}

// Initialize registers every handler exactly once and installs the
// middleware. A second call is a guarded no-op returning nil, so wiring
// code can be idempotent.
func (r *Registry) Initialize(b *bus.CommandBus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	r.composite = NewCompositeHandler(b)
	all := []bus.Handler{
		NewCreateDiagramHandler(r.repo),
		NewAddNodeHandler(r.repo),
		NewUpdateNodePositionHandler(r.repo),
		NewUpdateNodeDataHandler(r.repo),
		NewRemoveNodeHandler(r.repo),
		NewAddEdgeHandler(r.repo),
		NewUpdateEdgeVerticesHandler(r.repo),
		NewUpdateEdgeDataHandler(r.repo),
		NewRemoveEdgeHandler(r.repo),
		r.composite,
	}
	for _, h := range all {
		if err := b.RegisterHandler(h); err != nil {
			return fmt.Errorf("register %s handler: %w", h.CommandType(), err)
		}
	}
	for _, mw := range r.middleware {
		b.AddMiddleware(mw)
	}

	r.initialized = true
	return nil
}

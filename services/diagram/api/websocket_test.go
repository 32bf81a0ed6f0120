// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHub_IdleSweepRejectsStaleSessionSends(t *testing.T) {
	ts := newTestServer(t)
	hub := ts.service.Hub()

	s := hub.getOrCreateSession("diagram-1")
	s.mu.Lock()
	s.lastActivity = time.Now().UTC().Add(-2 * sessionIdleTimeout)
	s.mu.Unlock()

	hub.cleanupIdleSessions()
	assert.Equal(t, 0, hub.SessionCount())

	// A broadcaster may have fetched the session before the sweep removed
	// it. Sending through that stale pointer must refuse, not panic.
	assert.False(t, s.trySend([]byte(`{"event":"events_committed"}`)))
}

func TestSession_TrySendQueues(t *testing.T) {
	ts := newTestServer(t)
	hub := ts.service.Hub()

	s := hub.getOrCreateSession("diagram-2")
	assert.True(t, s.trySend([]byte(`{"event":"join"}`)))
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestJournal(t *testing.T, db *badger.DB) *CommandJournal {
	t.Helper()
	j, err := New(db, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return j
}

func addNodeCmd(diagramID, nodeID string) domain.Command {
	return domain.AddNodeCommand{
		CommandMeta: domain.NewMeta(diagramID, "user-1", "op-1"),
		NodeID:      nodeID,
		Position:    domain.Position{X: 10, Y: 20},
		Data:        domain.NodeData{Kind: "process", Label: "Checkout"},
	}
}

func TestNew_NilDB(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestAppendAndReplay(t *testing.T) {
	j := newTestJournal(t, openTestDB(t))
	ctx := context.Background()

	cmd := addNodeCmd("diagram-1", "node-1")
	require.NoError(t, j.Append(ctx, cmd))

	records, err := j.Replay(ctx, "diagram-1")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, uint64(1), rec.Sequence)
	assert.Equal(t, cmd.Meta().CommandID, rec.CommandID)
	assert.Equal(t, domain.CommandAddNode, rec.CommandType)
	assert.Equal(t, "diagram-1", rec.DiagramID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "op-1", rec.OperationID)
	assert.False(t, rec.Timestamp.IsZero())

	var payload domain.AddNodeCommand
	require.NoError(t, json.Unmarshal(rec.Payload, &payload))
	assert.Equal(t, "node-1", payload.NodeID)
	assert.Equal(t, "Checkout", payload.Data.Label)
}

func TestReplay_AppendOrder(t *testing.T) {
	j := newTestJournal(t, openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Append(ctx, addNodeCmd("diagram-1", fmt.Sprintf("node-%d", i))))
	}

	records, err := j.Replay(ctx, "diagram-1")
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i, rec := range records {
		assert.Equal(t, uint64(i+1), rec.Sequence)
	}
}

func TestReplay_FiltersByDiagram(t *testing.T) {
	j := newTestJournal(t, openTestDB(t))
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, addNodeCmd("diagram-1", "node-1")))
	require.NoError(t, j.Append(ctx, addNodeCmd("diagram-2", "node-2")))
	require.NoError(t, j.Append(ctx, addNodeCmd("diagram-1", "node-3")))

	records, err := j.Replay(ctx, "diagram-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(1), records[0].Sequence)
	assert.Equal(t, uint64(3), records[1].Sequence)

	all, err := j.Replay(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSequenceRestoredOnReopen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	j := newTestJournal(t, db)
	require.NoError(t, j.Append(ctx, addNodeCmd("diagram-1", "node-1")))
	require.NoError(t, j.Append(ctx, addNodeCmd("diagram-1", "node-2")))
	j.Close()

	// A journal reopened over the same database continues the sequence.
	reopened := newTestJournal(t, db)
	require.NoError(t, reopened.Append(ctx, addNodeCmd("diagram-1", "node-3")))

	records, err := reopened.Replay(ctx, "diagram-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, uint64(3), records[2].Sequence)
}

func TestClosed(t *testing.T) {
	j := newTestJournal(t, openTestDB(t))
	j.Close()

	err := j.Append(context.Background(), addNodeCmd("diagram-1", "node-1"))
	assert.ErrorIs(t, err, ErrJournalClosed)

	_, err = j.Replay(context.Background(), "diagram-1")
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func TestAppend_CancelledContext(t *testing.T) {
	j := newTestJournal(t, openTestDB(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := j.Append(ctx, addNodeCmd("diagram-1", "node-1"))
	assert.ErrorIs(t, err, context.Canceled)
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/config"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
)

type testServer struct {
	service *Service
	router  *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.InMemory = true

	svc, err := NewService(cfg, slog.New(slog.DiscardHandler), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	return &testServer{service: svc, router: svc.Router()}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createDiagram(t *testing.T, name string) string {
	t.Helper()

	w := ts.do(t, http.MethodPost, "/v1/diagrams", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result struct {
		DiagramID string `json:"diagram_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotEmpty(t, result.DiagramID)
	return result.DiagramID
}

func (ts *testServer) addNode(t *testing.T, diagramID, nodeID string) {
	t.Helper()

	body := fmt.Sprintf(`{"type":"node.add","node_id":%q,"position":{"x":10,"y":20},"data":{"kind":"process","label":"Checkout"}}`, nodeID)
	w := ts.do(t, http.MethodPost, "/v1/diagrams/"+diagramID+"/commands", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (ts *testServer) snapshot(t *testing.T, diagramID string) domain.DiagramSnapshot {
	t.Helper()

	w := ts.do(t, http.MethodGet, "/v1/diagrams/"+diagramID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var snap domain.DiagramSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestAPI_CreateAndGetDiagram(t *testing.T) {
	ts := newTestServer(t)

	id := ts.createDiagram(t, "Payments Flow")
	snap := ts.snapshot(t, id)

	assert.Equal(t, "Payments Flow", snap.Name)
	assert.Empty(t, snap.Nodes)
}

func TestAPI_CreateDiagram_MissingName(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/v1/diagrams", map[string]string{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ExecuteCommand(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")

	ts.addNode(t, id, "node-1")

	snap := ts.snapshot(t, id)
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, "Checkout", snap.Nodes["node-1"].Data.Label)
}

func TestAPI_ExecuteCommand_UnknownDiagram(t *testing.T) {
	ts := newTestServer(t)

	body := `{"type":"node.add","node_id":"node-1","position":{"x":0,"y":0},"data":{"kind":"process"}}`
	w := ts.do(t, http.MethodPost, "/v1/diagrams/no-such-diagram/commands", body)

	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())
}

func TestAPI_ExecuteCommand_UnknownType(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")

	w := ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/commands", `{"type":"node.explode"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_ExecuteCommand_RejectsCreateViaCommands(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")

	w := ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/commands", `{"type":"diagram.create","name":"X"}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_UndoRedoRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")
	ts.addNode(t, id, "node-1")
	require.Len(t, ts.snapshot(t, id).Nodes, 1)

	// Undo removes the node.
	w := ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp undoRedoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Performed)
	assert.Empty(t, ts.snapshot(t, id).Nodes)

	// Redo restores it.
	w = ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Performed)
	assert.Len(t, ts.snapshot(t, id).Nodes, 1)
}

func TestAPI_UndoEmptyStack(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")

	w := ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/undo", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp undoRedoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Performed)
}

func TestAPI_NewCommandClearsRedo(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")
	ts.addNode(t, id, "node-1")

	w := ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A fresh edit invalidates the redo branch.
	ts.addNode(t, id, "node-2")

	w = ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp undoRedoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Performed)
}

func TestAPI_HistoryEndpoint(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")
	ts.addNode(t, id, "node-1")

	w := ts.do(t, http.MethodGet, "/v1/diagrams/"+id+"/history", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		State   struct{ UndoCount int `json:"undo_count"` } `json:"state"`
		Entries []historyEntrySummary                       `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.State.UndoCount)
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "node.add", resp.Entries[0].CommandType)
	assert.Equal(t, "node.remove", resp.Entries[0].InverseType)
	assert.Equal(t, "user-1", resp.Entries[0].Author)
}

func TestAPI_CompositeCommand(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")

	composite := `{"type":"composite","commands":[
		{"type":"node.add","node_id":"node-a","position":{"x":0,"y":0},"data":{"kind":"process"}},
		{"type":"node.add","node_id":"node-b","position":{"x":100,"y":0},"data":{"kind":"store"}},
		{"type":"edge.add","edge_id":"edge-1","source_id":"node-a","target_id":"node-b","data":{"kind":"flow"}}
	]}`
	w := ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/commands", composite)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	snap := ts.snapshot(t, id)
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)

	// One history entry for the whole composite; undo reverts all of it.
	hw := ts.do(t, http.MethodGet, "/v1/diagrams/"+id+"/history", nil)
	var hist struct {
		Entries []historyEntrySummary `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(hw.Body.Bytes(), &hist))
	require.Len(t, hist.Entries, 1)
	assert.Equal(t, "composite", hist.Entries[0].CommandType)

	uw := ts.do(t, http.MethodPost, "/v1/diagrams/"+id+"/undo", nil)
	require.Equal(t, http.StatusOK, uw.Code)
	snap = ts.snapshot(t, id)
	assert.Empty(t, snap.Nodes)
	assert.Empty(t, snap.Edges)
}

func TestAPI_DeleteDiagram(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")

	w := ts.do(t, http.MethodDelete, "/v1/diagrams/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/v1/diagrams/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPI_ListDiagrams(t *testing.T) {
	ts := newTestServer(t)
	ts.createDiagram(t, "One")
	ts.createDiagram(t, "Two")

	w := ts.do(t, http.MethodGet, "/v1/diagrams", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestAPI_Health(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status     string   `json:"status"`
		Middleware []string `json:"middleware"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"validation", "logging", "serialization", "metrics", "history"}, resp.Middleware)
}

func TestAPI_MetricsServeInjectedRegistry(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "kodiakflow_diagram_websocket_clients")
	assert.Contains(t, body, "kodiakflow_diagram_active_operations")
}

func TestAPI_DeleteDiagramReleasesLock(t *testing.T) {
	ts := newTestServer(t)
	id := ts.createDiagram(t, "Flow")
	ts.addNode(t, id, "node-1")

	ts.service.locks.mu.Lock()
	_, held := ts.service.locks.locks[id]
	ts.service.locks.mu.Unlock()
	require.True(t, held)

	w := ts.do(t, http.MethodDelete, "/v1/diagrams/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	ts.service.locks.mu.Lock()
	_, held = ts.service.locks.locks[id]
	ts.service.locks.mu.Unlock()
	assert.False(t, held)
}

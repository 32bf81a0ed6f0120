// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/config"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/tracker"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 50 * time.Second
	wsMaxMessageSize = 64 * 1024

	sessionIdleTimeout = 15 * time.Minute
	sessionSweepPeriod = 5 * time.Minute
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin and localhost clients only; the service does not
		// terminate TLS itself.
		origin := r.Header.Get("Origin")
		return origin == "" ||
			origin == "http://"+r.Host ||
			origin == "https://"+r.Host
	},
}

// wsInbound is a client-to-server message. MessageType selects how the rest
// of the payload is interpreted.
type wsInbound struct {
	// MessageType is one of "command", "operation_start",
	// "operation_update", "operation_complete", "operation_cancel",
	// "undo", "redo".
	MessageType string `json:"message_type"`

	// Command carries the raw command payload for "command" messages.
	Command json.RawMessage `json:"command,omitempty"`

	// Operation lifecycle fields.
	OperationID   string         `json:"operation_id,omitempty"`
	OperationType string         `json:"operation_type,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// wsOutbound is a server-to-client message.
type wsOutbound struct {
	Event     string               `json:"event"`
	UserID    string               `json:"user_id,omitempty"`
	DiagramID string               `json:"diagram_id,omitempty"`
	Events    []domain.DomainEvent `json:"events,omitempty"`
	Message   string               `json:"message,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Hub tracks active collaborative sessions, one per diagram.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*diagramSession

	service *Service
	cfg     config.CollaborationConfig
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(service *Service, cfg config.CollaborationConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]*diagramSession),
		service:  service,
		cfg:      cfg,
		logger:   logger,
	}
}

// diagramSession is one diagram's set of connected clients. All client set
// mutations go through the Run loop channels.
type diagramSession struct {
	id        string
	diagramID string

	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient

	mu           sync.RWMutex
	lastActivity time.Time
	closed       bool
}

// trySend queues a message for the run loop without blocking. It reports
// false when the session has been closed by the idle sweep or when the
// broadcast channel is full. The closed check and the send happen under the
// same read lock, so the sweep cannot close the channel mid-send.
func (s *diagramSession) trySend(data []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.broadcast <- data:
		return true
	default:
		return false
	}
}

type wsClient struct {
	session *diagramSession
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	limiter *rate.Limiter
	hub     *Hub
}

func (h *Hub) getOrCreateSession(diagramID string) *diagramSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[diagramID]; ok {
		return s
	}
	s := &diagramSession{
		id:           uuid.New().String(),
		diagramID:    diagramID,
		clients:      make(map[*wsClient]bool),
		broadcast:    make(chan []byte, 64),
		register:     make(chan *wsClient),
		unregister:   make(chan *wsClient),
		lastActivity: time.Now().UTC(),
	}
	h.sessions[diagramID] = s
	go s.run(h)
	h.logger.Info("collaboration session opened", "diagram_id", diagramID, "session_id", s.id)
	return s
}

// BroadcastEvents pushes committed domain events to every client of the
// diagram's session, if one exists. REST-originated edits reach websocket
// viewers through this path.
func (h *Hub) BroadcastEvents(diagramID, userID string, events []domain.DomainEvent) {
	if len(events) == 0 {
		return
	}
	h.mu.RLock()
	s, ok := h.sessions[diagramID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	msg := wsOutbound{
		Event:     "events_committed",
		UserID:    userID,
		DiagramID: diagramID,
		Events:    events,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("event broadcast marshal failed", "diagram_id", diagramID, "error", err.Error())
		return
	}
	if !s.trySend(data) {
		h.logger.Warn("dropping event batch", "diagram_id", diagramID)
	}
}

// SessionCount returns the number of open sessions. Used by /health.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Run sweeps idle sessions until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.cleanupIdleSessions()
		}
	}
}

func (h *Hub) cleanupIdleSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().UTC().Add(-sessionIdleTimeout)
	for diagramID, s := range h.sessions {
		s.mu.Lock()
		idle := len(s.clients) == 0 && s.lastActivity.Before(cutoff)
		if idle {
			// Mark closed before closing the channel so trySend callers
			// holding a stale session pointer cannot hit a closed channel.
			s.closed = true
		}
		s.mu.Unlock()
		if idle {
			delete(h.sessions, diagramID)
			close(s.broadcast)
			h.logger.Info("idle collaboration session closed", "diagram_id", diagramID)
		}
	}
}

func (s *diagramSession) run(h *Hub) {
	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			s.lastActivity = time.Now().UTC()
			count := len(s.clients)
			s.mu.Unlock()
			h.service.metrics.WebsocketClients.Inc()
			s.notify(h, "join", client.userID)
			h.logger.Info("client joined session",
				"diagram_id", s.diagramID, "user_id", client.userID, "clients", count)

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
				s.lastActivity = time.Now().UTC()
				h.service.metrics.WebsocketClients.Dec()
			}
			s.mu.Unlock()
			s.notify(h, "leave", client.userID)

		case message, ok := <-s.broadcast:
			if !ok {
				// Hub closed the session.
				s.mu.Lock()
				for client := range s.clients {
					close(client.send)
					delete(s.clients, client)
					h.service.metrics.WebsocketClients.Dec()
				}
				s.mu.Unlock()
				return
			}
			s.mu.Lock()
			s.lastActivity = time.Now().UTC()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client too slow, drop it.
					close(client.send)
					delete(s.clients, client)
					h.service.metrics.WebsocketClients.Dec()
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *diagramSession) notify(h *Hub, event, userID string) {
	msg := wsOutbound{
		Event:     event,
		UserID:    userID,
		DiagramID: s.diagramID,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	s.trySend(data)
}

// HandleWS upgrades the connection and joins the client to the diagram's
// session.
func (h *Hub) HandleWS(c *gin.Context) {
	diagramID := c.Param("id")
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = "anonymous"
	}

	if _, err := h.service.repo.FindByID(c.Request.Context(), diagramID); err != nil {
		c.JSON(http.StatusNotFound, errorResponse("not_found", "diagram not found"))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "diagram_id", diagramID, "error", err.Error())
		return
	}

	session := h.getOrCreateSession(diagramID)
	client := &wsClient{
		session: session,
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, h.cfg.SendBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.cfg.RateLimitPerSecond), h.cfg.RateLimitBurst),
		hub:     h,
	}

	session.register <- client
	go client.writePump()
	go client.readPump()
}

func (c *wsClient) readPump() {
	defer func() {
		c.session.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed",
					"diagram_id", c.session.diagramID, "error", err.Error())
			}
			break
		}

		if !c.limiter.Allow() {
			c.sendError("rate limit exceeded, message dropped")
			continue
		}

		var msg wsInbound
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("malformed message")
			continue
		}
		c.handleMessage(msg)
	}
}

// handleMessage routes one inbound message. Operation lifecycle messages hit
// the tracker directly; command messages go through the full dispatch
// pipeline; undo/redo go through the history service.
func (c *wsClient) handleMessage(msg wsInbound) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc := c.hub.service
	switch msg.MessageType {
	case "command":
		cmd, err := DecodeCommand(msg.Command, c.session.diagramID, c.userID)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		cmd = withOperationID(cmd, msg.OperationID)
		result, err := svc.Dispatch(ctx, cmd)
		if err != nil {
			c.sendError(err.Error())
			return
		}
		c.hub.BroadcastEvents(c.session.diagramID, c.userID, result.Events)

	case "operation_start":
		svc.tracker.StartOperation(msg.OperationID, tracker.OperationType(msg.OperationType), msg.Data)
		svc.metrics.ActiveOperations.Set(float64(svc.tracker.ActiveCount()))

	case "operation_update":
		svc.tracker.UpdateOperation(msg.OperationID, msg.Data)

	case "operation_complete":
		svc.tracker.CompleteOperation(msg.OperationID)
		svc.metrics.ActiveOperations.Set(float64(svc.tracker.ActiveCount()))

	case "operation_cancel":
		svc.tracker.CancelOperation(msg.OperationID)
		svc.metrics.ActiveOperations.Set(float64(svc.tracker.ActiveCount()))

	case "undo":
		if svc.Undo(ctx, c.session.diagramID, c.userID) {
			c.sendHistoryState()
		} else {
			c.sendError("nothing to undo")
		}

	case "redo":
		if svc.Redo(ctx, c.session.diagramID, c.userID) {
			c.sendHistoryState()
		} else {
			c.sendError("nothing to redo")
		}

	default:
		c.sendError("unknown message type " + msg.MessageType)
	}
}

// withOperationID tags a decoded command with the gesture it belongs to.
func withOperationID(cmd domain.Command, operationID string) domain.Command {
	if operationID == "" {
		return cmd
	}
	meta := cmd.Meta()
	meta.OperationID = operationID
	return withMeta(cmd, meta)
}

func (c *wsClient) sendError(message string) {
	c.sendOutbound(wsOutbound{
		Event:     "error",
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (c *wsClient) sendHistoryState() {
	state := c.hub.service.history.CurrentState()
	data, err := json.Marshal(map[string]any{
		"event":     "history_state",
		"state":     state,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) sendOutbound(msg wsOutbound) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KodiakLabs/KodiakFlow/services/diagram/domain"
	"github.com/KodiakLabs/KodiakFlow/services/diagram/repository"
)

const maxCommandBodySize = 256 * 1024

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func errorResponse(code, message string) apiError {
	return apiError{Error: code, Message: message}
}

// statusForError maps domain and repository errors to HTTP status codes.
func statusForError(err error) (int, apiError) {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest, errorResponse("validation_failed", err.Error())
	case domain.IsNotFound(err), errors.Is(err, repository.ErrDiagramNotFound):
		return http.StatusNotFound, errorResponse("not_found", err.Error())
	case errors.Is(err, repository.ErrDiagramExists):
		return http.StatusConflict, errorResponse("conflict", err.Error())
	default:
		return http.StatusInternalServerError, errorResponse("internal", err.Error())
	}
}

func userID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}

// =============================================================================
// Diagram CRUD
// =============================================================================

type createDiagramRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

func (s *Service) handleCreateDiagram(c *gin.Context) {
	var req createDiagramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_failed", "name is required (max 255 chars)"))
		return
	}

	diagramID := uuid.New().String()
	cmd := domain.CreateDiagramCommand{
		CommandMeta: domain.NewMeta(diagramID, userID(c), ""),
		Name:        req.Name,
	}

	result, err := s.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Service) handleGetDiagram(c *gin.Context) {
	agg, err := s.repo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, agg.Snapshot())
}

func (s *Service) handleListDiagrams(c *gin.Context) {
	snaps, err := s.repo.List(c.Request.Context())
	if err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"diagrams": snaps, "count": len(snaps)})
}

func (s *Service) handleDeleteDiagram(c *gin.Context) {
	id := c.Param("id")
	if err := s.repo.Delete(c.Request.Context(), id); err != nil {
		status, body := statusForError(err)
		c.JSON(status, body)
		return
	}
	s.locks.release(id)
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Command execution
// =============================================================================

func (s *Service) handleExecuteCommand(c *gin.Context) {
	diagramID := c.Param("id")

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCommandBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("bad_request", "unreadable request body"))
		return
	}

	cmd, err := DecodeCommand(body, diagramID, userID(c))
	if err != nil {
		status, resp := statusForError(err)
		c.JSON(status, resp)
		return
	}
	if cmd.Type() == domain.CommandCreateDiagram {
		c.JSON(http.StatusBadRequest, errorResponse("validation_failed",
			"diagram creation goes through POST /v1/diagrams"))
		return
	}

	result, err := s.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		status, resp := statusForError(err)
		c.JSON(status, resp)
		return
	}

	s.hub.BroadcastEvents(diagramID, cmd.Meta().UserID, result.Events)
	c.JSON(http.StatusOK, result)
}

// =============================================================================
// Undo / redo / history
// =============================================================================

type undoRedoResponse struct {
	Performed bool   `json:"performed"`
	State     any    `json:"state"`
	Timestamp string `json:"timestamp"`
}

func (s *Service) handleUndo(c *gin.Context) {
	performed := s.Undo(c.Request.Context(), c.Param("id"), userID(c))
	c.JSON(http.StatusOK, undoRedoResponse{
		Performed: performed,
		State:     s.history.CurrentState(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) handleRedo(c *gin.Context) {
	performed := s.Redo(c.Request.Context(), c.Param("id"), userID(c))
	c.JSON(http.StatusOK, undoRedoResponse{
		Performed: performed,
		State:     s.history.CurrentState(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type historyEntrySummary struct {
	ID          string    `json:"id"`
	CommandType string    `json:"command_type"`
	InverseType string    `json:"inverse_type"`
	OperationID string    `json:"operation_id,omitempty"`
	Author      string    `json:"author"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Service) handleHistoryState(c *gin.Context) {
	entries := s.history.Entries()
	summaries := make([]historyEntrySummary, len(entries))
	for i, e := range entries {
		summaries[i] = historyEntrySummary{
			ID:          e.ID,
			CommandType: string(e.Command.Type()),
			InverseType: string(e.Inverse.Type()),
			OperationID: e.OperationID,
			Author:      e.Author,
			Timestamp:   e.Timestamp,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"state":   s.history.CurrentState(),
		"entries": summaries,
	})
}

// =============================================================================
// Health
// =============================================================================

func (s *Service) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"middleware":        s.bus.MiddlewareNames(),
		"sessions":          s.hub.SessionCount(),
		"active_operations": s.tracker.ActiveCount(),
	})
}

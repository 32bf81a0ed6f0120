// Copyright (C) 2026 Kodiak Labs (oss@kodiaklabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router builds the gin engine with all routes installed.
func (s *Service) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		s.gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		diagrams := v1.Group("/diagrams")
		{
			diagrams.POST("", s.handleCreateDiagram)
			diagrams.GET("", s.handleListDiagrams)
			diagrams.GET("/:id", s.handleGetDiagram)
			diagrams.DELETE("/:id", s.handleDeleteDiagram)
			diagrams.POST("/:id/commands", s.handleExecuteCommand)
			diagrams.POST("/:id/undo", s.handleUndo)
			diagrams.POST("/:id/redo", s.handleRedo)
			diagrams.GET("/:id/history", s.handleHistoryState)
			if s.cfg.Collaboration.Enabled {
				diagrams.GET("/:id/ws", s.hub.HandleWS)
			}
		}
	}
	return router
}

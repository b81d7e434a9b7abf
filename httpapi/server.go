// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package httpapi exposes the HTTP surface of the cognitive core over gin:
// SSE-streamed chat (text and image entry), the HITL respond/continue pair,
// and the read-only execution observer endpoints.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/aleutian-ai/coggraph/graph"
)

// Server binds the graph runner to the HTTP surface.
type Server struct {
	runner   *graph.Runner
	logger   *slog.Logger
	validate *validator.Validate
	metrics  http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetricsHandler mounts a Prometheus scrape handler at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// NewServer constructs a Server over runner.
func NewServer(runner *graph.Runner, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		runner:   runner,
		logger:   logger,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route mounted and tracing
// middleware applied.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("coggraph"))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/chat", s.handleChat)
	r.POST("/chat/image", s.handleChatImage)
	r.POST("/hitl/respond", s.handleHITLRespond)
	r.POST("/hitl/continue", s.handleHITLContinue)

	api := r.Group("/api")
	api.GET("/execution/topology", s.handleTopology)
	api.GET("/execution/:id/timeline", s.handleTimeline)
	api.GET("/execution/:id/snapshot", s.handleSnapshot)
	api.GET("/hitl/:session_id/replay/:title", s.handleReplay)

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}
	return r
}

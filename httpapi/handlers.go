// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aleutian-ai/coggraph/checkpoint"
	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/graph"
	"github.com/aleutian-ai/coggraph/state"
)

// bind decodes and validates a JSON request body, replying 400 on failure.
func bind[T any](s *Server, c *gin.Context, out *T) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// stream runs fn against an SSE emitter over the response writer. Errors
// that occur before any event was written get a JSON status reply; errors
// after that were already surfaced on the stream and are only logged.
func (s *Server) stream(c *gin.Context, sessionID string, fn func(emit events.Emitter) error) {
	events.SetSSEHeaders(c.Writer)
	emit, err := events.NewSSEEmitter(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer emit.Close()

	if err := fn(emit); err != nil {
		switch {
		case errors.Is(err, graph.ErrSessionInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, graph.ErrTooManySessions):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case errors.Is(err, checkpoint.ErrCheckpointNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "no suspended run for session"})
		case errors.Is(err, graph.ErrAlignmentFailure):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			// The stream already carries the error event.
			s.logger.Error("run ended with error",
				slog.String("session_id", sessionID), slog.Any("error", err))
		}
	}
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if !bind(s, c, &req) {
		return
	}
	s.stream(c, req.SessionID, func(emit events.Emitter) error {
		return s.runner.Run(c.Request.Context(), graph.RunRequest{
			SessionID: req.SessionID,
			Message:   req.Message,
			History:   req.history(),
		}, emit)
	})
}

func (s *Server) handleChatImage(c *gin.Context) {
	var req ImageChatRequest
	if !bind(s, c, &req) {
		return
	}
	img, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is not valid base64"})
		return
	}
	s.stream(c, req.SessionID, func(emit events.Emitter) error {
		return s.runner.Run(c.Request.Context(), graph.RunRequest{
			SessionID:   req.SessionID,
			Images:      [][]byte{img},
			ImageAction: state.ImageAction(req.Action),
		}, emit)
	})
}

func (s *Server) handleHITLRespond(c *gin.Context) {
	var req HITLRespondRequest
	if !bind(s, c, &req) {
		return
	}
	err := s.runner.StoreHITLResponse(req.SessionID, graph.HITLResponse{
		RequestID: req.RequestID,
		Action:    graph.HITLResponseAction(req.Action),
		Data:      req.Data,
	})
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": true, "session_id": req.SessionID})
}

func (s *Server) handleHITLContinue(c *gin.Context) {
	var req HITLContinueRequest
	if !bind(s, c, &req) {
		return
	}

	resp, ok := s.runner.TakeHITLResponse(req.SessionID)
	if !ok {
		// No staged /hitl/respond; the continuation data itself may carry
		// the decision.
		resp = graph.HITLResponse{Action: graph.ActionApprove}
		if a, found := req.ContinuationData["action"].(string); found {
			resp.Action = graph.HITLResponseAction(a)
		}
		if d, found := req.ContinuationData["data"].(map[string]any); found {
			resp.Data = d
		}
	}

	s.stream(c, req.SessionID, func(emit events.Emitter) error {
		return s.runner.Resume(c.Request.Context(), req.SessionID, resp, emit)
	})
}

// topologyResponse is the wire form of GET /api/execution/topology.
type topologyResponse struct {
	Statuses          []contract.Status        `json:"statuses"`
	Edges             []contract.TopologyEdge  `json:"edges"`
	Forbidden         []contract.ForbiddenEdge `json:"forbidden"`
	TerminalStatuses  []contract.Status        `json:"terminal_statuses"`
	ResumableStatuses []contract.Status        `json:"resumable_statuses"`
	InitialStatus     contract.Status          `json:"initial_status"`
}

func (s *Server) handleTopology(c *gin.Context) {
	topo := contract.Topology()
	c.Header("Cache-Control", "public, max-age=3600")
	c.JSON(http.StatusOK, topologyResponse{
		Statuses:          contract.AllStatuses(),
		Edges:             topo.Edges(),
		Forbidden:         topo.ForbiddenEdges(),
		TerminalStatuses:  topo.TerminalStatuses(),
		ResumableStatuses: topo.ResumableStatuses(),
		InitialStatus:     topo.InitialStatus(),
	})
}

func (s *Server) handleTimeline(c *gin.Context) {
	tl, err := s.runner.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no timeline for session"})
		return
	}
	c.JSON(http.StatusOK, tl)
}

func (s *Server) handleSnapshot(c *gin.Context) {
	snap, err := s.runner.Snapshot(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown execution"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleReplay(c *gin.Context) {
	req, err := s.runner.ReplayDisplay(c.Param("session_id"), c.Param("title"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

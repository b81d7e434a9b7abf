// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package httpapi

import (
	"time"

	"github.com/aleutian-ai/coggraph/state"
)

// HistoryMessage is one prior turn supplied by the shell with a /chat call.
type HistoryMessage struct {
	Role      string    `json:"role" validate:"required,oneof=user assistant system"`
	Content   string    `json:"content" validate:"required"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID string           `json:"session_id" validate:"required"`
	Message   string           `json:"message" validate:"required"`
	History   []HistoryMessage `json:"history" validate:"dive"`
}

func (r ChatRequest) history() []state.DialogueMessage {
	out := make([]state.DialogueMessage, len(r.History))
	for i, m := range r.History {
		out[i] = state.DialogueMessage{
			Role:      state.Role(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
	}
	return out
}

// ImageChatRequest is the body of POST /chat/image. Image is base64.
type ImageChatRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Image     string `json:"image" validate:"required,base64"`
	Action    string `json:"action" validate:"required,oneof=analyze_only analyze_for_memory"`
}

// HITLRespondRequest is the body of POST /hitl/respond.
type HITLRespondRequest struct {
	RequestID string         `json:"request_id" validate:"required"`
	SessionID string         `json:"session_id" validate:"required"`
	Action    string         `json:"action" validate:"required,oneof=approve edit reject dismiss"`
	Data      map[string]any `json:"data"`
}

// HITLContinueRequest is the body of POST /hitl/continue.
type HITLContinueRequest struct {
	SessionID        string         `json:"session_id" validate:"required"`
	ContinuationData map[string]any `json:"continuation_data"`
}

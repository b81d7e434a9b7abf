// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events defines the server-sent-event wire protocol and an
// Emitter that writes it over an http.ResponseWriter.
package events

import (
	"time"

	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/state"
)

// Type is the `type` field of every wire event.
type Type string

const (
	TypeText           Type = "text"
	TypeEmotion        Type = "emotion"
	TypeHITL           Type = "hitl"
	TypeToolResult     Type = "tool_result"
	TypeExecutionState Type = "execution_state"
	TypeDone           Type = "done"
	TypeError          Type = "error"
)

// TextPayload backs the `text` event: one LLM token, or a synthesized
// warning (e.g. on HITL chain overflow).
type TextPayload struct {
	Content string `json:"content"`
}

// EmotionPayload backs the `emotion` event, emitted after the Emotion node.
type EmotionPayload struct {
	Primary    string  `json:"primary"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// ToolResultPayload backs the `tool_result` event. Exactly one of Result or
// Error is populated.
type ToolResultPayload struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ExecutionStatePayload backs the `execution_state` event, emitted on every
// contract transition.
type ExecutionStatePayload struct {
	ExecutionID    string           `json:"execution_id"`
	ActionSummary  string           `json:"action_summary"`
	FromStatus     contract.Status  `json:"from_status"`
	ToStatus       contract.Status  `json:"to_status"`
	Trigger        contract.Trigger `json:"trigger"`
	ActorCategory  contract.ActorCategory `json:"actor_category"`
	IsTerminal     bool             `json:"is_terminal"`
	IsResumable    bool             `json:"is_resumable"`
	HasSideEffects bool             `json:"has_side_effects"`
	Timestamp      time.Time        `json:"timestamp"`
}

// DonePayload backs the `done` event; it carries no fields.
type DonePayload struct{}

// ErrorPayload backs the `error` event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Event is the generic envelope: `{"type": ..., "payload": ...}`.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload"`
}

// NewTextEvent builds a text event from a single token or snippet.
func NewTextEvent(content string) Event {
	return Event{Type: TypeText, Payload: TextPayload{Content: content}}
}

// NewEmotionEvent builds an emotion event from EmotionalContext.
func NewEmotionEvent(ec state.EmotionalContext) Event {
	return Event{Type: TypeEmotion, Payload: EmotionPayload{
		Primary:    ec.CurrentEmotion,
		Category:   ec.CurrentEmotion,
		Confidence: ec.Confidence,
	}}
}

// NewHITLEvent builds an hitl event carrying the full request schema.
func NewHITLEvent(req state.HITLRequest) Event {
	return Event{Type: TypeHITL, Payload: req}
}

// NewToolResultEvent builds a tool_result event.
func NewToolResultEvent(tool string, result any, errMsg string) Event {
	return Event{Type: TypeToolResult, Payload: ToolResultPayload{Tool: tool, Result: result, Error: errMsg}}
}

// NewExecutionStateEvent builds an execution_state event from one
// TransitionRecord applied to a contract.
func NewExecutionStateEvent(c *contract.ExecutionContract, rec contract.TransitionRecord, fromStatus contract.Status) Event {
	return Event{Type: TypeExecutionState, Payload: ExecutionStatePayload{
		ExecutionID:    c.ExecutionID,
		ActionSummary:  c.ActionSummary(),
		FromStatus:     fromStatus,
		ToStatus:       rec.ToStatus,
		Trigger:        rec.Trigger,
		ActorCategory:  rec.ActorCategory,
		IsTerminal:     rec.ToStatus.IsTerminal(),
		IsResumable:    rec.ToStatus.IsResumable(),
		HasSideEffects: c.HasSideEffects(),
		Timestamp:      rec.Timestamp,
	}}
}

// NewDoneEvent builds the terminal done event.
func NewDoneEvent() Event {
	return Event{Type: TypeDone, Payload: DonePayload{}}
}

// NewErrorEvent builds the terminal error event.
func NewErrorEvent(message string) Event {
	return Event{Type: TypeError, Payload: ErrorPayload{Message: message}}
}

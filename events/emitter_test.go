// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/state"
)

func TestSSEEmitter_WritesEventTypeAndData(t *testing.T) {
	rec := httptest.NewRecorder()
	SetSSEHeaders(rec)
	emitter, err := NewSSEEmitter(rec)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}

	if err := emitter.Emit(NewTextEvent("hi")); err != nil {
		t.Fatalf("emit: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: text\n") {
		t.Fatalf("expected event: text line, got %q", body)
	}
	if !strings.Contains(body, `"content":"hi"`) {
		t.Fatalf("expected content field in data, got %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("expected SSE frame to end with blank line, got %q", body)
	}
}

func TestSSEEmitter_EmitAfterCloseFails(t *testing.T) {
	rec := httptest.NewRecorder()
	emitter, err := NewSSEEmitter(rec)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	emitter.Close()
	if err := emitter.Emit(NewDoneEvent()); err == nil {
		t.Fatal("expected error emitting after close")
	}
}

func TestRecordingEmitter_CapturesEventsInOrder(t *testing.T) {
	rec := NewRecordingEmitter()
	rec.Emit(NewTextEvent("a"))
	rec.Emit(NewTextEvent("b"))
	rec.Emit(NewDoneEvent())

	if len(rec.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(rec.Events))
	}
	if rec.Events[2].Type != TypeDone {
		t.Fatalf("expected last event to be done, got %s", rec.Events[2].Type)
	}
}

func TestNewExecutionStateEvent(t *testing.T) {
	c := contract.NewContract("exec-1", contract.ContractToolCall, contract.ActionDetail{Service: "math", Method: "add"}, false, "", time.Unix(0, 0))
	_ = contract.Transition(c, contract.TriggerStart, "tool_node", contract.ActorSystem, nil, nil, "", time.Unix(1, 0))
	rec := c.LastTransition()

	e := NewExecutionStateEvent(c, *rec, contract.StatusPending)
	payload, ok := e.Payload.(ExecutionStatePayload)
	if !ok {
		t.Fatalf("expected ExecutionStatePayload, got %T", e.Payload)
	}
	if payload.FromStatus != contract.StatusPending || payload.ToStatus != contract.StatusRunning {
		t.Fatalf("unexpected status transition in payload: %+v", payload)
	}
	if payload.ActionSummary != "math.add" {
		t.Fatalf("unexpected action summary: %s", payload.ActionSummary)
	}
}

func TestNewEmotionEvent(t *testing.T) {
	e := NewEmotionEvent(state.EmotionalContext{CurrentEmotion: "joy", Confidence: 0.75})
	payload, ok := e.Payload.(EmotionPayload)
	if !ok {
		t.Fatalf("expected EmotionPayload, got %T", e.Payload)
	}
	if payload.Primary != "joy" || payload.Confidence != 0.75 {
		t.Fatalf("unexpected emotion payload: %+v", payload)
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checkpoint

import (
	"testing"
	"time"

	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/state"
)

func buildTestState() state.GraphState {
	s := state.NewGraphState("sess-1", []state.DialogueMessage{
		{Role: state.RoleUser, Content: "hi", Timestamp: time.Unix(0, 0)},
	}, 0)
	s.ContextVariables.Set("name", "Alex")
	s = s.Merge(state.StateUpdate{
		AppendDialogue: []state.DialogueMessage{{Role: state.RoleAssistant, Content: "hello", Timestamp: time.Unix(1, 0)}},
		EmotionalContext: &state.EmotionalContext{CurrentEmotion: "neutral", Confidence: 0.8},
	})
	c := contract.NewContract("exec-1", contract.ContractToolCall, contract.ActionDetail{Service: "math", Method: "add"}, false, "", time.Unix(0, 0))
	s = s.Merge(state.StateUpdate{NewActiveExecution: c})
	return s
}

// TestRoundTrip verifies deserialize(serialize(state)) == state modulo
// response_stream, which Marshal drops by design.
func TestRoundTrip(t *testing.T) {
	original := buildTestState()

	data, err := Marshal(original, 0)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	restored, err := Unmarshal(data, 0)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if restored.SessionID != original.SessionID {
		t.Fatalf("session id mismatch: %s vs %s", restored.SessionID, original.SessionID)
	}
	if len(restored.DialogueHistory) != len(original.DialogueHistory) {
		t.Fatalf("dialogue history length mismatch: %d vs %d", len(restored.DialogueHistory), len(original.DialogueHistory))
	}
	if restored.EmotionalContext.CurrentEmotion != "neutral" {
		t.Fatalf("emotional context not preserved: %+v", restored.EmotionalContext)
	}
	if v, ok := restored.ContextVariables.Get("name"); !ok || v != "Alex" {
		t.Fatalf("context variable not preserved: %q ok=%v", v, ok)
	}
	if len(restored.ActiveExecutions) != 1 || restored.ActiveExecutions[0].ExecutionID != "exec-1" {
		t.Fatalf("active executions not preserved: %+v", restored.ActiveExecutions)
	}
	if restored.ResponseStream != nil {
		t.Fatal("expected response_stream to be nil after round trip")
	}
}

func TestMarshal_TruncatesDialogueHistory(t *testing.T) {
	history := make([]state.DialogueMessage, 0, 10)
	for i := 0; i < 10; i++ {
		history = append(history, state.DialogueMessage{Role: state.RoleUser, Content: "msg"})
	}
	s := state.NewGraphState("sess-1", history, 0)

	data, err := Marshal(s, 3)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := Unmarshal(data, 0)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(restored.DialogueHistory) != 3 {
		t.Fatalf("expected truncated history of 3, got %d", len(restored.DialogueHistory))
	}
}

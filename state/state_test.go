// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"testing"
	"time"

	"github.com/aleutian-ai/coggraph/contract"
)

func TestMerge_AppendDialogueIsCopyOnWrite(t *testing.T) {
	s := NewGraphState("sess-1", nil, 0)
	s1 := s.Merge(StateUpdate{AppendDialogue: []DialogueMessage{{Role: RoleUser, Content: "hi"}}})

	if len(s.DialogueHistory) != 0 {
		t.Fatalf("original state mutated: %+v", s.DialogueHistory)
	}
	if len(s1.DialogueHistory) != 1 || s1.DialogueHistory[0].Content != "hi" {
		t.Fatalf("unexpected dialogue history: %+v", s1.DialogueHistory)
	}

	s2 := s1.Merge(StateUpdate{AppendDialogue: []DialogueMessage{{Role: RoleAssistant, Content: "hello"}}})
	if len(s1.DialogueHistory) != 1 {
		t.Fatalf("s1 mutated by s2's merge: %+v", s1.DialogueHistory)
	}
	if len(s2.DialogueHistory) != 2 {
		t.Fatalf("expected 2 messages in s2, got %d", len(s2.DialogueHistory))
	}
}

func TestMerge_IntentResultSyncsSemanticInput(t *testing.T) {
	s := NewGraphState("sess-1", nil, 0)
	intent := &IntentResult{Category: "task", IntentType: "schedule_meeting", Confidence: 0.9, Source: IntentSourceLayer1}
	s1 := s.Merge(StateUpdate{IntentResult: intent})

	if s1.IntentResult != intent {
		t.Fatal("expected IntentResult set")
	}
	if s1.SemanticInput.Intent != intent {
		t.Fatal("expected SemanticInput.Intent synced from IntentResult")
	}
}

func TestMerge_ToolCallConsumption(t *testing.T) {
	s := NewGraphState("sess-1", nil, 0)
	s1 := s.Merge(StateUpdate{SetPendingToolCalls: []ToolCallRequest{
		{Tool: "calendar.create"},
		{Tool: "email.send"},
	}})
	if len(s1.PendingToolCalls) != 2 {
		t.Fatalf("expected 2 pending tool calls, got %d", len(s1.PendingToolCalls))
	}

	s2 := s1.Merge(StateUpdate{ConsumeFirstToolCall: true})
	if len(s2.PendingToolCalls) != 1 || s2.PendingToolCalls[0].Tool != "email.send" {
		t.Fatalf("expected only email.send remaining, got %+v", s2.PendingToolCalls)
	}
	if len(s1.PendingToolCalls) != 2 {
		t.Fatal("consuming from s2 mutated s1")
	}
}

func TestMerge_HITLRequestIncrementsChainDepth(t *testing.T) {
	s := NewGraphState("sess-1", nil, 0)
	req := &HITLRequest{ID: "req-1", Type: HITLForm, Title: "Confirm"}
	s1 := s.Merge(StateUpdate{HITLRequest: req})
	if s1.HITLChainDepth != 1 {
		t.Fatalf("expected chain depth 1, got %d", s1.HITLChainDepth)
	}
	s2 := s1.Merge(StateUpdate{ClearHITLRequest: true})
	if s2.HITLRequest != nil {
		t.Fatal("expected HITLRequest cleared")
	}
	if s2.HITLChainDepth != 1 {
		t.Fatalf("clearing should not change chain depth, got %d", s2.HITLChainDepth)
	}
}

func TestMerge_ExecutionLifecycle(t *testing.T) {
	s := NewGraphState("sess-1", nil, 0)
	c := contract.NewContract("exec-1", contract.ContractToolCall, contract.ActionDetail{Service: "math", Method: "add"}, false, "", time.Unix(0, 0))

	s1 := s.Merge(StateUpdate{NewActiveExecution: c})
	if len(s1.ActiveExecutions) != 1 {
		t.Fatalf("expected 1 active execution, got %d", len(s1.ActiveExecutions))
	}

	s2 := s1.Merge(StateUpdate{CompleteExecutionID: "exec-1"})
	if len(s2.ActiveExecutions) != 0 {
		t.Fatalf("expected 0 active executions after completion, got %d", len(s2.ActiveExecutions))
	}
	if len(s2.CompletedExecutions) != 1 || s2.CompletedExecutions[0].ExecutionID != "exec-1" {
		t.Fatalf("expected exec-1 in completed executions, got %+v", s2.CompletedExecutions)
	}
	if len(s1.ActiveExecutions) != 1 {
		t.Fatal("completion mutated s1")
	}
}

func TestMerge_MarkSurfacedIsAdditive(t *testing.T) {
	s := NewGraphState("sess-1", nil, 0)
	s1 := s.Merge(StateUpdate{MarkSurfaced: []string{"exec-1"}})
	s2 := s1.Merge(StateUpdate{MarkSurfaced: []string{"exec-2"}})

	if !s2.SurfacedConsequences["exec-1"] || !s2.SurfacedConsequences["exec-2"] {
		t.Fatalf("expected both exec-1 and exec-2 surfaced: %+v", s2.SurfacedConsequences)
	}
	if len(s1.SurfacedConsequences) != 1 {
		t.Fatal("s2's merge mutated s1's surfaced map")
	}
}

func TestIntentResult_IsNormal(t *testing.T) {
	var nilResult *IntentResult
	if !nilResult.IsNormal() {
		t.Fatal("nil IntentResult should be normal")
	}
	normal := &IntentResult{Category: "normal"}
	if !normal.IsNormal() {
		t.Fatal("category=normal should be normal")
	}
	task := &IntentResult{Category: "task"}
	if task.IsNormal() {
		t.Fatal("category=task should not be normal")
	}
}

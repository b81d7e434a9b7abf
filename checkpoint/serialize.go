// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/state"
)

// wireState is the JSON-facing mirror of state.GraphState. response_stream
// has no wire representation; dialogue
// history is truncated to maxHistory entries (sliding window) when that
// limit is positive.
type wireState struct {
	SessionID            string                              `json:"session_id"`
	SemanticInput        state.SemanticInput                 `json:"semantic_input"`
	DialogueHistory      []state.DialogueMessage              `json:"dialogue_history"`
	WorkingMemory        state.WorkingMemory                  `json:"working_memory"`
	EmotionalContext     state.EmotionalContext                `json:"emotional_context"`
	IntentResult         *state.IntentResult                   `json:"intent_result,omitempty"`
	PendingToolCalls     []state.ToolCallRequest               `json:"pending_tool_calls"`
	Observation          string                                `json:"observation,omitempty"`
	HITLRequest          *state.HITLRequest                    `json:"hitl_request,omitempty"`
	Status               state.RunStatus                       `json:"status"`
	ActiveExecutions     []*contract.ExecutionContract          `json:"active_executions"`
	CompletedExecutions  []*contract.ExecutionContract          `json:"completed_executions"`
	ContextVariables     map[string]string                     `json:"context_variables"`
	SurfacedConsequences map[string]bool                       `json:"surfaced_consequences"`
	HITLChainDepth       int                                   `json:"hitl_chain_depth"`
}

// Marshal serializes state into the checkpoint wire format. maxHistory, if
// positive, truncates dialogue_history to its most recent entries.
func Marshal(s state.GraphState, maxHistory int) ([]byte, error) {
	history := s.DialogueHistory
	if maxHistory > 0 && len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	var vars map[string]string
	if s.ContextVariables != nil {
		vars = s.ContextVariables.Snapshot()
	}

	w := wireState{
		SessionID:            s.SessionID,
		SemanticInput:        s.SemanticInput,
		DialogueHistory:      history,
		WorkingMemory:        s.WorkingMemory,
		EmotionalContext:     s.EmotionalContext,
		IntentResult:         s.IntentResult,
		PendingToolCalls:     s.PendingToolCalls,
		Observation:          s.Observation,
		HITLRequest:          s.HITLRequest,
		Status:               s.Status,
		ActiveExecutions:     s.ActiveExecutions,
		CompletedExecutions:  s.CompletedExecutions,
		ContextVariables:     vars,
		SurfacedConsequences: s.SurfacedConsequences,
		HITLChainDepth:       s.HITLChainDepth,
	}

	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: marshal state: %w", err)
	}
	return b, nil
}

// Unmarshal reconstructs a GraphState from checkpoint bytes produced by
// Marshal. ResponseStream is always nil on the result: a resumed run has
// no stream to continue, it re-enters Reasoning instead.
func Unmarshal(data []byte, contextBudgetBytes int) (state.GraphState, error) {
	var w wireState
	if err := json.Unmarshal(data, &w); err != nil {
		return state.GraphState{}, fmt.Errorf("checkpoint: unmarshal state: %w", err)
	}

	cv := state.NewContextVariables(contextBudgetBytes)
	for k, v := range w.ContextVariables {
		cv.Set(k, v)
	}

	surfaced := w.SurfacedConsequences
	if surfaced == nil {
		surfaced = make(map[string]bool)
	}

	return state.GraphState{
		SessionID:            w.SessionID,
		SemanticInput:        w.SemanticInput,
		DialogueHistory:      w.DialogueHistory,
		WorkingMemory:        w.WorkingMemory,
		EmotionalContext:     w.EmotionalContext,
		IntentResult:         w.IntentResult,
		PendingToolCalls:     w.PendingToolCalls,
		Observation:          w.Observation,
		HITLRequest:          w.HITLRequest,
		Status:               w.Status,
		ActiveExecutions:     w.ActiveExecutions,
		CompletedExecutions:  w.CompletedExecutions,
		ContextVariables:     cv,
		SurfacedConsequences: surfaced,
		HITLChainDepth:       w.HITLChainDepth,
	}, nil
}

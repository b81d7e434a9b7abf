// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state defines GraphState, the single shared value that flows
// through the cognitive graph, and the partial-update merge discipline
// nodes use to mutate it.
package state

import (
	"time"

	"github.com/aleutian-ai/coggraph/contract"
)

// Role identifies the speaker of a dialogue message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// DialogueMessage is one entry in the append-only dialogue history.
type DialogueMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ImageAction tags how an attached image should be handled.
type ImageAction string

const (
	ImageActionAnalyzeOnly     ImageAction = "analyze_only"
	ImageActionAnalyzeForMemory ImageAction = "analyze_for_memory"
)

// IntentSource records which layer of the Intent node produced a
// classification.
type IntentSource string

const (
	IntentSourceLayer1   IntentSource = "layer1"
	IntentSourceLayer2   IntentSource = "layer2"
	IntentSourceFallback IntentSource = "fallback"
)

// IntentResult is the output of the Intent node.
type IntentResult struct {
	Category    string       `json:"category"`
	IntentType  string       `json:"intent_type"`
	Confidence  float64      `json:"confidence"`
	Source      IntentSource `json:"source"`
	MatchedRule string       `json:"matched_rule,omitempty"`
	MCPService  string       `json:"mcp_service,omitempty"`
}

// IsNormal reports whether this result is the "no particular intent"
// classification, which does not get its own prompt snippet.
func (r *IntentResult) IsNormal() bool {
	return r == nil || r.Category == "normal"
}

// SemanticInput holds the user's turn input plus any classification
// performed on it.
type SemanticInput struct {
	Text        string      `json:"text"`
	Images      [][]byte    `json:"-"`
	ImageAction ImageAction `json:"image_action,omitempty"`
	Intent      *IntentResult `json:"intent,omitempty"`
}

// MemoryReference is one retrieved long-term memory, scored by relevance.
type MemoryReference struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Summary  string  `json:"summary"`
	Score    float64 `json:"score"`
}

// WorkingMemory is short-lived, per-session scratch data.
type WorkingMemory struct {
	RetrievedMemories []MemoryReference `json:"retrieved_memories"`
	Summary           string            `json:"summary"`
}

// EmotionalContext is the output of the Emotion node.
type EmotionalContext struct {
	CurrentEmotion       string  `json:"current_emotion"`
	Confidence           float64 `json:"confidence"`
	ModulationInstruction string `json:"modulation_instruction"`
}

// ToolCallRequest is one pending tool invocation produced by Reasoning.
type ToolCallRequest struct {
	Tool         string         `json:"tool"`
	Arguments    map[string]any `json:"arguments"`
	Irreversible bool           `json:"irreversible"`
	Idempotent   bool           `json:"idempotent"`
}

// HITLFieldType enumerates the field kinds of a form request.
type HITLFieldType string

const (
	FieldText     HITLFieldType = "text"
	FieldTextarea HITLFieldType = "textarea"
	FieldNumber   HITLFieldType = "number"
	FieldSelect   HITLFieldType = "select"
	FieldRadio    HITLFieldType = "radio"
	FieldCheckbox HITLFieldType = "checkbox"
)

// HITLField is one field of a form request.
type HITLField struct {
	Name        string        `json:"name"`
	Type        HITLFieldType `json:"type"`
	Label       string        `json:"label"`
	Required    bool          `json:"required,omitempty"`
	Options     []string      `json:"options,omitempty"`
	Default     any           `json:"default,omitempty"`
	Min         *float64      `json:"min,omitempty"`
	Max         *float64      `json:"max,omitempty"`
	Step        *float64      `json:"step,omitempty"`
	Placeholder string        `json:"placeholder,omitempty"`
}

// HITLActions names the labels for a form's approve/edit/reject buttons.
type HITLActions struct {
	Approve string `json:"approve,omitempty"`
	Edit    string `json:"edit,omitempty"`
	Reject  string `json:"reject,omitempty"`
}

// DisplayType enumerates the kinds of read-only visual_display content.
type DisplayType string

const (
	DisplayTable DisplayType = "table"
	DisplayASCII DisplayType = "ascii"
)

// TableData is the payload of a table display.
type TableData struct {
	Headers   []string   `json:"headers"`
	Rows      [][]string `json:"rows"`
	Alignment []string   `json:"alignment,omitempty"`
	Caption   string     `json:"caption,omitempty"`
}

// ASCIIData is the payload of an ascii display.
type ASCIIData struct {
	Content string `json:"content"`
	Title   string `json:"title,omitempty"`
}

// Display is one entry of a visual_display request's Displays list.
type Display struct {
	Type DisplayType `json:"type"`
	Data any         `json:"data"`
}

// HITLRequestType distinguishes form and visual_display requests.
type HITLRequestType string

const (
	HITLForm          HITLRequestType = "form"
	HITLVisualDisplay HITLRequestType = "visual_display"
)

// HITLRequest is the form/visual_display request schema. Exactly one of Fields or
// Displays is populated, matching Type.
type HITLRequest struct {
	ID            string          `json:"id"`
	Type          HITLRequestType `json:"type"`
	Title         string          `json:"title"`
	Description   string          `json:"description,omitempty"`
	Fields        []HITLField     `json:"fields,omitempty"`
	Actions       *HITLActions    `json:"actions,omitempty"`
	SessionID     string          `json:"session_id"`
	TTLSeconds    int             `json:"ttl_seconds,omitempty"`
	Readonly      bool            `json:"readonly,omitempty"`
	Displays      []Display       `json:"displays,omitempty"`
	DismissLabel  string          `json:"dismiss_label,omitempty"`
}

// RunStatus is the top-level lifecycle status of a GraphState.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSuspended RunStatus = "suspended"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// GraphState is the shared value that flows through every node. It is
// treated as immutable after construction within a single node invocation;
// nodes return a StateUpdate which the runner merges to produce the next
// GraphState (see Merge).
type GraphState struct {
	SessionID         string
	SemanticInput     SemanticInput
	DialogueHistory   []DialogueMessage
	WorkingMemory     WorkingMemory
	EmotionalContext  EmotionalContext
	IntentResult      *IntentResult
	PendingToolCalls  []ToolCallRequest
	Observation       string
	HITLRequest       *HITLRequest
	ResponseStream    *TokenStream `json:"-"`
	Status            RunStatus
	ActiveExecutions  []*contract.ExecutionContract
	CompletedExecutions []*contract.ExecutionContract
	ContextVariables  *ContextVariables

	// SurfacedConsequences tracks which completed-execution IDs have
	// already been included in a Reasoning prompt's consequence-view block
	//.
	SurfacedConsequences map[string]bool

	// HITLChainDepth counts HITL requests issued so far this run.
	HITLChainDepth int
}

// StateUpdate is the sparse, optional-field partial update a node returns.
// Nil/zero fields mean "no change". Slice/map fields are treated as
// append-or-replace per field, documented at each use site.
type StateUpdate struct {
	SemanticInput        *SemanticInput
	AppendDialogue       []DialogueMessage
	WorkingMemory         *WorkingMemory
	EmotionalContext      *EmotionalContext
	IntentResult          *IntentResult
	SetPendingToolCalls   []ToolCallRequest
	ConsumeFirstToolCall  bool
	Observation           *string
	HITLRequest           *HITLRequest
	ClearHITLRequest      bool
	ResponseStream        *TokenStream
	Status                *RunStatus
	NewActiveExecution    *contract.ExecutionContract
	CompleteExecutionID   string
	MarkSurfaced          []string
	IncrementHITLDepth    bool
}

// NewGraphState constructs the initial state for a run.
func NewGraphState(sessionID string, history []DialogueMessage, budgetBytes int) GraphState {
	return GraphState{
		SessionID:            sessionID,
		DialogueHistory:      append([]DialogueMessage(nil), history...),
		ContextVariables:     NewContextVariables(budgetBytes),
		SurfacedConsequences: make(map[string]bool),
	}
}

// Merge applies a partial update, returning the resulting GraphState. The
// receiver is not mutated; slices/maps that change are copied.
func (s GraphState) Merge(u StateUpdate) GraphState {
	next := s

	if u.SemanticInput != nil {
		next.SemanticInput = *u.SemanticInput
	}
	if len(u.AppendDialogue) > 0 {
		next.DialogueHistory = append(append([]DialogueMessage(nil), s.DialogueHistory...), u.AppendDialogue...)
	}
	if u.WorkingMemory != nil {
		next.WorkingMemory = *u.WorkingMemory
	}
	if u.EmotionalContext != nil {
		next.EmotionalContext = *u.EmotionalContext
	}
	if u.IntentResult != nil {
		next.IntentResult = u.IntentResult
		si := next.SemanticInput
		si.Intent = u.IntentResult
		next.SemanticInput = si
	}
	if u.SetPendingToolCalls != nil {
		next.PendingToolCalls = append([]ToolCallRequest(nil), u.SetPendingToolCalls...)
	}
	if u.ConsumeFirstToolCall && len(next.PendingToolCalls) > 0 {
		next.PendingToolCalls = append([]ToolCallRequest(nil), next.PendingToolCalls[1:]...)
	}
	if u.Observation != nil {
		next.Observation = *u.Observation
	}
	if u.ClearHITLRequest {
		next.HITLRequest = nil
	}
	if u.HITLRequest != nil {
		next.HITLRequest = u.HITLRequest
		next.HITLChainDepth = s.HITLChainDepth + 1
	} else if u.IncrementHITLDepth {
		next.HITLChainDepth = s.HITLChainDepth + 1
	}
	if u.ResponseStream != nil {
		next.ResponseStream = u.ResponseStream
	}
	if u.Status != nil {
		next.Status = *u.Status
	}
	if u.NewActiveExecution != nil {
		next.ActiveExecutions = append(append([]*contract.ExecutionContract(nil), s.ActiveExecutions...), u.NewActiveExecution)
	}
	if u.CompleteExecutionID != "" {
		var active []*contract.ExecutionContract
		var completed = append([]*contract.ExecutionContract(nil), s.CompletedExecutions...)
		for _, c := range next.ActiveExecutions {
			if c.ExecutionID == u.CompleteExecutionID {
				completed = append(completed, c)
				continue
			}
			active = append(active, c)
		}
		next.ActiveExecutions = active
		next.CompletedExecutions = completed
	}
	if len(u.MarkSurfaced) > 0 {
		surfaced := make(map[string]bool, len(s.SurfacedConsequences)+len(u.MarkSurfaced))
		for k, v := range s.SurfacedConsequences {
			surfaced[k] = v
		}
		for _, id := range u.MarkSurfaced {
			surfaced[id] = true
		}
		next.SurfacedConsequences = surfaced
	}

	return next
}

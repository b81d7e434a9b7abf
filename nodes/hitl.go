// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/state"
)

// ContextKeyForHITL returns the context_variables key a HITL request is
// stored under: "hitl_{title}".
func ContextKeyForHITL(title string) string {
	return "hitl_" + title
}

// hitlContextRecord is the value persisted into context_variables when a
// HITL request suspends the run. visual_display requests also carry
// displays_def so the shell can replay them later.
type hitlContextRecord struct {
	Request     state.HITLRequest `json:"request"`
	DisplaysDef []state.Display   `json:"displays_def,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// HITLNode suspends execution for a human-in-the-loop interaction.
// It records the pause as an ecs_request contract (or image_memory for the
// image-entry pipeline), emits the hitl event, and marks the graph
// suspended so the runner checkpoints and stops.
type HITLNode struct {
	// ContractType is stamped on the contracts this node creates. The text
	// graph uses ContractECSRequest; the image graph's instance uses
	// ContractImageMemory so the resume path can tell them apart.
	ContractType contract.ContractType

	NewID  ToolIDGenerator
	Now    func() time.Time
	Logger *slog.Logger
}

// NewHITLNode constructs a HITLNode for ecs_request contracts. newID and now
// default like NewToolNode's.
func NewHITLNode(newID ToolIDGenerator, now func() time.Time, logger *slog.Logger) *HITLNode {
	if newID == nil {
		newID = sequentialExecutionID()
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HITLNode{ContractType: contract.ContractECSRequest, NewID: newID, Now: now, Logger: logger}
}

func (n *HITLNode) Name() string { return "hitl" }

func (n *HITLNode) Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error) {
	req := gs.HITLRequest
	if req == nil {
		return state.StateUpdate{}, nil
	}

	now := n.Now()
	contractType := n.ContractType
	if contractType == "" {
		contractType = contract.ContractECSRequest
	}
	c := contract.NewContract(n.NewID(), contractType, contract.ActionDetail{
		Service: "hitl",
		Method:  string(req.Type),
		Summary: "hitl." + req.Title,
		Arguments: map[string]any{
			"request_id": req.ID,
			"title":      req.Title,
		},
	}, false, "", now)

	if err := n.transition(emit, c, contract.TriggerStart); err != nil {
		return state.StateUpdate{}, err
	}

	if emit != nil {
		_ = emit.Emit(events.NewHITLEvent(*req))
	}

	if err := n.transition(emit, c, contract.TriggerSuspend); err != nil {
		return state.StateUpdate{}, err
	}
	resumable := n.Now()
	c.ResumableAt = &resumable

	n.storeContextRecord(gs, *req)

	n.Logger.Info("hitl: suspended for user input",
		slog.String("session_id", gs.SessionID),
		slog.String("execution_id", c.ExecutionID),
		slog.String("type", string(req.Type)),
		slog.String("title", req.Title))

	suspended := state.StatusSuspended
	return state.StateUpdate{
		Status:             &suspended,
		NewActiveExecution: c,
	}, nil
}

func (n *HITLNode) transition(emit events.Emitter, c *contract.ExecutionContract, trigger contract.Trigger) error {
	from := c.Status
	if err := contract.Transition(c, trigger, "hitl_node", contract.ActorSystem, nil, nil, "", n.Now()); err != nil {
		return err
	}
	if emit != nil {
		_ = emit.Emit(events.NewExecutionStateEvent(c, *c.LastTransition(), from))
	}
	return nil
}

// storeContextRecord writes the request definition plus a timestamp under
// hitl_{title}. ContextVariables is shared by reference across state merges,
// so writing through it here is visible to the checkpointed state.
func (n *HITLNode) storeContextRecord(gs state.GraphState, req state.HITLRequest) {
	if gs.ContextVariables == nil {
		return
	}
	rec := hitlContextRecord{Request: req, Timestamp: n.Now()}
	if req.Type == state.HITLVisualDisplay {
		rec.DisplaysDef = req.Displays
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		n.Logger.Warn("hitl: marshal context record failed",
			slog.String("session_id", gs.SessionID), slog.Any("error", err))
		return
	}
	gs.ContextVariables.Set(ContextKeyForHITL(req.Title), string(raw))
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/state"
)

// ToolInvoker executes a named tool call against the MCP transport. The
// transport itself is an external collaborator; the Tool
// node depends only on this narrow interface.
type ToolInvoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (result any, err error)
}

// ToolIDGenerator mints stable execution ids for new contracts.
type ToolIDGenerator func() string

// ToolNode executes the head of pending_tool_calls with idempotency
// protection and records it as an ExecutionContract.
type ToolNode struct {
	Invoker ToolInvoker
	NewID   ToolIDGenerator
	Now     func() time.Time
}

// NewToolNode constructs a ToolNode. newID and now default to a monotonic
// counter-backed id generator and time.Now respectively when nil.
func NewToolNode(invoker ToolInvoker, newID ToolIDGenerator, now func() time.Time) *ToolNode {
	if newID == nil {
		newID = sequentialExecutionID()
	}
	if now == nil {
		now = time.Now
	}
	return &ToolNode{Invoker: invoker, NewID: newID, Now: now}
}

func (n *ToolNode) Name() string { return "tool" }

func (n *ToolNode) Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error) {
	if len(gs.PendingToolCalls) == 0 {
		return state.StateUpdate{}, nil
	}
	call := gs.PendingToolCalls[0]

	idempotencyKey := ""
	if call.Idempotent {
		idempotencyKey = idempotencyKeyFor(call.Tool, call.Arguments)
		if prior := findCompletedByIdempotencyKey(gs, idempotencyKey); prior != nil {
			obs := fmt.Sprintf("%s already completed (idempotent replay): %v", call.Tool, prior.Result)
			n.emitToolResult(emit, call.Tool, prior.Result, "")
			return state.StateUpdate{
				ConsumeFirstToolCall: true,
				Observation:          &obs,
			}, nil
		}
	}

	now := n.Now()
	c := contract.NewContract(n.NewID(), contract.ContractToolCall, contract.ActionDetail{
		Service: "tool",
		Method:  call.Tool,
	}, call.Irreversible, idempotencyKey, now)

	if err := n.transition(emit, c, contract.TriggerStart, "tool_node", contract.ActorSystem, nil, nil, ""); err != nil {
		return state.StateUpdate{}, err
	}

	result, invokeErr := n.invoke(ctx, call)

	var obs string
	update := state.StateUpdate{
		ConsumeFirstToolCall: true,
		NewActiveExecution:   c,
		CompleteExecutionID:  c.ExecutionID,
	}

	if invokeErr != nil {
		if err := n.transition(emit, c, contract.TriggerFail, "tool_node", contract.ActorSystem, nil, nil, invokeErr.Error()); err != nil {
			return state.StateUpdate{}, err
		}
		obs = fmt.Sprintf("%s failed: %s", call.Tool, invokeErr.Error())
		n.emitToolResult(emit, call.Tool, nil, invokeErr.Error())
	} else {
		if err := n.transition(emit, c, contract.TriggerSucceed, "tool_node", contract.ActorSystem, nil, result, ""); err != nil {
			return state.StateUpdate{}, err
		}
		obs = fmt.Sprintf("%s succeeded: %v", call.Tool, result)
		n.emitToolResult(emit, call.Tool, result, "")
	}

	update.Observation = &obs
	return update, nil
}

func (n *ToolNode) invoke(ctx context.Context, call state.ToolCallRequest) (any, error) {
	if n.Invoker == nil {
		return nil, fmt.Errorf("nodes: no tool invoker configured for %q", call.Tool)
	}
	result, err := n.Invoker.Invoke(ctx, call.Tool, call.Arguments)
	if err != nil {
		return nil, &ToolExecutionFailedError{Tool: call.Tool, Err: err}
	}
	return result, nil
}

func (n *ToolNode) transition(emit events.Emitter, c *contract.ExecutionContract, trigger contract.Trigger, actor string, actorCategory contract.ActorCategory, payload map[string]any, result any, errMsg string) error {
	from := c.Status
	if err := contract.Transition(c, trigger, actor, actorCategory, payload, result, errMsg, n.Now()); err != nil {
		return err
	}
	if emit != nil {
		_ = emit.Emit(events.NewExecutionStateEvent(c, *c.LastTransition(), from))
	}
	return nil
}

func (n *ToolNode) emitToolResult(emit events.Emitter, tool string, result any, errMsg string) {
	if emit == nil {
		return
	}
	_ = emit.Emit(events.NewToolResultEvent(tool, result, errMsg))
}

func findCompletedByIdempotencyKey(gs state.GraphState, key string) *contract.ExecutionContract {
	if key == "" {
		return nil
	}
	for _, c := range gs.CompletedExecutions {
		if c.IdempotencyKey == key && c.Status == contract.StatusCompleted {
			return c
		}
	}
	return nil
}

// idempotencyKeyFor derives a stable key from the tool name and its
// canonicalized (sorted-key) arguments.
func idempotencyKeyFor(tool string, args map[string]any) string {
	canon := canonicalizeArgs(args)
	sum := sha1.Sum([]byte(canon))
	return tool + ":" + hex.EncodeToString(sum[:])
}

func canonicalizeArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].Key = k
		ordered[i].Value = args[k]
	}
	raw, err := json.Marshal(ordered)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(raw)
}

// sequentialExecutionID returns a ToolIDGenerator producing "exec-1",
// "exec-2", ... in call order. Production callers typically supply a uuid-
// backed generator instead; this default keeps tests and demos
// dependency-free.
func sequentialExecutionID() ToolIDGenerator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("exec-%d", n)
	}
}

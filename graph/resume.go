// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aleutian-ai/coggraph/checkpoint"
	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/nodes"
	"github.com/aleutian-ai/coggraph/observer"
	"github.com/aleutian-ai/coggraph/state"
)

// resumeActor is the actor name recorded on resume-path transitions.
const resumeActor = "graph_runner"

// hitlTimeoutMessage is recorded on WAITING contracts whose deadline passed
// before the user answered.
const hitlTimeoutMessage = "timed out waiting for user response"

// Resume continues a suspended session from its checkpoint.
func (r *Runner) Resume(ctx context.Context, sessionID string, resp HITLResponse, emit events.Emitter) error {
	sess := r.sessions.getOrCreate(sessionID)
	if !sess.TryAcquire() {
		return ErrSessionInProgress
	}
	defer sess.Release()

	if err := r.acquireSlot(); err != nil {
		return err
	}
	defer r.releaseSlot()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.setCancel(cancel)
	defer sess.setCancel(nil)

	rec, err := r.checkpoints.Load(ctx, sessionID)
	if err != nil {
		if errIsNotFound(err) {
			return err
		}
		return fmt.Errorf("graph: load checkpoint: %w", err)
	}
	gs, err := checkpoint.Unmarshal(rec.StateJSON, r.contextBudgetBytes)
	if err != nil {
		return fmt.Errorf("graph: decode checkpoint: %w", err)
	}

	waiting, err := r.alignmentCheck(gs)
	if err != nil {
		return err
	}

	emit = r.wrapEmitter(emit, sessionID)
	r.logger.Info("resuming session",
		slog.String("session_id", sessionID),
		slog.String("execution_id", waiting.ExecutionID),
		slog.String("action", string(resp.Action)))

	if r.deadlineExpired(gs, waiting) {
		return r.resumeExpired(ctx, gs, waiting, sess, emit)
	}

	r.injectResponse(gs, resp)

	if err := r.settleWaiting(waiting, resp, emit); err != nil {
		return err
	}
	gs = gs.Merge(state.StateUpdate{CompleteExecutionID: waiting.ExecutionID})

	running := state.StatusRunning
	gs = gs.Merge(state.StateUpdate{ClearHITLRequest: true, Status: &running})
	sess.saveState(gs)

	if waiting.ContractType == contract.ContractImageMemory {
		return r.finishImageMemoryResume(ctx, gs, waiting, resp, sess, emit)
	}

	compiled, err := r.orch.Compile(EntryText)
	if err != nil {
		return err
	}
	return r.drive(ctx, compiled, nodeReasoning, gs, sess, emit)
}

// alignmentCheck verifies the checkpoint's contract topology before any
// mutation: exactly one WAITING contract is expected; more than one is
// logged and tolerated, zero fails the resume.
func (r *Runner) alignmentCheck(gs state.GraphState) (*contract.ExecutionContract, error) {
	now := r.now()
	var waiting []*contract.ExecutionContract
	for _, c := range gs.ActiveExecutions {
		snap := observer.Snapshot(c, now)
		if snap.IsResumable {
			waiting = append(waiting, c)
		}
	}
	switch len(waiting) {
	case 0:
		return nil, ErrAlignmentFailure
	case 1:
	default:
		r.logger.Warn("alignment mismatch: multiple waiting contracts, proceeding with the oldest",
			slog.String("session_id", gs.SessionID),
			slog.Int("waiting_count", len(waiting)))
	}
	return waiting[0], nil
}

// deadlineExpired reports whether the suspended request's ttl_seconds
// elapsed before the user answered.
func (r *Runner) deadlineExpired(gs state.GraphState, waiting *contract.ExecutionContract) bool {
	if gs.HITLRequest == nil || gs.HITLRequest.TTLSeconds <= 0 || waiting.ResumableAt == nil {
		return false
	}
	deadline := waiting.ResumableAt.Add(time.Duration(gs.HITLRequest.TTLSeconds) * time.Second)
	return r.now().After(deadline)
}

// resumeExpired fails the WAITING contract on timeout and, for the text
// pipeline, re-enters Reasoning so the model can explain the lapse; the
// image pipeline just finishes.
func (r *Runner) resumeExpired(ctx context.Context, gs state.GraphState, waiting *contract.ExecutionContract, sess *Session, emit events.Emitter) error {
	from := waiting.Status
	if err := contract.Transition(waiting, contract.TriggerTimeout, "system", contract.ActorPolicy, nil, nil, hitlTimeoutMessage, r.now()); err != nil {
		return err
	}
	_ = emit.Emit(events.NewExecutionStateEvent(waiting, *waiting.LastTransition(), from))

	gs = gs.Merge(state.StateUpdate{CompleteExecutionID: waiting.ExecutionID})
	running := state.StatusRunning
	gs = gs.Merge(state.StateUpdate{ClearHITLRequest: true, Status: &running})
	sess.saveState(gs)

	if waiting.ContractType == contract.ContractImageMemory {
		return r.completeRun(ctx, gs, sess, emit)
	}
	compiled, err := r.orch.Compile(EntryText)
	if err != nil {
		return err
	}
	return r.drive(ctx, compiled, nodeReasoning, gs, sess, emit)
}

// injectResponse merges the user's answer into context_variables under
// hitl_{title}, labeling form data by field label.
func (r *Runner) injectResponse(gs state.GraphState, resp HITLResponse) {
	if gs.HITLRequest == nil || gs.ContextVariables == nil {
		return
	}
	req := gs.HITLRequest
	key := nodes.ContextKeyForHITL(req.Title)

	record := make(map[string]any)
	if raw, ok := gs.ContextVariables.Get(key); ok {
		_ = json.Unmarshal([]byte(raw), &record)
	}

	labeled := make(map[string]any, len(resp.Data))
	for _, f := range req.Fields {
		if v, ok := resp.Data[f.Name]; ok {
			label := f.Label
			if label == "" {
				label = f.Name
			}
			labeled[label] = v
		}
	}

	record["response"] = map[string]any{
		"action": string(resp.Action),
		"fields": labeled,
		"data":   resp.Data,
	}
	record["responded_at"] = r.now()

	raw, err := json.Marshal(record)
	if err != nil {
		r.logger.Warn("marshal hitl response record failed",
			slog.String("session_id", gs.SessionID), slog.Any("error", err))
		return
	}
	gs.ContextVariables.Set(key, string(raw))
}

// settleWaiting drives the WAITING contract to its terminal status: reject
// goes straight to REJECTED; everything else re-enters RUNNING and
// succeeds with the response payload as result.
func (r *Runner) settleWaiting(waiting *contract.ExecutionContract, resp HITLResponse, emit events.Emitter) error {
	transition := func(trigger contract.Trigger, actor string, cat contract.ActorCategory, result any, errMsg string) error {
		from := waiting.Status
		if err := contract.Transition(waiting, trigger, actor, cat, nil, result, errMsg, r.now()); err != nil {
			return err
		}
		_ = emit.Emit(events.NewExecutionStateEvent(waiting, *waiting.LastTransition(), from))
		return nil
	}

	if resp.rejected() {
		return transition(contract.TriggerReject, resumeActor, contract.ActorUser, nil, "")
	}

	if err := transition(contract.TriggerResume, resumeActor, contract.ActorSystem, nil, ""); err != nil {
		return err
	}
	result := map[string]any{"action": string(resp.Action)}
	if len(resp.Data) > 0 {
		result["data"] = resp.Data
	}
	return transition(contract.TriggerSucceed, resumeActor, contract.ActorUser, result, "")
}

// finishImageMemoryResume persists the approved plan and completes the run;
// the image pipeline has no Reasoning node to loop back to.
func (r *Runner) finishImageMemoryResume(ctx context.Context, gs state.GraphState, waiting *contract.ExecutionContract, resp HITLResponse, sess *Session, emit events.Emitter) error {
	if !resp.rejected() && r.memory != nil && len(resp.Data) > 0 {
		category := "plan"
		summary := stringField(resp.Data, "key")
		content := stringField(resp.Data, "value")
		if summary == "" {
			summary = waiting.ActionSummary()
		}
		if _, err := r.memory.Upsert(ctx, gs.SessionID, category, summary, content); err != nil {
			r.logger.Warn("plan memory upsert failed",
				slog.String("session_id", gs.SessionID), slog.Any("error", err))
		}
	}
	return r.completeRun(ctx, gs, sess, emit)
}

func (r *Runner) completeRun(ctx context.Context, gs state.GraphState, sess *Session, emit events.Emitter) error {
	completed := state.StatusCompleted
	gs = gs.Merge(state.StateUpdate{Status: &completed})
	sess.saveState(gs)
	if err := r.checkpoints.Delete(ctx, gs.SessionID); err != nil {
		r.logger.Warn("checkpoint delete failed",
			slog.String("session_id", gs.SessionID), slog.Any("error", err))
	}
	_ = emit.Emit(events.NewDoneEvent())
	return nil
}

// ReplayDisplay reissues a previously shown visual_display request in
// readonly form from its stored displays_def.
func (r *Runner) ReplayDisplay(sessionID, title string) (state.HITLRequest, error) {
	gs, err := r.GetState(sessionID)
	if err != nil {
		return state.HITLRequest{}, err
	}
	if gs.ContextVariables == nil {
		return state.HITLRequest{}, ErrSessionNotFound
	}
	raw, ok := gs.ContextVariables.Get(nodes.ContextKeyForHITL(title))
	if !ok {
		return state.HITLRequest{}, fmt.Errorf("graph: no stored display %q for session %s", title, sessionID)
	}

	var record struct {
		Request     state.HITLRequest `json:"request"`
		DisplaysDef []state.Display   `json:"displays_def"`
	}
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return state.HITLRequest{}, fmt.Errorf("graph: decode stored display: %w", err)
	}
	if record.Request.Type != state.HITLVisualDisplay {
		return state.HITLRequest{}, fmt.Errorf("graph: stored request %q is not a visual_display", title)
	}

	replay := record.Request
	replay.Displays = record.DisplaysDef
	replay.Readonly = true
	return replay, nil
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

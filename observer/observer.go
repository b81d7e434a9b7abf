// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observer implements the read-only projection layer:
// snapshots, consequence views, session timelines, and the static
// state-machine topology. Every function here is pure over its inputs; no
// mutation, no hidden state beyond DefaultTopology's own cache.
package observer

import (
	"sort"
	"time"

	"github.com/aleutian-ai/coggraph/contract"
)

// ExecutionSnapshot is a read-only projection of one contract, suitable for
// GET /api/execution/{execution_id}/snapshot.
type ExecutionSnapshot struct {
	ExecutionID      string         `json:"execution_id"`
	ActionSummary    string         `json:"action_summary"`
	CurrentStatus    contract.Status `json:"current_status"`
	IsTerminal       bool           `json:"is_terminal"`
	IsStable         bool           `json:"is_stable"`
	IsResumable      bool           `json:"is_resumable"`
	HasSideEffects   bool           `json:"has_side_effects"`
	DurationInStateMs int64         `json:"duration_in_state_ms"`
	TransitionCount  int            `json:"transition_count"`
	LastActor        string         `json:"last_actor,omitempty"`
	LastTrigger      contract.Trigger `json:"last_trigger,omitempty"`
	Result           any            `json:"result,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	Constraints      Constraints    `json:"constraints"`
}

// Constraints echoes the contract's invariants for observers that need them
// without touching the raw contract.
type Constraints struct {
	Irreversible   bool   `json:"irreversible"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ConsequenceLabel summarizes a contract's outcome for Reasoning-facing
// prompts, per a fixed status table.
type ConsequenceLabel string

const (
	ConsequenceSuccess  ConsequenceLabel = "SUCCESS"
	ConsequenceFailed   ConsequenceLabel = "FAILED"
	ConsequenceRejected ConsequenceLabel = "REJECTED"
	ConsequenceWaiting  ConsequenceLabel = "WAITING"
)

var consequenceTable = map[contract.Status]ConsequenceLabel{
	contract.StatusPending:   ConsequenceWaiting,
	contract.StatusRunning:   ConsequenceWaiting,
	contract.StatusWaiting:   ConsequenceWaiting,
	contract.StatusCompleted: ConsequenceSuccess,
	contract.StatusFailed:    ConsequenceFailed,
	contract.StatusRejected:  ConsequenceRejected,
	contract.StatusCancelled: ConsequenceFailed,
}

// ExecutionConsequenceView is the Reasoning-facing projection of a contract.
// Reasoning MUST consume only this type, never raw contract fields.
type ExecutionConsequenceView struct {
	ExecutionID      string           `json:"execution_id"`
	ActionSummary    string           `json:"action_summary"`
	ConsequenceLabel ConsequenceLabel `json:"consequence_label"`
	HasSideEffects   bool             `json:"has_side_effects"`
	WasSuspended     bool             `json:"was_suspended"`
	IsStillPending   bool             `json:"is_still_pending"`
	Result           any              `json:"result,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
}

// ExecutionTimeline is a session-level projection over every contract and
// transition created during a run.
type ExecutionTimeline struct {
	SessionID                 string                   `json:"session_id"`
	Contracts                 []ExecutionSnapshot      `json:"contracts"`
	Transitions               []contract.TransitionRecord `json:"transitions"`
	TotalContracts            int                      `json:"total_contracts"`
	TerminalContracts         int                      `json:"terminal_contracts"`
	ActiveContracts           int                      `json:"active_contracts"`
	HasSuspended              bool                     `json:"has_suspended"`
	HasIrreversibleCompleted  bool                     `json:"has_irreversible_completed"`
	StartedAt                 time.Time                `json:"started_at"`
	EndedAt                   time.Time                `json:"ended_at"`
}

// Snapshot computes an ExecutionSnapshot from a contract's current state and
// transition history. now is the reference time used for
// duration_in_state_ms; callers typically pass time.Now().
func Snapshot(c *contract.ExecutionContract, now time.Time) ExecutionSnapshot {
	snap := ExecutionSnapshot{
		ExecutionID:     c.ExecutionID,
		ActionSummary:   c.ActionSummary(),
		CurrentStatus:   c.Status,
		IsTerminal:      c.Status.IsTerminal(),
		IsStable:        c.Status.IsStable(),
		IsResumable:     c.Status.IsResumable(),
		HasSideEffects:  c.HasSideEffects(),
		TransitionCount: len(c.Transitions),
		Result:          c.Result,
		ErrorMessage:    c.ErrorMessage,
		Constraints: Constraints{
			Irreversible:   c.Irreversible,
			IdempotencyKey: c.IdempotencyKey,
		},
	}
	if last := c.LastTransition(); last != nil {
		snap.LastActor = last.Actor
		snap.LastTrigger = last.Trigger
		snap.DurationInStateMs = now.Sub(last.Timestamp).Milliseconds()
	} else {
		snap.DurationInStateMs = now.Sub(c.CreatedAt).Milliseconds()
	}
	return snap
}

// ConsequenceView maps a contract to the fixed consequence table.
func ConsequenceView(c *contract.ExecutionContract) ExecutionConsequenceView {
	label, ok := consequenceTable[c.Status]
	if !ok {
		label = ConsequenceWaiting
	}
	return ExecutionConsequenceView{
		ExecutionID:      c.ExecutionID,
		ActionSummary:    c.ActionSummary(),
		ConsequenceLabel: label,
		HasSideEffects:   c.HasSideEffects(),
		WasSuspended:     c.WasSuspended(),
		IsStillPending:   !c.Status.IsTerminal(),
		Result:           c.Result,
		ErrorMessage:     c.ErrorMessage,
	}
}

// ConsequenceViews batches ConsequenceView over a sequence, preserving
// order.
func ConsequenceViews(contracts []*contract.ExecutionContract) []ExecutionConsequenceView {
	out := make([]ExecutionConsequenceView, len(contracts))
	for i, c := range contracts {
		out[i] = ConsequenceView(c)
	}
	return out
}

// TransitionRecords returns an ordered copy of a contract's transition log.
func TransitionRecords(c *contract.ExecutionContract) []contract.TransitionRecord {
	out := make([]contract.TransitionRecord, len(c.Transitions))
	copy(out, c.Transitions)
	return out
}

// Timeline aggregates snapshots and transitions across every contract
// created in a session, ordered by creation time and timestamp.
func Timeline(sessionID string, contracts []*contract.ExecutionContract, now time.Time) ExecutionTimeline {
	tl := ExecutionTimeline{SessionID: sessionID}

	sorted := make([]*contract.ExecutionContract, len(contracts))
	copy(sorted, contracts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var allTransitions []contract.TransitionRecord
	for _, c := range sorted {
		tl.Contracts = append(tl.Contracts, Snapshot(c, now))
		allTransitions = append(allTransitions, c.Transitions...)
		tl.TotalContracts++
		if c.Status.IsTerminal() {
			tl.TerminalContracts++
		} else {
			tl.ActiveContracts++
		}
		if c.WasSuspended() {
			tl.HasSuspended = true
		}
		if c.HasSideEffects() {
			tl.HasIrreversibleCompleted = true
		}
		if tl.StartedAt.IsZero() || c.CreatedAt.Before(tl.StartedAt) {
			tl.StartedAt = c.CreatedAt
		}
	}

	sort.Slice(allTransitions, func(i, j int) bool {
		return allTransitions[i].Timestamp.Before(allTransitions[j].Timestamp)
	})
	tl.Transitions = allTransitions
	if len(allTransitions) > 0 {
		tl.EndedAt = allTransitions[len(allTransitions)-1].Timestamp
	}

	return tl
}

// Topology returns the static, cacheable state-machine topology
// (GET /api/execution/topology).
func Topology() *contract.StateMachineTopology {
	return contract.Topology()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contract

import "sync"

// edge is a (from, to) pair keyed by trigger.
type edge struct {
	from, to Status
	trigger  Trigger
}

// StateMachineTopology is the static structure of statuses, legal
// transitions, and the handful of transitions that are explicitly forbidden
// (kept around so ForbiddenReason can explain a rejection instead of just
// saying "no").
//
// Thread Safety: StateMachineTopology is immutable after construction and
// safe for concurrent use.
type StateMachineTopology struct {
	mu          sync.RWMutex
	edges       map[Status]map[Status]Trigger
	forbidden   map[Status]map[Status]string
	terminal    []Status
	resumable   []Status
	initial     Status
}

// newTopology builds the fixed transition table once.
func newTopology() *StateMachineTopology {
	t := &StateMachineTopology{
		edges:     make(map[Status]map[Status]Trigger),
		forbidden: make(map[Status]map[Status]string),
		terminal:  []Status{StatusCompleted, StatusFailed, StatusRejected, StatusCancelled},
		resumable: []Status{StatusWaiting},
		initial:   StatusPending,
	}
	for _, s := range AllStatuses() {
		t.edges[s] = make(map[Status]Trigger)
		t.forbidden[s] = make(map[Status]string)
	}

	add := func(from Status, trigger Trigger, to Status) {
		t.edges[from][to] = trigger
	}
	add(StatusPending, TriggerStart, StatusRunning)
	add(StatusRunning, TriggerSuspend, StatusWaiting)
	add(StatusWaiting, TriggerResume, StatusRunning)
	add(StatusRunning, TriggerSucceed, StatusCompleted)
	add(StatusRunning, TriggerFail, StatusFailed)
	add(StatusPending, TriggerReject, StatusRejected)
	add(StatusWaiting, TriggerReject, StatusRejected)
	add(StatusPending, TriggerCancel, StatusCancelled)
	add(StatusRunning, TriggerCancel, StatusCancelled)
	add(StatusWaiting, TriggerCancel, StatusCancelled)
	add(StatusWaiting, TriggerTimeout, StatusFailed)

	forbid := func(from, to Status, reason string) {
		t.forbidden[from][to] = reason
	}
	forbid(StatusWaiting, StatusCompleted, "must re-enter RUNNING before completing")
	forbid(StatusPending, StatusCompleted, "cannot skip RUNNING")
	forbid(StatusPending, StatusFailed, "cannot skip RUNNING")
	forbid(StatusPending, StatusWaiting, "cannot skip RUNNING")
	for _, term := range t.terminal {
		for _, s := range AllStatuses() {
			if s == term {
				continue
			}
			if _, ok := t.forbidden[term][s]; !ok {
				t.forbidden[term][s] = "no transitions out of a terminal status"
			}
		}
	}

	return t
}

// DefaultTopology is the shared, process-wide topology instance. topology()
// MAY be cached; this is that cache.
var DefaultTopology = newTopology()

// CanTransition reports whether from -> to is a legal edge for the given
// trigger.
func (t *StateMachineTopology) CanTransition(from Status, trigger Trigger, to Status) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	got, ok := t.edges[from][to]
	return ok && got == trigger
}

// ForbiddenReason returns a human-readable reason the from->to transition is
// forbidden, or "" if it is not explicitly listed as forbidden (it may
// still simply not be a valid edge).
func (t *StateMachineTopology) ForbiddenReason(from, to Status) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.forbidden[from][to]
}

// TerminalStatuses returns the terminal statuses.
func (t *StateMachineTopology) TerminalStatuses() []Status {
	out := make([]Status, len(t.terminal))
	copy(out, t.terminal)
	return out
}

// ResumableStatuses returns the resumable statuses ({WAITING}).
func (t *StateMachineTopology) ResumableStatuses() []Status {
	out := make([]Status, len(t.resumable))
	copy(out, t.resumable)
	return out
}

// InitialStatus returns PENDING.
func (t *StateMachineTopology) InitialStatus() Status {
	return t.initial
}

// Edges returns a copy of the valid transition edges, useful for
// serialization (GET /api/execution/topology).
func (t *StateMachineTopology) Edges() []TopologyEdge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []TopologyEdge
	for from, tos := range t.edges {
		for to, trigger := range tos {
			out = append(out, TopologyEdge{From: from, To: to, Trigger: trigger})
		}
	}
	return out
}

// TopologyEdge is the wire representation of one legal transition.
type TopologyEdge struct {
	From    Status  `json:"from"`
	To      Status  `json:"to"`
	Trigger Trigger `json:"trigger"`
}

// ForbiddenEdge is the wire representation of one explicitly forbidden
// transition and the reason it is disallowed.
type ForbiddenEdge struct {
	From   Status `json:"from"`
	To     Status `json:"to"`
	Reason string `json:"reason"`
}

// ForbiddenEdges returns a copy of the explicitly forbidden transitions.
func (t *StateMachineTopology) ForbiddenEdges() []ForbiddenEdge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []ForbiddenEdge
	for from, tos := range t.forbidden {
		for to, reason := range tos {
			out = append(out, ForbiddenEdge{From: from, To: to, Reason: reason})
		}
	}
	return out
}

// Topology returns the static, cacheable topology.
func Topology() *StateMachineTopology {
	return DefaultTopology
}

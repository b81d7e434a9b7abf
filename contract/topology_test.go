// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contract

import "testing"

func TestTopology_ValidTransitions(t *testing.T) {
	topo := Topology()

	cases := []struct {
		from    Status
		trigger Trigger
		to      Status
	}{
		{StatusPending, TriggerStart, StatusRunning},
		{StatusRunning, TriggerSuspend, StatusWaiting},
		{StatusWaiting, TriggerResume, StatusRunning},
		{StatusRunning, TriggerSucceed, StatusCompleted},
		{StatusRunning, TriggerFail, StatusFailed},
		{StatusPending, TriggerReject, StatusRejected},
		{StatusWaiting, TriggerReject, StatusRejected},
		{StatusPending, TriggerCancel, StatusCancelled},
		{StatusRunning, TriggerCancel, StatusCancelled},
		{StatusWaiting, TriggerCancel, StatusCancelled},
		{StatusWaiting, TriggerTimeout, StatusFailed},
	}
	for _, tc := range cases {
		if !topo.CanTransition(tc.from, tc.trigger, tc.to) {
			t.Errorf("expected %s -%s-> %s to be valid", tc.from, tc.trigger, tc.to)
		}
	}
}

func TestTopology_InvalidTransitions(t *testing.T) {
	topo := Topology()

	cases := []struct {
		from    Status
		trigger Trigger
		to      Status
	}{
		{StatusWaiting, TriggerSucceed, StatusCompleted},
		{StatusPending, TriggerSucceed, StatusCompleted},
		{StatusPending, TriggerFail, StatusFailed},
		{StatusCompleted, TriggerStart, StatusRunning},
		{StatusFailed, TriggerResume, StatusRunning},
		{StatusRejected, TriggerCancel, StatusCancelled},
		{StatusCancelled, TriggerSucceed, StatusCompleted},
	}
	for _, tc := range cases {
		if topo.CanTransition(tc.from, tc.trigger, tc.to) {
			t.Errorf("expected %s -%s-> %s to be invalid", tc.from, tc.trigger, tc.to)
		}
	}
}

func TestTopology_Idempotent(t *testing.T) {
	a := Topology()
	b := Topology()
	if len(a.Edges()) != len(b.Edges()) {
		t.Fatalf("two invocations of Topology() returned differently-sized edge sets")
	}
}

func TestTopology_TerminalAndResumable(t *testing.T) {
	topo := Topology()
	terminal := topo.TerminalStatuses()
	want := map[Status]bool{StatusCompleted: true, StatusFailed: true, StatusRejected: true, StatusCancelled: true}
	if len(terminal) != len(want) {
		t.Fatalf("expected %d terminal statuses, got %d", len(want), len(terminal))
	}
	for _, s := range terminal {
		if !want[s] {
			t.Errorf("unexpected terminal status %s", s)
		}
	}

	resumable := topo.ResumableStatuses()
	if len(resumable) != 1 || resumable[0] != StatusWaiting {
		t.Fatalf("expected resumable = [WAITING], got %v", resumable)
	}

	if topo.InitialStatus() != StatusPending {
		t.Fatalf("expected initial status PENDING, got %s", topo.InitialStatus())
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contract

import "time"

// statusForTrigger reports whether from -> to is a legal edge for trigger.
// It does not derive the destination; destinationFor does that.
func statusForTrigger(topo *StateMachineTopology, from Status, trigger Trigger, to Status) bool {
	return topo.CanTransition(from, trigger, to)
}

// Transition validates trigger against the topology from the contract's
// current status and, if legal, appends a TransitionRecord and updates
// status (and result/error_message for succeed/fail). On an illegal
// transition it returns a *TransitionError wrapping ErrIllegalTransition and
// does not mutate the contract.
//
// now is accepted explicitly (rather than calling time.Now internally) so
// callers can keep transition timestamps deterministic in tests and so the
// same call can be reused for replaying a checkpoint's already-recorded
// history without clock skew.
func Transition(c *ExecutionContract, trigger Trigger, actor string, actorCategory ActorCategory, payload map[string]any, result any, errorMessage string, now time.Time) error {
	return transitionWithTopology(DefaultTopology, c, trigger, actor, actorCategory, payload, result, errorMessage, now)
}

func transitionWithTopology(topo *StateMachineTopology, c *ExecutionContract, trigger Trigger, actor string, actorCategory ActorCategory, payload map[string]any, result any, errorMessage string, now time.Time) error {
	from := c.Status
	to, ok := destinationFor(topo, from, trigger)
	if !ok {
		topo.mu.RLock()
		for _, tos := range topo.edges {
			for dest, tr := range tos {
				if tr == trigger {
					to = dest
				}
			}
		}
		topo.mu.RUnlock()
		reason := topo.ForbiddenReason(from, to)
		return &TransitionError{From: from, To: to, Trigger: trigger, Reason: reason}
	}

	if trigger == TriggerSucceed && result == nil {
		return ErrMissingResult
	}
	if trigger == TriggerFail && errorMessage == "" {
		return ErrMissingErrorMessage
	}

	record := TransitionRecord{
		SequenceNumber: len(c.Transitions),
		FromStatus:     from,
		ToStatus:       to,
		Trigger:        trigger,
		Actor:          actor,
		ActorCategory:  actorCategory,
		Timestamp:      now,
		Payload:        payload,
	}

	c.Transitions = append(c.Transitions, record)
	c.Status = to
	if trigger == TriggerSucceed {
		c.Result = result
	}
	if trigger == TriggerFail {
		c.ErrorMessage = errorMessage
	}
	return nil
}

// destinationFor scans the topology's edges from `from` for the given
// trigger. Unlike CanTransition (which checks a known destination), this
// derives the destination so callers only need to supply the trigger.
func destinationFor(topo *StateMachineTopology, from Status, trigger Trigger) (Status, bool) {
	topo.mu.RLock()
	defer topo.mu.RUnlock()
	for to, tr := range topo.edges[from] {
		if tr == trigger {
			return to, true
		}
	}
	return "", false
}

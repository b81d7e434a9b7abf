// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package contract

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition is returned when a transition is not permitted by the
// topology from the contract's current status. The contract is left
// unmodified.
var ErrIllegalTransition = errors.New("contract: illegal transition")

// ErrMissingResult is returned by Transition when a `succeed` trigger is
// applied without a result.
var ErrMissingResult = errors.New("contract: succeed requires a non-nil result")

// ErrMissingErrorMessage is returned by Transition when a `fail` trigger is
// applied without an error message.
var ErrMissingErrorMessage = errors.New("contract: fail requires a non-empty error_message")

// TransitionError wraps ErrIllegalTransition with the attempted edge for
// diagnostics.
type TransitionError struct {
	From    Status
	To      Status
	Trigger Trigger
	Reason  string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("contract: illegal transition %s -> %s on %q: %s", e.From, e.To, e.Trigger, e.Reason)
	}
	return fmt.Sprintf("contract: illegal transition %s -> %s on %q", e.From, e.To, e.Trigger)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import "errors"

// ErrSessionNotFound is returned when an operation names a session the
// runner has never seen.
var ErrSessionNotFound = errors.New("graph: session not found")

// ErrSessionInProgress is returned when a second caller tries to drive a
// session whose graph is already executing. One graph run per session
// at a time.
var ErrSessionInProgress = errors.New("graph: session already in progress")

// ErrAlignmentFailure is returned by Resume when the pre-resume alignment
// check finds no WAITING contract in the checkpointed state.
var ErrAlignmentFailure = errors.New("graph: alignment failure: no waiting contract")

// ErrCancelledByUser marks a run terminated through Abort.
var ErrCancelledByUser = errors.New("graph: cancelled by user")

// ErrTooManySessions is returned when the concurrent-session limit is
// reached.
var ErrTooManySessions = errors.New("graph: too many concurrent sessions")

// ErrUnknownEntryPoint is returned by Compile for an entry point other than
// text or image.
var ErrUnknownEntryPoint = errors.New("graph: unknown entry point")

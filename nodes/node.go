// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package nodes implements the six core graph nodes (Intent, Emotion,
// Memory, Reasoning, Tool, HITL/ECS). The minimal
// capability set every node shares is compute(state) -> partial_update,
// with cross-cutting concerns like event emission injected rather than
// inherited.
package nodes

import (
	"context"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/state"
)

// Node is the shared capability every graph node implements. Compute must
// not mutate gs; it returns a sparse StateUpdate for the runner to merge.
// Nodes that produce wire events emit them through emit as they are
// produced rather than batching them for return, since some events (text
// tokens) are only meaningful delivered live.
type Node interface {
	Name() string
	Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import (
	"context"

	"github.com/aleutian-ai/coggraph/state"
)

// StartChatStream drives client.ChatStream on its own goroutine and returns
// a state.TokenStream the Reasoning node can pull from. This is the
// callback-to-channel bridge: LLMClient.ChatStream is push-based
// (the backend calls us), but response_stream is a pull-based iterator.
func StartChatStream(ctx context.Context, client LLMClient, messages []Message, params GenerationParams) *state.TokenStream {
	ts, emit, fail, closeFn := state.NewTokenStream(ctx)

	go func() {
		defer closeFn()
		err := client.ChatStream(ctx, messages, params, func(event StreamEvent) error {
			switch event.Type {
			case StreamEventToken:
				emit(event.Content)
			case StreamEventError:
				fail(streamTransportError{message: event.Error})
			}
			return ctx.Err()
		})
		if err != nil && ctx.Err() == nil {
			fail(streamTransportError{message: err.Error()})
		}
	}()

	return ts
}

// streamTransportError wraps an LLM transport failure surfaced mid-stream,
// satisfying the error-taxonomy kind LLMTransportError without importing
// the reasoning package's sentinel directly (avoided to keep llmclient free
// of a dependency on node-level error types).
type streamTransportError struct {
	message string
}

func (e streamTransportError) Error() string { return e.message }

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llmclient abstracts the LLM backends Reasoning depends on: a
// blocking/streaming chat client plus a lightweight text classifier used
// for layer-2 intent recognition.
package llmclient

import "context"

// Message is one turn of conversation sent to a backend.
type Message struct {
	Role    string
	Content string
}

// GenerationParams controls sampling for a single call. Nil fields mean
// "use the backend's default".
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
}

// StreamEventType categorizes one event delivered to a StreamCallback.
type StreamEventType string

const (
	StreamEventToken StreamEventType = "token"
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one unit of a streamed response.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback receives each StreamEvent in generation order. Returning a
// non-nil error aborts the stream.
type StreamCallback func(event StreamEvent) error

// LLMClient is the interface Reasoning depends on. Implementations must be
// safe for concurrent use since the runner may drive multiple sessions at
// once over a shared client.
type LLMClient interface {
	// Chat performs a blocking call and returns the full response.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// ChatStream streams the response token by token via callback. On a
	// transport error, callback receives a StreamEventError event before
	// ChatStream returns the error.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error
}

// Classifier is the narrow interface the Intent node's layer-2 classifier
// depends on: a cheap, low-latency text-to-label call distinct from the
// full Reasoning LLMClient.
type Classifier interface {
	// Classify returns the best-matching label from candidates, and a
	// confidence in [0, 1].
	Classify(ctx context.Context, text string, candidates []string) (label string, confidence float64, err error)
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Emitter writes the wire protocol over an http.ResponseWriter.
// Implementations must be safe for concurrent use; a session's runner and
// its keep-alive ticker may both write.
type Emitter interface {
	Emit(e Event) error
	Close()
}

// sseEmitter implements Emitter for SSE responses in the
// `event: type\ndata: json\n\n` format.
type sseEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	closed  bool
}

// NewSSEEmitter wraps w, which must support http.Flusher. Callers must call
// SetSSEHeaders(w) before the first write.
func NewSSEEmitter(w http.ResponseWriter) (Emitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("events: response writer does not support flushing")
	}
	return &sseEmitter{w: w, flusher: flusher}, nil
}

func (e *sseEmitter) Emit(event Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("events: emit on closed stream")
	}

	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("events: write event: %w", err)
	}
	e.flusher.Flush()
	return nil
}

func (e *sseEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// WriteKeepAlive writes an SSE comment line to prevent proxy/load-balancer
// idle timeouts during long-running node computations.
func WriteKeepAlive(w http.ResponseWriter) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("events: response writer does not support flushing")
	}
	if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
		return fmt.Errorf("events: write keepalive: %w", err)
	}
	flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response headers required for an SSE stream.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ Emitter = (*sseEmitter)(nil)

// RecordingEmitter is an in-memory Emitter used by tests and by the
// non-streaming parts of the runner (e.g. building the final response for
// a request that does not want SSE).
type RecordingEmitter struct {
	mu     sync.Mutex
	Events []Event
}

// NewRecordingEmitter constructs an empty RecordingEmitter.
func NewRecordingEmitter() *RecordingEmitter {
	return &RecordingEmitter{}
}

func (r *RecordingEmitter) Emit(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}

func (r *RecordingEmitter) Close() {}

var _ Emitter = (*RecordingEmitter)(nil)

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrStreamAlreadyConsumed is returned by Claim and Drain once a TokenStream
// has already been claimed by a previous reader.
var ErrStreamAlreadyConsumed = errors.New("state: token stream already consumed")

// streamItem is one unit sent over a TokenStream's internal channel.
type streamItem struct {
	token string
	err   error
}

// TokenStream is a lazy, pull-based, non-restartable sequence of response
// tokens bridging a push/callback-based LLM client to the rest of the
// graph. It is produced once by the Reasoning node and consumed once,
// either by the SSE writer or by a HITL/checkpoint path that drains it into
// a buffered string before suspending.
type TokenStream struct {
	ch       chan streamItem
	consumed atomic.Bool
	cancel   context.CancelFunc
}

// NewTokenStream returns a stream together with the producer's three
// functions: emit feeds a token, fail feeds an error, and closeFn closes the
// stream. emit and fail give up once parent is done or Cancel is called. The
// producer must call closeFn exactly once when it is done.
func NewTokenStream(parent context.Context) (*TokenStream, func(token string), func(err error), func()) {
	ctx, cancel := context.WithCancel(parent)
	ts := &TokenStream{
		ch:     make(chan streamItem, 16),
		cancel: cancel,
	}

	emit := func(token string) {
		select {
		case ts.ch <- streamItem{token: token}:
		case <-ctx.Done():
		}
	}
	fail := func(err error) {
		select {
		case ts.ch <- streamItem{err: err}:
		case <-ctx.Done():
		}
	}
	closeFn := func() {
		close(ts.ch)
	}

	return ts, emit, fail, closeFn
}

// Next returns the next token, or ok=false when the stream is exhausted;
// calling it again after exhaustion keeps returning ok=false with a nil
// error. An error fed by the producer is returned with ok=true. Next does
// not enforce at-most-once use; see Claim.
func (t *TokenStream) Next(ctx context.Context) (string, bool, error) {
	select {
	case item, open := <-t.ch:
		if !open {
			return "", false, nil
		}
		return item.token, true, item.err
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Drain reads every remaining token into a single string, honoring at-most-
// once semantics via Claim. Used when a node must buffer a stream before
// checkpointing (streams themselves are never serialized).
func (t *TokenStream) Drain(ctx context.Context) (string, error) {
	if err := t.Claim(); err != nil {
		return "", err
	}
	var out string
	for {
		tok, ok, err := t.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out += tok
	}
}

// Claim marks the stream as consumed, returning ErrStreamAlreadyConsumed if
// a previous caller already claimed it. Callers that read via Next directly
// (rather than Drain) should call Claim first to enforce at-most-once use.
func (t *TokenStream) Claim() error {
	if !t.consumed.CompareAndSwap(false, true) {
		return ErrStreamAlreadyConsumed
	}
	return nil
}

// Cancel stops the underlying producer, if still running.
func (t *TokenStream) Cancel() {
	t.cancel()
}

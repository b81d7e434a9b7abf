// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/llmclient"
	"github.com/aleutian-ai/coggraph/state"
)

// fakeLLM streams its chunks through ChatStream and concatenates them for
// Chat. A non-nil err aborts the stream after emitted tokens.
type fakeLLM struct {
	chunks   []string
	err      error
	lastSeen []llmclient.Message
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llmclient.Message, params llmclient.GenerationParams) (string, error) {
	f.lastSeen = messages
	if f.err != nil {
		return "", f.err
	}
	var out string
	for _, c := range f.chunks {
		out += c
	}
	return out, nil
}

func (f *fakeLLM) ChatStream(ctx context.Context, messages []llmclient.Message, params llmclient.GenerationParams, callback llmclient.StreamCallback) error {
	f.lastSeen = messages
	for _, c := range f.chunks {
		if err := callback(llmclient.StreamEvent{Type: llmclient.StreamEventToken, Content: c}); err != nil {
			return err
		}
	}
	if f.err != nil {
		_ = callback(llmclient.StreamEvent{Type: llmclient.StreamEventError, Error: f.err.Error()})
		return f.err
	}
	return nil
}

type fakeToolMetadata struct {
	irreversible bool
	idempotent   bool
}

func (f fakeToolMetadata) Metadata(tool string) (bool, bool, bool) {
	return f.irreversible, f.idempotent, true
}

type fakeMemoryStore struct {
	upserts []string
}

func (f *fakeMemoryStore) Query(ctx context.Context, sessionID, text string, topK int) ([]state.MemoryReference, error) {
	return nil, nil
}

func (f *fakeMemoryStore) RecordAccess(ctx context.Context, ids []string) error { return nil }

func (f *fakeMemoryStore) Upsert(ctx context.Context, sessionID, category, summary, content string) (string, error) {
	f.upserts = append(f.upserts, category+":"+summary)
	return "mem-1", nil
}

func newTestReasoning(llm llmclient.LLMClient) *ReasoningNode {
	n := NewReasoningNode(llm, "You are a desktop assistant.", nil, nil, nil)
	n.NewID = func() string { return "req-1" }
	n.Now = fixedClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	return n
}

func textContents(rec *events.RecordingEmitter) []string {
	var out []string
	for _, e := range rec.Events {
		if e.Type == events.TypeText {
			out = append(out, e.Payload.(events.TextPayload).Content)
		}
	}
	return out
}

func TestReasoning_PlainTextStreamsAndAppendsDialogue(t *testing.T) {
	llm := &fakeLLM{chunks: []string{"h", "i", " there"}}
	n := newTestReasoning(llm)
	gs := state.NewGraphState("s1", nil, 0)
	gs.DialogueHistory = []state.DialogueMessage{{Role: state.RoleUser, Content: "hello"}}

	rec := events.NewRecordingEmitter()
	update, err := n.Compute(context.Background(), gs, rec)
	require.NoError(t, err)

	var streamed string
	for _, c := range textContents(rec) {
		streamed += c
	}
	assert.Equal(t, "hi there", streamed)

	require.Len(t, update.AppendDialogue, 1)
	assert.Equal(t, state.RoleAssistant, update.AppendDialogue[0].Role)
	assert.Equal(t, "hi there", update.AppendDialogue[0].Content)
	assert.Nil(t, update.HITLRequest)
	assert.Empty(t, update.SetPendingToolCalls)
}

func TestReasoning_ToolCallControlBlock(t *testing.T) {
	llm := &fakeLLM{chunks: []string{
		"Let me add those.",
		controlSentinel,
		`{"tool_call": {"tool": "math.add", "args": {"a": 2, "b": 3}}}`,
	}}
	n := newTestReasoning(llm)
	n.Tools = fakeToolMetadata{idempotent: true}
	gs := state.NewGraphState("s1", nil, 0)

	rec := events.NewRecordingEmitter()
	update, err := n.Compute(context.Background(), gs, rec)
	require.NoError(t, err)

	require.Len(t, update.SetPendingToolCalls, 1)
	call := update.SetPendingToolCalls[0]
	assert.Equal(t, "math.add", call.Tool)
	assert.True(t, call.Idempotent)
	assert.False(t, call.Irreversible)
	require.NotNil(t, update.Observation)
	assert.Empty(t, *update.Observation)

	// The control block must not leak into the live text stream.
	for _, c := range textContents(rec) {
		assert.NotContains(t, c, "tool_call")
		assert.NotContains(t, c, controlSentinel)
	}
}

func TestReasoning_SentinelSplitAcrossTokens(t *testing.T) {
	llm := &fakeLLM{chunks: []string{"ok", "<<<con", "trol>>>", `{"text": "done"}`}}
	n := newTestReasoning(llm)
	gs := state.NewGraphState("s1", nil, 0)

	rec := events.NewRecordingEmitter()
	update, err := n.Compute(context.Background(), gs, rec)
	require.NoError(t, err)

	var streamed string
	for _, c := range textContents(rec) {
		streamed += c
	}
	assert.Equal(t, "ok", streamed)
	require.Len(t, update.AppendDialogue, 1)
	assert.Equal(t, "ok", update.AppendDialogue[0].Content)
}

func TestReasoning_TrailingJSONWithoutSentinel(t *testing.T) {
	llm := &fakeLLM{chunks: []string{"On it.\n", `{"tool_call": {"tool": "email.send", "args": {"to": "bob@example.com"}}}`}}
	n := newTestReasoning(llm)
	gs := state.NewGraphState("s1", nil, 0)

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	require.Len(t, update.SetPendingToolCalls, 1)
	assert.Equal(t, "email.send", update.SetPendingToolCalls[0].Tool)
	require.Len(t, update.AppendDialogue, 1)
	assert.Equal(t, "On it.", update.AppendDialogue[0].Content)
}

func TestReasoning_MalformedControlBlockDowngradesToText(t *testing.T) {
	llm := &fakeLLM{chunks: []string{"answer", controlSentinel, `{"tool_call": broken`}}
	n := newTestReasoning(llm)
	gs := state.NewGraphState("s1", nil, 0)

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	assert.Empty(t, update.SetPendingToolCalls)
	assert.Nil(t, update.HITLRequest)
	require.Len(t, update.AppendDialogue, 1)
	assert.Contains(t, update.AppendDialogue[0].Content, "answer")
}

func TestReasoning_HITLRequestStoredWithSessionID(t *testing.T) {
	llm := &fakeLLM{chunks: []string{
		controlSentinel,
		`{"hitl_request": {"type": "form", "title": "Confirm send email", "fields": [{"name": "to", "type": "text", "label": "To"}]}}`,
	}}
	n := newTestReasoning(llm)
	gs := state.NewGraphState("s1", nil, 0)

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	require.NotNil(t, update.HITLRequest)
	assert.Equal(t, "s1", update.HITLRequest.SessionID)
	assert.Equal(t, "req-1", update.HITLRequest.ID)
	assert.Equal(t, state.HITLForm, update.HITLRequest.Type)
}

func TestReasoning_HITLChainOverflowDropsRequest(t *testing.T) {
	llm := &fakeLLM{chunks: []string{
		controlSentinel,
		`{"hitl_request": {"type": "form", "title": "One more thing"}}`,
	}}
	n := newTestReasoning(llm)
	n.MaxHITLChainDepth = 2
	gs := state.NewGraphState("s1", nil, 0)
	gs.HITLChainDepth = 2

	rec := events.NewRecordingEmitter()
	update, err := n.Compute(context.Background(), gs, rec)
	require.NoError(t, err)
	assert.Nil(t, update.HITLRequest)

	contents := textContents(rec)
	require.NotEmpty(t, contents, "expected a warning text event")
	assert.Contains(t, contents[len(contents)-1], "skipped")
}

func TestReasoning_MemoryUpdatePersisted(t *testing.T) {
	llm := &fakeLLM{chunks: []string{
		"Saved.",
		controlSentinel,
		`{"memory_update": {"category": "plan", "summary": "meeting at 3pm", "content": "Meeting tomorrow 3pm with Bob"}}`,
	}}
	n := newTestReasoning(llm)
	store := &fakeMemoryStore{}
	n.Memory = store
	gs := state.NewGraphState("s1", nil, 0)

	_, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, "plan:meeting at 3pm", store.upserts[0])
}

func TestReasoning_TransportErrorSurfaced(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection refused")}
	n := newTestReasoning(llm)
	gs := state.NewGraphState("s1", nil, 0)

	_, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.Error(t, err)
	var transport *LLMTransportError
	assert.ErrorAs(t, err, &transport)
}

func TestReasoning_ConsequenceBlockSurfacedOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := contract.NewContract("exec-1", contract.ContractToolCall, contract.ActionDetail{Service: "tool", Method: "email.send"}, true, "", now)
	require.NoError(t, contract.Transition(c, contract.TriggerStart, "tool_node", contract.ActorSystem, nil, nil, "", now))
	require.NoError(t, contract.Transition(c, contract.TriggerSucceed, "tool_node", contract.ActorSystem, nil, "sent", "", now))

	llm := &fakeLLM{chunks: []string{"Email is on its way."}}
	n := newTestReasoning(llm)
	gs := state.NewGraphState("s1", nil, 0)
	gs.CompletedExecutions = []*contract.ExecutionContract{c}

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-1"}, update.MarkSurfaced)

	sys := llm.lastSeen[0].Content
	assert.Contains(t, sys, "[SUCCESS ⚠️ IRREVERSIBLE] tool.email.send")
	assert.Contains(t, sys, irreversibleWarning)

	// Once surfaced, the same consequence must not be injected again.
	gs = gs.Merge(update)
	update2, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	assert.Empty(t, update2.MarkSurfaced)
	assert.NotContains(t, llm.lastSeen[0].Content, "IRREVERSIBLE")
}

func TestReasoning_IntentSnippetSelection(t *testing.T) {
	llm := &fakeLLM{chunks: []string{"ok"}}
	n := newTestReasoning(llm)
	gs := state.NewGraphState("s1", nil, 0)
	gs.IntentResult = &state.IntentResult{Category: "mcp", IntentType: "mcp_tool", Confidence: 1, Source: state.IntentSourceLayer1}

	_, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	assert.Contains(t, llm.lastSeen[0].Content, "maps to an external tool")

	// A normal intent gets the full backward-compatible instruction.
	gs.IntentResult = &state.IntentResult{Category: "normal", IntentType: "normal", Source: state.IntentSourceFallback}
	_, err = n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	assert.Contains(t, llm.lastSeen[0].Content, "memory_update")
}

func TestSplitControl_TableCases(t *testing.T) {
	cases := []struct {
		name        string
		in          string
		wantVisible string
		wantControl bool
	}{
		{"plain text", "just words", "just words", false},
		{"sentinel with block", "hi" + controlSentinel + `{"text":"x"}`, "hi", true},
		{"trailing object", "hi {\"text\":\"x\"}", "hi", true},
		{"trailing object unknown fields", `hi {"weather":"sunny"}`, `hi {"weather":"sunny"}`, false},
		{"braces in string", `done {"text":"a } b"}`, "done", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			visible, control := splitControl(tc.in)
			assert.Equal(t, tc.wantVisible, visible)
			assert.Equal(t, tc.wantControl, control != nil)
		})
	}
}

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/state"
)

type fakeOCR struct {
	text string
	err  error
}

func (f fakeOCR) ExtractText(ctx context.Context, image []byte) (string, error) {
	return f.text, f.err
}

func imageState(action state.ImageAction) state.GraphState {
	gs := state.NewGraphState("s1", nil, 0)
	gs.SemanticInput = state.SemanticInput{
		Images:      [][]byte{{0x89, 0x50}},
		ImageAction: action,
	}
	return gs
}

func TestImageNode_ExtractsTextAndEmits(t *testing.T) {
	n := NewImageNode(fakeOCR{text: "Meeting tomorrow 3pm with Bob"}, nil)
	gs := imageState(state.ImageActionAnalyzeForMemory)

	rec := events.NewRecordingEmitter()
	update, err := n.Compute(context.Background(), gs, rec)
	require.NoError(t, err)

	require.NotNil(t, update.SemanticInput)
	assert.Equal(t, "Meeting tomorrow 3pm with Bob", update.SemanticInput.Text)
	assert.Equal(t, state.ImageActionAnalyzeForMemory, update.SemanticInput.ImageAction)

	require.Len(t, rec.Events, 1)
	assert.Equal(t, events.TypeText, rec.Events[0].Type)
	assert.Equal(t, "Meeting tomorrow 3pm with Bob", rec.Events[0].Payload.(events.TextPayload).Content)
}

func TestImageNode_EmptyOCREmitsNoTextFound(t *testing.T) {
	n := NewImageNode(fakeOCR{text: "  "}, nil)
	gs := imageState(state.ImageActionAnalyzeForMemory)

	rec := events.NewRecordingEmitter()
	update, err := n.Compute(context.Background(), gs, rec)
	require.NoError(t, err)
	assert.Empty(t, update.SemanticInput.Text)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, noTextFound, rec.Events[0].Payload.(events.TextPayload).Content)
}

func TestImageNode_OCRFailureDegradesToNoText(t *testing.T) {
	n := NewImageNode(fakeOCR{err: errors.New("vision backend down")}, nil)
	gs := imageState(state.ImageActionAnalyzeOnly)

	rec := events.NewRecordingEmitter()
	update, err := n.Compute(context.Background(), gs, rec)
	require.NoError(t, err)
	assert.Empty(t, update.SemanticInput.Text)
	assert.Equal(t, noTextFound, rec.Events[0].Payload.(events.TextPayload).Content)
}

func TestMemoryExtraction_BuildsSavePlanForm(t *testing.T) {
	n := NewMemoryExtractionNode(nil)
	n.NewID = func() string { return "req-1" }
	gs := imageState(state.ImageActionAnalyzeForMemory)
	gs.SemanticInput.Text = "Meeting tomorrow 3pm with Bob"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)

	req := update.HITLRequest
	require.NotNil(t, req)
	assert.Equal(t, state.HITLForm, req.Type)
	assert.Equal(t, "Save plan", req.Title)
	assert.Equal(t, "s1", req.SessionID)

	byName := map[string]state.HITLField{}
	for _, f := range req.Fields {
		byName[f.Name] = f
	}
	for _, want := range []string{"target_time", "location", "participants", "key", "value"} {
		_, ok := byName[want]
		assert.True(t, ok, "missing field %s", want)
	}
	assert.Equal(t, "tomorrow", byName["target_time"].Default)
	assert.Equal(t, "Bob", byName["participants"].Default)
	assert.Equal(t, "Meeting tomorrow 3pm with Bob", byName["value"].Default)
}

func TestMemoryExtraction_NoTextIsNoOp(t *testing.T) {
	n := NewMemoryExtractionNode(nil)
	gs := imageState(state.ImageActionAnalyzeForMemory)
	gs.SemanticInput.Text = ""

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	assert.Nil(t, update.HITLRequest)
}

func TestMemoryExtraction_AnalyzeOnlySkipsForm(t *testing.T) {
	n := NewMemoryExtractionNode(nil)
	gs := imageState(state.ImageActionAnalyzeOnly)
	gs.SemanticInput.Text = "Meeting tomorrow 3pm with Bob"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	require.NoError(t, err)
	assert.Nil(t, update.HITLRequest)
}

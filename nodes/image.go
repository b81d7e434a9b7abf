// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/state"
)

// noTextFound is the text event emitted when OCR produces nothing.
const noTextFound = "(no text found)"

// OCRProvider extracts text from an image. Vision/OCR backends are external
// collaborators; the Image node depends only on this interface.
type OCRProvider interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// ImageNode is the optional image entry point: it OCRs the first attached
// image and feeds the extracted text back into the pipeline as
// semantic_input.text.
type ImageNode struct {
	OCR    OCRProvider
	Logger *slog.Logger
}

// NewImageNode constructs an ImageNode.
func NewImageNode(ocr OCRProvider, logger *slog.Logger) *ImageNode {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageNode{OCR: ocr, Logger: logger}
}

func (n *ImageNode) Name() string { return "image" }

func (n *ImageNode) Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error) {
	text := ""
	if n.OCR != nil && len(gs.SemanticInput.Images) > 0 {
		extracted, err := n.OCR.ExtractText(ctx, gs.SemanticInput.Images[0])
		if err != nil {
			n.Logger.Warn("image: ocr failed",
				slog.String("session_id", gs.SessionID), slog.Any("error", err))
		} else {
			text = strings.TrimSpace(extracted)
		}
	}

	emitted := text
	if emitted == "" {
		emitted = noTextFound
	}
	if emit != nil {
		_ = emit.Emit(events.NewTextEvent(emitted))
	}

	si := gs.SemanticInput
	si.Text = text
	return state.StateUpdate{SemanticInput: &si}, nil
}

// timeHint matches date/time phrases worth pre-filling into the plan form.
var timeHint = regexp.MustCompile(`(?i)\b(today|tomorrow|tonight|monday|tuesday|wednesday|thursday|friday|saturday|sunday|\d{1,2}(:\d{2})?\s*(am|pm)|\d{1,2}月\d{1,2}日)\b`)

// participantHint matches "with <Name>" phrases.
var participantHint = regexp.MustCompile(`(?i)\bwith\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)

// locationHint matches "at/in <Place>" phrases.
var locationHint = regexp.MustCompile(`(?i)\b(?:at|in)\s+(?:the\s+)?([A-Z][A-Za-z ]{2,30})`)

// MemoryExtractionNode turns OCR'd text into a "Save plan" form request so
// the user confirms before anything is written to long-term memory. With no
// usable text, or when the caller only wanted analysis, it is a no-op and
// the run completes with just the OCR text event.
type MemoryExtractionNode struct {
	NewID  func() string
	Logger *slog.Logger
}

// NewMemoryExtractionNode constructs a MemoryExtractionNode.
func NewMemoryExtractionNode(logger *slog.Logger) *MemoryExtractionNode {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryExtractionNode{NewID: uuid.NewString, Logger: logger}
}

func (n *MemoryExtractionNode) Name() string { return "memory_extraction" }

func (n *MemoryExtractionNode) Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error) {
	text := strings.TrimSpace(gs.SemanticInput.Text)
	if text == "" || gs.SemanticInput.ImageAction != state.ImageActionAnalyzeForMemory {
		return state.StateUpdate{}, nil
	}

	req := &state.HITLRequest{
		ID:          n.NewID(),
		Type:        state.HITLForm,
		Title:       "Save plan",
		Description: "Review the details extracted from the image before saving.",
		SessionID:   gs.SessionID,
		Fields: []state.HITLField{
			{Name: "target_time", Type: state.FieldText, Label: "When", Default: firstMatch(timeHint, text)},
			{Name: "location", Type: state.FieldText, Label: "Where", Default: firstGroup(locationHint, text)},
			{Name: "participants", Type: state.FieldText, Label: "Who", Default: firstGroup(participantHint, text)},
			{Name: "key", Type: state.FieldText, Label: "Plan name", Required: true, Default: "plan"},
			{Name: "value", Type: state.FieldTextarea, Label: "Details", Required: true, Default: text},
		},
	}

	return state.StateUpdate{HITLRequest: req}, nil
}

func firstMatch(re *regexp.Regexp, text string) string {
	return re.FindString(text)
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

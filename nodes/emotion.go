// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"strings"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/state"
)

// EmotionDetector produces a user-emotion classification from the current
// message and recent dialogue history. Implementations may be a keyword
// rule table (DefaultEmotionDetector), a sentiment model, or an LLM call.
type EmotionDetector interface {
	Detect(ctx context.Context, text string, history []state.DialogueMessage) (emotion string, confidence float64, modulation string, err error)
}

// EmotionNode detects the user's emotion and emits a modulation
// instruction for Reasoning's prompt.
type EmotionNode struct {
	Detector EmotionDetector
}

// NewEmotionNode constructs an EmotionNode. A nil detector falls back to
// DefaultEmotionDetector.
func NewEmotionNode(detector EmotionDetector) *EmotionNode {
	if detector == nil {
		detector = DefaultEmotionDetector{}
	}
	return &EmotionNode{Detector: detector}
}

func (n *EmotionNode) Name() string { return "emotion" }

func (n *EmotionNode) Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error) {
	emotion, confidence, modulation, err := n.Detector.Detect(ctx, gs.SemanticInput.Text, gs.DialogueHistory)
	if err != nil {
		emotion, confidence, modulation = "neutral", 0, ""
	}

	ec := &state.EmotionalContext{
		CurrentEmotion:         emotion,
		Confidence:             confidence,
		ModulationInstruction: modulation,
	}

	if emit != nil {
		_ = emit.Emit(events.NewEmotionEvent(*ec))
	}

	return state.StateUpdate{EmotionalContext: ec}, nil
}

// emotionKeywordRule is one entry in DefaultEmotionDetector's table.
type emotionKeywordRule struct {
	emotion    string
	modulation string
	keywords   []string
}

var defaultEmotionRules = []emotionKeywordRule{
	{
		emotion:    "frustrated",
		modulation: "The user seems frustrated; be concise, acknowledge the friction, and avoid padding the response with caveats.",
		keywords:   []string{"ugh", "annoying", "frustrat", "stupid", "doesn't work", "not working", "broken"},
	},
	{
		emotion:    "angry",
		modulation: "The user seems angry; stay calm, apologize for any mistake plainly, and get to the point.",
		keywords:   []string{"angry", "furious", "unacceptable", "ridiculous"},
	},
	{
		emotion:    "sad",
		modulation: "The user seems down; respond with warmth before getting to the substance.",
		keywords:   []string{"sad", "depressed", "lonely", "crying"},
	},
	{
		emotion:    "happy",
		modulation: "The user seems upbeat; match their energy without overdoing it.",
		keywords:   []string{"awesome", "great news", "excited", "yay", "love this"},
	},
	{
		emotion:    "confused",
		modulation: "The user seems confused; slow down, define terms, and check understanding before moving on.",
		keywords:   []string{"confused", "don't understand", "what do you mean", "i'm lost"},
	},
}

// DefaultEmotionDetector is a keyword rule table over the current message,
// falling back to a neutral classification with no modulation.
type DefaultEmotionDetector struct{}

func (DefaultEmotionDetector) Detect(ctx context.Context, text string, history []state.DialogueMessage) (string, float64, string, error) {
	lower := strings.ToLower(text)
	for _, rule := range defaultEmotionRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.emotion, 0.7, rule.modulation, nil
			}
		}
	}
	return "neutral", 0.0, "", nil
}

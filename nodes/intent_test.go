// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"testing"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/state"
)

type fakeIntentSettings struct {
	enabled bool
	layer2  bool
}

func (s fakeIntentSettings) IntentRecognitionEnabled() bool { return s.enabled }
func (s fakeIntentSettings) Layer2Enabled() bool            { return s.layer2 }

type fakeClassifier struct {
	label      string
	confidence float64
	err        error
}

func (c fakeClassifier) Classify(ctx context.Context, text string, candidates []string) (string, float64, error) {
	return c.label, c.confidence, c.err
}

func TestIntentNode_DisabledReturnsNoUpdate(t *testing.T) {
	n := NewIntentNode(nil, nil, fakeIntentSettings{enabled: false})
	gs := state.NewGraphState("s1", nil, 0)
	gs.SemanticInput.Text = "add a reminder"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if update.IntentResult != nil {
		t.Fatalf("expected no intent result when disabled, got %+v", update.IntentResult)
	}
}

func TestIntentNode_Layer1Match(t *testing.T) {
	rules := []IntentRule{
		{Category: "tool", IntentType: "math", MatchedRule: "math-add", Keywords: []string{"add"}},
	}
	n := NewIntentNode(rules, nil, fakeIntentSettings{enabled: true})
	gs := state.NewGraphState("s1", nil, 0)
	gs.SemanticInput.Text = "please add 2 and 3"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if update.IntentResult == nil || update.IntentResult.Source != state.IntentSourceLayer1 {
		t.Fatalf("expected layer1 match, got %+v", update.IntentResult)
	}
	if update.IntentResult.MatchedRule != "math-add" {
		t.Fatalf("expected matched_rule math-add, got %q", update.IntentResult.MatchedRule)
	}
}

func TestIntentNode_Layer2AcceptsAboveThreshold(t *testing.T) {
	rules := []IntentRule{{Category: "tool", IntentType: "math"}}
	n := NewIntentNode(rules, fakeClassifier{label: "tool:math", confidence: 0.9}, fakeIntentSettings{enabled: true, layer2: true})
	gs := state.NewGraphState("s1", nil, 0)
	gs.SemanticInput.Text = "could you compute this for me"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if update.IntentResult == nil || update.IntentResult.Source != state.IntentSourceLayer2 {
		t.Fatalf("expected layer2 result, got %+v", update.IntentResult)
	}
	if update.IntentResult.Category != "tool" || update.IntentResult.IntentType != "math" {
		t.Fatalf("expected split label tool/math, got %+v", update.IntentResult)
	}
}

func TestIntentNode_Layer2BelowThresholdFallsBack(t *testing.T) {
	rules := []IntentRule{{Category: "tool", IntentType: "math"}}
	n := NewIntentNode(rules, fakeClassifier{label: "tool:math", confidence: 0.5}, fakeIntentSettings{enabled: true, layer2: true})
	gs := state.NewGraphState("s1", nil, 0)
	gs.SemanticInput.Text = "hello there"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if update.IntentResult == nil || update.IntentResult.Source != state.IntentSourceFallback {
		t.Fatalf("expected fallback, got %+v", update.IntentResult)
	}
	if update.IntentResult.Category != "normal" {
		t.Fatalf("expected normal category, got %q", update.IntentResult.Category)
	}
}

func TestIntentNode_NoRulesNoClassifierFallsBack(t *testing.T) {
	n := NewIntentNode(nil, nil, fakeIntentSettings{enabled: true})
	gs := state.NewGraphState("s1", nil, 0)
	gs.SemanticInput.Text = "hi"

	update, err := n.Compute(context.Background(), gs, events.NewRecordingEmitter())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if update.IntentResult.Source != state.IntentSourceFallback {
		t.Fatalf("expected fallback, got %+v", update.IntentResult)
	}
}

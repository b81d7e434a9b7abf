// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"regexp"
	"strings"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/llmclient"
	"github.com/aleutian-ai/coggraph/state"
)

// layer2AcceptThreshold is the minimum classifier confidence Layer 2 must
// clear for its result to be accepted.
const layer2AcceptThreshold = 0.7

// IntentSettings is the subset of process settings the Intent node reads.
type IntentSettings interface {
	IntentRecognitionEnabled() bool
	Layer2Enabled() bool
}

// IntentRule is one entry of the Layer 1 prioritized rule list. A rule
// matches if Pattern is set and matches the lowercased text, or if any
// Keyword is a substring of it. Rules are evaluated in slice order; the
// first match wins.
type IntentRule struct {
	Category    string
	IntentType  string
	MatchedRule string
	MCPService  string
	Keywords    []string
	Pattern     *regexp.Regexp
}

func (r IntentRule) matches(lowerText string) bool {
	if r.Pattern != nil && r.Pattern.MatchString(lowerText) {
		return true
	}
	for _, kw := range r.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// IntentNode is the two-layer (rule -> LLM) intent classifier.
type IntentNode struct {
	Rules      []IntentRule
	Classifier llmclient.Classifier
	Settings   IntentSettings
}

// NewIntentNode constructs an IntentNode. classifier may be nil, in which
// case Layer 2 is skipped regardless of settings.
func NewIntentNode(rules []IntentRule, classifier llmclient.Classifier, settings IntentSettings) *IntentNode {
	return &IntentNode{Rules: rules, Classifier: classifier, Settings: settings}
}

func (n *IntentNode) Name() string { return "intent" }

func (n *IntentNode) Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error) {
	if n.Settings == nil || !n.Settings.IntentRecognitionEnabled() {
		return state.StateUpdate{}, nil
	}

	text := strings.ToLower(gs.SemanticInput.Text)

	for _, rule := range n.Rules {
		if rule.matches(text) {
			return state.StateUpdate{IntentResult: &state.IntentResult{
				Category:    rule.Category,
				IntentType:  rule.IntentType,
				Confidence:  1.0,
				Source:      state.IntentSourceLayer1,
				MatchedRule: rule.MatchedRule,
				MCPService:  rule.MCPService,
			}}, nil
		}
	}

	if n.Settings.Layer2Enabled() && n.Classifier != nil {
		candidates := n.candidateLabels()
		if len(candidates) > 0 {
			label, confidence, err := n.Classifier.Classify(ctx, gs.SemanticInput.Text, candidates)
			if err == nil && label != "" && confidence >= layer2AcceptThreshold {
				category, intentType := splitLabel(label)
				return state.StateUpdate{IntentResult: &state.IntentResult{
					Category:   category,
					IntentType: intentType,
					Confidence: confidence,
					Source:     state.IntentSourceLayer2,
				}}, nil
			}
		}
	}

	return state.StateUpdate{IntentResult: &state.IntentResult{
		Category:   "normal",
		IntentType: "normal",
		Confidence: 0,
		Source:     state.IntentSourceFallback,
	}}, nil
}

// candidateLabels derives the Layer 2 classifier's candidate set from the
// distinct category:intent_type pairs named by the rule list, so a
// lightweight classifier can pick among the same intents Layer 1 knows
// about.
func (n *IntentNode) candidateLabels() []string {
	seen := make(map[string]bool)
	var out []string
	for _, rule := range n.Rules {
		label := rule.Category + ":" + rule.IntentType
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	return out
}

func splitLabel(label string) (category, intentType string) {
	parts := strings.SplitN(label, ":", 2)
	if len(parts) != 2 {
		return label, label
	}
	return parts[0], parts[1]
}

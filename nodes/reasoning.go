// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/llmclient"
	"github.com/aleutian-ai/coggraph/memory"
	"github.com/aleutian-ai/coggraph/observer"
	"github.com/aleutian-ai/coggraph/state"
)

// defaultMaxHITLChainDepth caps nested HITL requests per run.
const defaultMaxHITLChainDepth = 5

// controlSentinel is the marker the model is instructed to emit between its
// conversational text and the trailing JSON control block. Tokens after the
// sentinel are withheld from the live text stream and parsed instead.
const controlSentinel = "<<<control>>>"

// hitlMCPInstruction is the full backward-compatible instruction injected
// when no specific intent snippet applies.
const hitlMCPInstruction = `You may end your reply with the marker ` + controlSentinel + ` followed by a single JSON object with any of these optional fields:
  "text": a final message when you have nothing conversational to stream,
  "tool_call": {"tool": "<service.method>", "args": {...}} to invoke an external tool,
  "hitl_request": a form or visual_display request when you need the user's confirmation or want to show structured content,
  "memory_update": {"category": ..., "summary": ..., "content": ...} to save a long-term memory.
Emit the marker and JSON only when one of these actions is needed; otherwise reply in plain text.`

// defaultIntentSnippets maps a non-normal intent_type to the short prompt
// snippet injected in place of the full instruction.
var defaultIntentSnippets = map[string]string{
	"plan_reminder": `The user is asking about plans or reminders. If a plan should be saved, end with ` + controlSentinel + ` and a JSON object carrying a "memory_update" field.`,
	"mcp_tool":      `The user's request maps to an external tool. End with ` + controlSentinel + ` and a JSON object carrying a "tool_call" field: {"tool": "<service.method>", "args": {...}}.`,
	"hitl":          `This action needs the user's confirmation first. End with ` + controlSentinel + ` and a JSON object carrying an "hitl_request" field (a form with the values to confirm).`,
}

// irreversibleWarning is appended to consequence lines for completed
// irreversible actions.
const irreversibleWarning = "This action had irreversible side effects; do not attempt to repeat or undo it."

// ToolMetadata resolves execution flags for a tool name parsed out of the
// LLM control block. The Tool node relies on these flags for idempotency
// keys and side-effect tracking, so Reasoning stamps them on the request.
type ToolMetadata interface {
	Metadata(tool string) (irreversible bool, idempotent bool, ok bool)
}

// ReasoningOutput is the discriminated union the model emits as its JSON
// control block. All fields
// are optional; an output with none set is not a control block at all.
type ReasoningOutput struct {
	Text         string                 `json:"text,omitempty"`
	ToolCall     *ToolCallDirective     `json:"tool_call,omitempty"`
	HITLRequest  *state.HITLRequest     `json:"hitl_request,omitempty"`
	MemoryUpdate *MemoryUpdateDirective `json:"memory_update,omitempty"`
}

func (o *ReasoningOutput) empty() bool {
	return o.Text == "" && o.ToolCall == nil && o.HITLRequest == nil && o.MemoryUpdate == nil
}

// ToolCallDirective is the tool_call variant.
type ToolCallDirective struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// MemoryUpdateDirective is the memory_update variant.
type MemoryUpdateDirective struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
	Content  string `json:"content"`
}

// ReasoningNode builds the prompt, drives the streaming LLM call, and parses
// the structured control block into routing state.
type ReasoningNode struct {
	Client       llmclient.LLMClient
	Params       llmclient.GenerationParams
	SystemPrompt string

	// Tools resolves irreversible/idempotent flags for parsed tool calls.
	// Nil means every tool defaults to reversible and non-idempotent.
	Tools ToolMetadata

	// Memory receives memory_update directives. Nil drops them with a log.
	Memory memory.LongTermStore

	// IntentSnippets overrides defaultIntentSnippets when non-nil.
	IntentSnippets map[string]string

	// MaxHITLChainDepth caps HITL nesting; zero means the default of 5.
	MaxHITLChainDepth int

	// HistoryWindow bounds how many recent dialogue messages enter the
	// prompt; zero means all.
	HistoryWindow int

	// Streaming selects ChatStream (true) or the blocking Chat fallback.
	Streaming bool

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// NewReasoningNode constructs a ReasoningNode with streaming enabled and
// sensible defaults for the optional fields.
func NewReasoningNode(client llmclient.LLMClient, systemPrompt string, tools ToolMetadata, mem memory.LongTermStore, logger *slog.Logger) *ReasoningNode {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReasoningNode{
		Client:       client,
		SystemPrompt: systemPrompt,
		Tools:        tools,
		Memory:       mem,
		Streaming:    true,
		Logger:       logger,
		Now:          time.Now,
		NewID:        uuid.NewString,
	}
}

func (n *ReasoningNode) Name() string { return "reasoning" }

func (n *ReasoningNode) Compute(ctx context.Context, gs state.GraphState, emit events.Emitter) (state.StateUpdate, error) {
	messages, surfacedIDs := n.buildMessages(gs)

	full, err := n.generate(ctx, messages, emit)
	if err != nil {
		return state.StateUpdate{}, &LLMTransportError{Err: err}
	}

	visible, control := splitControl(full)
	if control == nil {
		n.Logger.Debug("reasoning: no control block", slog.String("session_id", gs.SessionID))
		control = &ReasoningOutput{}
	}

	update := state.StateUpdate{MarkSurfaced: surfacedIDs}

	assistantText := visible
	if assistantText == "" && control.Text != "" {
		assistantText = control.Text
		n.emitText(emit, control.Text)
	}
	if assistantText != "" {
		update.AppendDialogue = []state.DialogueMessage{{
			Role:      state.RoleAssistant,
			Content:   assistantText,
			Timestamp: n.Now(),
		}}
	}

	if control.ToolCall != nil && control.ToolCall.Tool != "" {
		irreversible, idempotent := false, false
		if n.Tools != nil {
			if ir, id, ok := n.Tools.Metadata(control.ToolCall.Tool); ok {
				irreversible, idempotent = ir, id
			}
		}
		pending := append(append([]state.ToolCallRequest(nil), gs.PendingToolCalls...), state.ToolCallRequest{
			Tool:         control.ToolCall.Tool,
			Arguments:    control.ToolCall.Args,
			Irreversible: irreversible,
			Idempotent:   idempotent,
		})
		update.SetPendingToolCalls = pending
		empty := ""
		update.Observation = &empty
	}

	if control.HITLRequest != nil {
		maxDepth := n.MaxHITLChainDepth
		if maxDepth <= 0 {
			maxDepth = defaultMaxHITLChainDepth
		}
		if gs.HITLChainDepth >= maxDepth {
			warning := fmt.Sprintf("(a further confirmation step was skipped: this conversation already paused for input %d times)", gs.HITLChainDepth)
			n.Logger.Warn("reasoning: hitl chain depth exceeded, dropping request",
				slog.String("session_id", gs.SessionID),
				slog.Int("depth", gs.HITLChainDepth),
				slog.String("title", control.HITLRequest.Title))
			n.emitText(emit, warning)
			update.AppendDialogue = append(update.AppendDialogue, state.DialogueMessage{
				Role:      state.RoleAssistant,
				Content:   warning,
				Timestamp: n.Now(),
			})
		} else {
			req := *control.HITLRequest
			if req.ID == "" {
				req.ID = n.NewID()
			}
			req.SessionID = gs.SessionID
			update.HITLRequest = &req
		}
	}

	if control.MemoryUpdate != nil {
		n.persistMemoryUpdate(ctx, gs.SessionID, control.MemoryUpdate)
	}

	return update, nil
}

// generate calls the LLM, forwarding text tokens live and returning the full
// accumulated output. In streaming mode the control block (everything after
// the sentinel) is withheld from the emitted tokens.
func (n *ReasoningNode) generate(ctx context.Context, messages []llmclient.Message, emit events.Emitter) (string, error) {
	if n.Client == nil {
		return "", fmt.Errorf("nodes: no llm client configured")
	}
	if !n.Streaming {
		full, err := n.Client.Chat(ctx, messages, n.Params)
		if err != nil {
			return "", err
		}
		visible, _ := splitControl(full)
		if visible != "" {
			n.emitText(emit, visible)
		}
		return full, nil
	}

	ts := llmclient.StartChatStream(ctx, n.Client, messages, n.Params)
	if err := ts.Claim(); err != nil {
		return "", err
	}

	var full strings.Builder
	filter := newSentinelFilter(controlSentinel)
	for {
		tok, ok, err := ts.Next(ctx)
		if err != nil {
			ts.Cancel()
			return full.String(), err
		}
		if !ok {
			break
		}
		full.WriteString(tok)
		for _, out := range filter.push(tok) {
			n.emitText(emit, out)
		}
	}
	if tail := filter.flush(); tail != "" {
		n.emitText(emit, tail)
	}
	return full.String(), nil
}

func (n *ReasoningNode) emitText(emit events.Emitter, content string) {
	if emit == nil || content == "" {
		return
	}
	_ = emit.Emit(events.NewTextEvent(content))
}

func (n *ReasoningNode) persistMemoryUpdate(ctx context.Context, sessionID string, mu *MemoryUpdateDirective) {
	if n.Memory == nil {
		n.Logger.Warn("reasoning: dropping memory_update, no store configured",
			slog.String("session_id", sessionID))
		return
	}
	if _, err := n.Memory.Upsert(ctx, sessionID, mu.Category, mu.Summary, mu.Content); err != nil {
		n.Logger.Warn("reasoning: memory_update upsert failed",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

// buildMessages performs the deterministic prompt assembly and
// returns the execution ids whose consequence views were included, so the
// caller can mark them surfaced.
func (n *ReasoningNode) buildMessages(gs state.GraphState) ([]llmclient.Message, []string) {
	var sys strings.Builder
	sys.WriteString(n.SystemPrompt)

	if gs.WorkingMemory.Summary != "" {
		sys.WriteString("\n\nWorking memory: ")
		sys.WriteString(gs.WorkingMemory.Summary)
	}

	if len(gs.WorkingMemory.RetrievedMemories) > 0 {
		sys.WriteString("\n\nRelevant memories:")
		for _, m := range gs.WorkingMemory.RetrievedMemories {
			sys.WriteString("\n- [" + m.Category + "] " + m.Summary)
		}
	}

	if gs.EmotionalContext.ModulationInstruction != "" {
		sys.WriteString("\n\n")
		sys.WriteString(gs.EmotionalContext.ModulationInstruction)
	}

	sys.WriteString("\n\n")
	sys.WriteString(n.intentSnippet(gs.IntentResult))

	surfaced := n.appendConsequenceBlock(&sys, gs)

	messages := []llmclient.Message{{Role: "system", Content: sys.String()}}

	history := gs.DialogueHistory
	if n.HistoryWindow > 0 && len(history) > n.HistoryWindow {
		history = history[len(history)-n.HistoryWindow:]
	}
	for _, msg := range history {
		messages = append(messages, llmclient.Message{Role: string(msg.Role), Content: msg.Content})
	}

	return messages, surfaced
}

func (n *ReasoningNode) intentSnippet(intent *state.IntentResult) string {
	if intent.IsNormal() {
		return hitlMCPInstruction
	}
	snippets := n.IntentSnippets
	if snippets == nil {
		snippets = defaultIntentSnippets
	}
	if s, ok := snippets[intent.IntentType]; ok {
		return s
	}
	return hitlMCPInstruction
}

// appendConsequenceBlock adds one line per not-yet-surfaced completed
// execution, using consequence views only; Reasoning never reads raw
// contract status/result fields.
func (n *ReasoningNode) appendConsequenceBlock(sys *strings.Builder, gs state.GraphState) []string {
	var surfaced []string
	views := observer.ConsequenceViews(gs.CompletedExecutions)
	for _, v := range views {
		if gs.SurfacedConsequences[v.ExecutionID] {
			continue
		}
		surfaced = append(surfaced, v.ExecutionID)

		outcome := v.ErrorMessage
		if v.ConsequenceLabel == observer.ConsequenceSuccess {
			outcome = fmt.Sprintf("%v", v.Result)
		}
		marker := string(v.ConsequenceLabel)
		if v.HasSideEffects {
			marker += " ⚠️ IRREVERSIBLE"
		}
		sys.WriteString(fmt.Sprintf("\n[%s] %s: %s", marker, v.ActionSummary, outcome))
		if v.WasSuspended {
			sys.WriteString(" (the user was consulted before this ran)")
		}
		if v.HasSideEffects {
			sys.WriteString(" " + irreversibleWarning)
		}
	}
	if len(surfaced) > 0 {
		sys.WriteString("\n")
	}
	return surfaced
}

// splitControl separates an LLM output into its visible text and, when
// present, the parsed control block. Parsing is tolerant: sentinel first,
// then a trailing balanced JSON object, else the whole output is plain text
// (MalformedLLMOutput is downgraded, never raised).
func splitControl(full string) (visible string, control *ReasoningOutput) {
	if idx := strings.Index(full, controlSentinel); idx >= 0 {
		visible = strings.TrimSpace(full[:idx])
		raw := strings.TrimSpace(full[idx+len(controlSentinel):])
		if out := parseControlJSON(raw); out != nil {
			return visible, out
		}
		// Sentinel present but block unparseable: surface everything except
		// the sentinel itself as text.
		return strings.TrimSpace(strings.Replace(full, controlSentinel, "", 1)), nil
	}

	start, end, ok := trailingJSONObject(full)
	if ok {
		if out := parseControlJSON(full[start:end]); out != nil {
			return strings.TrimSpace(full[:start]), out
		}
	}
	return strings.TrimSpace(full), nil
}

func parseControlJSON(raw string) *ReasoningOutput {
	var out ReasoningOutput
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	if out.empty() {
		return nil
	}
	return &out
}

// trailingJSONObject locates a balanced {...} block at the end of text,
// scanning backwards from the final '}' and tolerating braces inside JSON
// strings.
func trailingJSONObject(text string) (start, end int, ok bool) {
	trimmed := strings.TrimRight(text, " \t\r\n")
	if len(trimmed) == 0 || trimmed[len(trimmed)-1] != '}' {
		return 0, 0, false
	}
	end = len(trimmed)

	depth := 0
	inString := false
	for i := end - 1; i >= 0; i-- {
		c := trimmed[i]
		if inString {
			if c == '"' && (i == 0 || trimmed[i-1] != '\\') {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return i, end, true
			}
		}
	}
	return 0, 0, false
}

// sentinelFilter withholds the control sentinel and everything after it from
// a live token stream, while holding back just enough of the tail that a
// sentinel split across tokens is still caught.
type sentinelFilter struct {
	sentinel  string
	pending   string
	suppress  bool
}

func newSentinelFilter(sentinel string) *sentinelFilter {
	return &sentinelFilter{sentinel: sentinel}
}

// push adds a token and returns the chunks safe to forward now.
func (f *sentinelFilter) push(token string) []string {
	if f.suppress {
		return nil
	}
	f.pending += token
	if idx := strings.Index(f.pending, f.sentinel); idx >= 0 {
		out := f.pending[:idx]
		f.pending = ""
		f.suppress = true
		if out == "" {
			return nil
		}
		return []string{out}
	}
	holdback := len(f.sentinel) - 1
	if len(f.pending) <= holdback {
		return nil
	}
	out := f.pending[:len(f.pending)-holdback]
	f.pending = f.pending[len(f.pending)-holdback:]
	return []string{out}
}

// flush releases any held-back tail once the stream has ended.
func (f *sentinelFilter) flush() string {
	if f.suppress {
		return ""
	}
	out := f.pending
	f.pending = ""
	return out
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aleutian-ai/coggraph/checkpoint"
	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/memory"
	"github.com/aleutian-ai/coggraph/observer"
	"github.com/aleutian-ai/coggraph/state"
)

// Instrumentation is the cross-cutting observability hook injected into the
// runner.
// The telemetry package provides the production implementation.
type Instrumentation interface {
	// StartNodeSpan opens a span around one node execution; the returned
	// func ends it with the node's error.
	StartNodeSpan(ctx context.Context, sessionID, node string) (context.Context, func(error))

	// WrapEmitter may tee events (e.g. execution_state transitions) into
	// metrics or time-series sinks before forwarding them to inner.
	WrapEmitter(inner events.Emitter, sessionID string) events.Emitter
}

// RunRequest describes one run of the graph.
type RunRequest struct {
	SessionID   string
	Message     string
	History     []state.DialogueMessage
	Images      [][]byte
	ImageAction state.ImageAction
}

// Runner owns the execution loop: it compiles the graph, merges node
// updates into the shared state, translates them into the event stream, and
// persists a checkpoint when a HITL suspension stops iteration.
//
// Thread Safety: a Runner is safe for concurrent use across sessions;
// within one session, TryAcquire enforces a single driver at a time.
type Runner struct {
	orch        *Orchestrator
	checkpoints checkpoint.Store
	memory      memory.LongTermStore
	instr       Instrumentation
	logger      *slog.Logger
	now         func() time.Time

	contextBudgetBytes int
	maxHistory         int

	sessions *sessionStore

	slotMu        sync.Mutex
	maxConcurrent int
	activeRuns    int

	cleanupMu sync.RWMutex
	cleanups  map[string]SessionCleanupFunc
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxConcurrentSessions limits simultaneous graph runs (0 = unlimited).
func WithMaxConcurrentSessions(max int) Option {
	return func(r *Runner) { r.maxConcurrent = max }
}

// WithInstrumentation injects tracing/metrics hooks.
func WithInstrumentation(instr Instrumentation) Option {
	return func(r *Runner) { r.instr = instr }
}

// WithMemoryStore sets the long-term store used by the image-memory resume
// path to persist approved plans.
func WithMemoryStore(store memory.LongTermStore) Option {
	return func(r *Runner) { r.memory = store }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithContextBudget bounds context_variables to budgetBytes per session.
func WithContextBudget(budgetBytes int) Option {
	return func(r *Runner) { r.contextBudgetBytes = budgetBytes }
}

// WithMaxHistory truncates checkpointed dialogue history to the most recent
// n messages (sliding window).
func WithMaxHistory(n int) Option {
	return func(r *Runner) { r.maxHistory = n }
}

// WithClock overrides time.Now, keeping transition timestamps deterministic
// in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner constructs a Runner over a compiled-on-demand orchestrator and
// a checkpoint store.
func NewRunner(orch *Orchestrator, store checkpoint.Store, opts ...Option) *Runner {
	r := &Runner{
		orch:        orch,
		checkpoints: store,
		logger:      slog.Default(),
		now:         time.Now,
		sessions:    newSessionStore(),
		cleanups:    make(map[string]SessionCleanupFunc),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterSessionCleanupHook registers fn to run when CloseSession releases
// a session's resources.
func (r *Runner) RegisterSessionCleanupHook(name string, fn SessionCleanupFunc) {
	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()
	r.cleanups[name] = fn
}

// Run executes one graph run, writing events to emit until the run
// completes, suspends, or fails. It blocks for the duration of the run.
func (r *Runner) Run(ctx context.Context, req RunRequest, emit events.Emitter) error {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	sess := r.sessions.getOrCreate(sessionID)
	if !sess.TryAcquire() {
		return ErrSessionInProgress
	}
	defer sess.Release()

	if err := r.acquireSlot(); err != nil {
		return err
	}
	defer r.releaseSlot()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sess.setCancel(cancel)
	defer sess.setCancel(nil)

	entry := EntryText
	if len(req.Images) > 0 {
		entry = EntryImage
	}
	compiled, err := r.orch.Compile(entry)
	if err != nil {
		return err
	}

	gs := state.NewGraphState(sessionID, req.History, r.contextBudgetBytes)
	// Contracts, surfaced-consequence marks, and context variables are
	// session-scoped, not run-scoped: idempotency keys must match prior
	// COMPLETED contracts from earlier turns of the same session.
	if prev, ok := sess.State(); ok {
		gs.CompletedExecutions = prev.CompletedExecutions
		gs.SurfacedConsequences = prev.SurfacedConsequences
		if prev.ContextVariables != nil {
			gs.ContextVariables = prev.ContextVariables
		}
	}
	gs.SemanticInput = state.SemanticInput{
		Text:        req.Message,
		Images:      req.Images,
		ImageAction: req.ImageAction,
	}
	gs.Status = state.StatusRunning
	if req.Message != "" {
		gs.DialogueHistory = append(gs.DialogueHistory, state.DialogueMessage{
			Role:      state.RoleUser,
			Content:   req.Message,
			Timestamp: r.now(),
		})
	}

	emit = r.wrapEmitter(emit, sessionID)
	r.logger.Info("run started",
		slog.String("session_id", sessionID),
		slog.String("entry", string(entry)))

	return r.drive(ctx, compiled, compiled.Entry(), gs, sess, emit)
}

// drive is the shared iteration loop for Run and Resume: execute the node,
// merge its update, emit events, and route until END, suspension, or error.
func (r *Runner) drive(ctx context.Context, g *CompiledGraph, current string, gs state.GraphState, sess *Session, emit events.Emitter) error {
	for current != end {
		if ctx.Err() != nil {
			return r.cancelRun(gs, sess, emit)
		}

		node := g.Node(current)
		if node == nil {
			err := fmt.Errorf("graph: route names unknown node %q", current)
			r.failRun(gs, sess, emit, err)
			return err
		}

		nctx, endSpan := r.startSpan(ctx, gs.SessionID, current)
		update, err := node.Compute(nctx, gs, emit)
		endSpan(err)
		if err != nil {
			if ctx.Err() != nil {
				return r.cancelRun(gs, sess, emit)
			}
			r.failRun(gs, sess, emit, err)
			return err
		}

		gs = gs.Merge(update)
		gs = r.drainStrayStream(ctx, gs, emit)
		sess.saveState(gs)

		if gs.Status == state.StatusSuspended {
			return r.suspendRun(ctx, gs, sess, emit)
		}

		current = g.Next(current, gs)
	}

	completed := state.StatusCompleted
	gs = gs.Merge(state.StateUpdate{Status: &completed})
	sess.saveState(gs)

	if err := r.checkpoints.Delete(ctx, gs.SessionID); err != nil {
		r.logger.Warn("stale checkpoint delete failed",
			slog.String("session_id", gs.SessionID), slog.Any("error", err))
	}

	_ = emit.Emit(events.NewDoneEvent())
	r.logger.Info("run completed", slog.String("session_id", gs.SessionID))
	return nil
}

// drainStrayStream consumes a ResponseStream a node returned without
// draining it itself, forwarding tokens as text events and appending the
// accumulated assistant message. The built-in Reasoning node
// drains its own stream, so this only fires for custom nodes or the
// non-streaming fallback path.
func (r *Runner) drainStrayStream(ctx context.Context, gs state.GraphState, emit events.Emitter) state.GraphState {
	ts := gs.ResponseStream
	if ts == nil {
		return gs
	}
	gs.ResponseStream = nil
	if err := ts.Claim(); err != nil {
		return gs
	}

	var full string
	for {
		tok, ok, err := ts.Next(ctx)
		if err != nil {
			r.logger.Warn("response stream failed mid-drain",
				slog.String("session_id", gs.SessionID), slog.Any("error", err))
			break
		}
		if !ok {
			break
		}
		full += tok
		_ = emit.Emit(events.NewTextEvent(tok))
	}
	if full != "" {
		gs = gs.Merge(state.StateUpdate{AppendDialogue: []state.DialogueMessage{{
			Role:      state.RoleAssistant,
			Content:   full,
			Timestamp: r.now(),
		}}})
	}
	return gs
}

// suspendRun persists the checkpoint for a HITL pause. A save failure emits
// an error event and fails the call while leaving the contract WAITING so a
// later resume can be retried after repair.
func (r *Runner) suspendRun(ctx context.Context, gs state.GraphState, sess *Session, emit events.Emitter) error {
	if err := r.saveCheckpoint(ctx, gs); err != nil {
		r.logger.Error("checkpoint save failed on suspension",
			slog.String("session_id", gs.SessionID), slog.Any("error", err))
		_ = emit.Emit(events.NewErrorEvent("checkpoint save failed: " + err.Error()))
		return err
	}
	r.logger.Info("run suspended for user input", slog.String("session_id", gs.SessionID))
	return nil
}

func (r *Runner) saveCheckpoint(ctx context.Context, gs state.GraphState) error {
	raw, err := checkpoint.Marshal(gs, r.maxHistory)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrCheckpointSaveFailed, err)
	}
	now := r.now()
	return r.checkpoints.Save(ctx, checkpoint.Record{
		SessionID: gs.SessionID,
		StateJSON: raw,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// failRun marks the state failed and surfaces a single error event.
func (r *Runner) failRun(gs state.GraphState, sess *Session, emit events.Emitter, cause error) {
	failed := state.StatusFailed
	gs = gs.Merge(state.StateUpdate{Status: &failed})
	sess.saveState(gs)
	r.logger.Error("run failed",
		slog.String("session_id", gs.SessionID), slog.Any("error", cause))
	_ = emit.Emit(events.NewErrorEvent(cause.Error()))
}

// cancelRun transitions every non-terminal contract to CANCELLED, drains
// the stream with a final error event, and leaves any checkpoint intact so
// a future resume can observe the cancellation.
func (r *Runner) cancelRun(gs state.GraphState, sess *Session, emit events.Emitter) error {
	now := r.now()
	for _, c := range gs.ActiveExecutions {
		if c.Status.IsTerminal() {
			continue
		}
		from := c.Status
		if err := contract.Transition(c, contract.TriggerCancel, "system", contract.ActorSystem, nil, nil, "", now); err != nil {
			r.logger.Warn("cancel transition failed",
				slog.String("execution_id", c.ExecutionID), slog.Any("error", err))
			continue
		}
		_ = emit.Emit(events.NewExecutionStateEvent(c, *c.LastTransition(), from))
	}

	failed := state.StatusFailed
	gs = gs.Merge(state.StateUpdate{Status: &failed})
	sess.saveState(gs)
	_ = emit.Emit(events.NewErrorEvent("run cancelled"))
	r.logger.Info("run cancelled", slog.String("session_id", gs.SessionID))
	return ErrCancelledByUser
}

// Abort cancels an in-flight run for the session.
func (r *Runner) Abort(sessionID string) error {
	sess, ok := r.sessions.get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if !sess.abort() {
		return fmt.Errorf("graph: session %s has no run in flight", sessionID)
	}
	return nil
}

// StoreHITLResponse stages the user's answer for a later /hitl/continue
// call.
func (r *Runner) StoreHITLResponse(sessionID string, resp HITLResponse) error {
	sess, ok := r.sessions.get(sessionID)
	if !ok {
		// The process may have restarted since the suspension; the session
		// still exists on disk as a checkpoint.
		if _, err := r.checkpoints.Load(context.Background(), sessionID); err != nil {
			return ErrSessionNotFound
		}
		sess = r.sessions.getOrCreate(sessionID)
	}
	sess.setPendingResponse(resp)
	return nil
}

// TakeHITLResponse removes and returns the staged response, if any.
func (r *Runner) TakeHITLResponse(sessionID string) (HITLResponse, bool) {
	sess, ok := r.sessions.get(sessionID)
	if !ok {
		return HITLResponse{}, false
	}
	return sess.takePendingResponse()
}

// GetState returns the latest merged GraphState for the session.
func (r *Runner) GetState(sessionID string) (state.GraphState, error) {
	sess, ok := r.sessions.get(sessionID)
	if !ok {
		return state.GraphState{}, ErrSessionNotFound
	}
	gs, ok := sess.State()
	if !ok {
		return state.GraphState{}, ErrSessionNotFound
	}
	return gs, nil
}

// CloseSession releases per-session resources and runs cleanup hooks. It is
// for intentional teardown, not cancellation.
func (r *Runner) CloseSession(sessionID string) error {
	if _, ok := r.sessions.get(sessionID); !ok {
		return ErrSessionNotFound
	}
	r.sessions.delete(sessionID)

	r.cleanupMu.RLock()
	defer r.cleanupMu.RUnlock()
	for name, fn := range r.cleanups {
		r.logger.Debug("running session cleanup hook",
			slog.String("hook", name), slog.String("session_id", sessionID))
		fn(sessionID)
	}
	return nil
}

// Timeline projects the session's contracts into an ExecutionTimeline.
// It falls back to the checkpoint when the session is not in memory
// (e.g. after a restart).
func (r *Runner) Timeline(ctx context.Context, sessionID string) (observer.ExecutionTimeline, error) {
	contracts, err := r.sessionContracts(ctx, sessionID)
	if err != nil {
		return observer.ExecutionTimeline{}, err
	}
	return observer.Timeline(sessionID, contracts, r.now()), nil
}

// Snapshot projects one contract into an ExecutionSnapshot.
func (r *Runner) Snapshot(executionID string) (observer.ExecutionSnapshot, error) {
	for _, sess := range r.sessions.list() {
		gs, ok := sess.State()
		if !ok {
			continue
		}
		for _, c := range allContracts(gs) {
			if c.ExecutionID == executionID {
				return observer.Snapshot(c, r.now()), nil
			}
		}
	}
	return observer.ExecutionSnapshot{}, ErrSessionNotFound
}

func (r *Runner) sessionContracts(ctx context.Context, sessionID string) ([]*contract.ExecutionContract, error) {
	if sess, ok := r.sessions.get(sessionID); ok {
		if gs, ok := sess.State(); ok {
			if contracts := allContracts(gs); len(contracts) > 0 {
				return contracts, nil
			}
		}
	}

	rec, err := r.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	gs, err := checkpoint.Unmarshal(rec.StateJSON, r.contextBudgetBytes)
	if err != nil {
		return nil, err
	}
	contracts := allContracts(gs)
	if len(contracts) == 0 {
		return nil, ErrSessionNotFound
	}
	return contracts, nil
}

func allContracts(gs state.GraphState) []*contract.ExecutionContract {
	out := make([]*contract.ExecutionContract, 0, len(gs.ActiveExecutions)+len(gs.CompletedExecutions))
	out = append(out, gs.ActiveExecutions...)
	out = append(out, gs.CompletedExecutions...)
	return out
}

func (r *Runner) acquireSlot() error {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	if r.maxConcurrent > 0 && r.activeRuns >= r.maxConcurrent {
		return ErrTooManySessions
	}
	r.activeRuns++
	return nil
}

func (r *Runner) releaseSlot() {
	r.slotMu.Lock()
	defer r.slotMu.Unlock()
	if r.activeRuns > 0 {
		r.activeRuns--
	}
}

func (r *Runner) startSpan(ctx context.Context, sessionID, node string) (context.Context, func(error)) {
	if r.instr == nil {
		return ctx, func(error) {}
	}
	return r.instr.StartNodeSpan(ctx, sessionID, node)
}

func (r *Runner) wrapEmitter(emit events.Emitter, sessionID string) events.Emitter {
	if r.instr == nil {
		return emit
	}
	return r.instr.WrapEmitter(emit, sessionID)
}

// errIsNotFound reports whether err is the checkpoint-missing sentinel.
func errIsNotFound(err error) bool {
	return errors.Is(err, checkpoint.ErrCheckpointNotFound)
}

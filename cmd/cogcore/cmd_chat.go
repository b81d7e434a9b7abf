// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aleutian-ai/coggraph/events"
	"github.com/aleutian-ai/coggraph/graph"
	"github.com/aleutian-ai/coggraph/state"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive terminal chat against the graph runner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			fmt.Printf("session %s - type a message, /quit to exit\n", sessionID)

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					return nil
				}

				emitter := &consoleEmitter{out: os.Stdout}
				err := a.runner.Run(ctx, graph.RunRequest{
					SessionID: sessionID,
					Message:   line,
				}, emitter)
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}

				if emitter.pendingHITL != nil {
					if err := promptAndResume(ctx, a, sessionID, emitter.pendingHITL, scanner); err != nil {
						fmt.Fprintf(os.Stderr, "resume error: %v\n", err)
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (random when empty)")
	return cmd
}

// promptAndResume collects form answers (or a dismissal) on the terminal and
// continues the suspended run.
func promptAndResume(ctx context.Context, a *app, sessionID string, req *state.HITLRequest, scanner *bufio.Scanner) error {
	resp := graph.HITLResponse{RequestID: req.ID, Action: graph.ActionApprove}

	if req.Type == state.HITLVisualDisplay {
		fmt.Println("(press enter to dismiss)")
		scanner.Scan()
		resp.Action = graph.ActionDismiss
	} else {
		data := make(map[string]any, len(req.Fields))
		fmt.Printf("-- %s (empty answer keeps the default; type 'reject' on any field to decline) --\n", req.Title)
		for _, f := range req.Fields {
			fmt.Printf("%s [%v]: ", f.Label, f.Default)
			if !scanner.Scan() {
				break
			}
			answer := strings.TrimSpace(scanner.Text())
			if answer == "reject" {
				resp.Action = graph.ActionReject
				break
			}
			if answer == "" {
				data[f.Name] = f.Default
			} else {
				data[f.Name] = answer
			}
		}
		resp.Data = data
	}

	emitter := &consoleEmitter{out: os.Stdout}
	return a.runner.Resume(ctx, sessionID, resp, emitter)
}

// consoleEmitter renders the event stream for a terminal: text tokens
// inline, other events as compact one-liners, and HITL requests captured
// for the interactive resume loop.
type consoleEmitter struct {
	out         *os.File
	pendingHITL *state.HITLRequest
	inText      bool
}

func (c *consoleEmitter) Emit(e events.Event) error {
	switch e.Type {
	case events.TypeText:
		if p, ok := e.Payload.(events.TextPayload); ok {
			fmt.Fprint(c.out, p.Content)
			c.inText = true
		}
	case events.TypeHITL:
		c.endTextLine()
		if p, ok := e.Payload.(state.HITLRequest); ok {
			c.pendingHITL = &p
		}
	case events.TypeDone:
		c.endTextLine()
	case events.TypeError:
		c.endTextLine()
		if p, ok := e.Payload.(events.ErrorPayload); ok {
			fmt.Fprintf(c.out, "[error] %s\n", p.Message)
		}
	case events.TypeEmotion, events.TypeToolResult, events.TypeExecutionState:
		c.endTextLine()
		raw, _ := json.Marshal(e.Payload)
		fmt.Fprintf(c.out, "[%s] %s\n", e.Type, raw)
	}
	return nil
}

func (c *consoleEmitter) Close() {}

func (c *consoleEmitter) endTextLine() {
	if c.inText {
		fmt.Fprintln(c.out)
		c.inText = false
	}
}

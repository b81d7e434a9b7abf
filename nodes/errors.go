// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package nodes

import "fmt"

// LLMTransportError wraps an underlying transport failure from the
// Reasoning node's LLM call.
type LLMTransportError struct {
	Err error
}

func (e *LLMTransportError) Error() string {
	return fmt.Sprintf("nodes: llm transport error: %v", e.Err)
}

func (e *LLMTransportError) Unwrap() error {
	return e.Err
}

// ToolExecutionFailedError wraps a tool invocation failure.
type ToolExecutionFailedError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionFailedError) Error() string {
	return fmt.Sprintf("nodes: tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionFailedError) Unwrap() error {
	return e.Err
}

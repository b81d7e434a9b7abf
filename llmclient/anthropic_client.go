// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llmclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// AnthropicClient implements LLMClient and Classifier via langchaingo's
// Anthropic backend. It is the default Reasoning client and also serves as
// the Intent node's layer-2 classifier: a single shared model,
// two different prompt shapes.
type AnthropicClient struct {
	model  llms.Model
	logger *slog.Logger
}

// NewAnthropicClient constructs a client for the given API key and model
// (e.g. "claude-3-5-sonnet-20241022").
func NewAnthropicClient(apiKey, model string, logger *slog.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("llmclient: anthropic api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []anthropic.Option{anthropic.WithToken(apiKey)}
	if model != "" {
		opts = append(opts, anthropic.WithModel(model))
	}

	m, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llmclient: construct anthropic model: %w", err)
	}
	return &AnthropicClient{model: m, logger: logger}, nil
}

func toLangchainMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case "system":
			role = llms.ChatMessageTypeSystem
		case "assistant":
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

func callOptions(params GenerationParams) []llms.CallOption {
	var opts []llms.CallOption
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*params.TopP)))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}
	return opts
}

func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	resp, err := c.model.GenerateContent(ctx, toLangchainMessages(messages), callOptions(params)...)
	if err != nil {
		c.logger.Error("anthropic generate content failed", "error", err)
		return "", fmt.Errorf("llmclient: anthropic chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llmclient: anthropic returned no choices")
	}
	return resp.Choices[0].Content, nil
}

func (c *AnthropicClient) ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error {
	opts := callOptions(params)
	opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		return callback(StreamEvent{Type: StreamEventToken, Content: string(chunk)})
	}))

	_, err := c.model.GenerateContent(ctx, toLangchainMessages(messages), opts...)
	if err != nil {
		_ = callback(StreamEvent{Type: StreamEventError, Error: err.Error()})
		return fmt.Errorf("llmclient: anthropic stream: %w", err)
	}
	return nil
}

// Classify implements the Classifier interface for layer-2 intent
// recognition: a single-shot, low-temperature completion that is expected
// to return one of candidates.
func (c *AnthropicClient) Classify(ctx context.Context, text string, candidates []string) (string, float64, error) {
	prompt := buildClassificationPrompt(text, candidates)
	temp := float32(0)
	maxTokens := 16

	out, err := c.Chat(ctx, []Message{
		{Role: "system", Content: "Reply with exactly one label from the list and nothing else."},
		{Role: "user", Content: prompt},
	}, GenerationParams{Temperature: &temp, MaxTokens: &maxTokens})
	if err != nil {
		return "", 0, fmt.Errorf("llmclient: classify: %w", err)
	}

	label := normalizeClassifierOutput(out, candidates)
	if label == "" {
		return "", 0, nil
	}
	return label, 1.0, nil
}

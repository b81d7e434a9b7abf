// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides the layered structured logger used across the
// cognitive graph core: stderr by default for CLI friendliness, with an
// optional JSON file sink for desktop deployments that need a persistent
// trail of node executions and contract transitions.
//
// The package wraps log/slog; components receive a *slog.Logger and log
// with structured fields (session_id, execution_id, state) rather than
// formatted strings.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Config controls logger construction.
type Config struct {
	// Level is "debug", "info", "warn", or "error"; empty means info.
	Level string

	// Dir, when set, enables a JSON log file named {service}_{date}.log in
	// that directory (created if absent).
	Dir string

	// Service names the log file; empty means "coggraph".
	Service string
}

// Logger is a *slog.Logger plus the file handle it may own.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New builds a layered logger per cfg. Errors creating the file sink are
// returned rather than silently degrading, since a deployment that asked
// for file logs wants to know they are not being written.
func New(cfg Config) (*Logger, error) {
	level := parseLevel(cfg.Level)

	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	handlers := []slog.Handler{stderrHandler}

	var file *os.File
	if cfg.Dir != "" {
		service := cfg.Service
		if service == "" {
			service = "coggraph"
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
		name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
	}

	var handler slog.Handler = handlers[0]
	if len(handlers) > 1 {
		handler = fanout(handlers)
	}
	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// Default returns a stderr-only info-level logger.
func Default() *Logger {
	l, _ := New(Config{})
	return l
}

// Close flushes and closes the file sink, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Writer returns the file sink for components that append raw lines, or
// io.Discard when file logging is disabled.
func (l *Logger) Writer() io.Writer {
	if l.file == nil {
		return io.Discard
	}
	return l.file
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanoutHandler duplicates records across destinations.
type fanoutHandler struct {
	handlers []slog.Handler
}

func fanout(handlers []slog.Handler) slog.Handler {
	return &fanoutHandler{handlers: handlers}
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: out}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		out[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: out}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"log/slog"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/aleutian-ai/coggraph/events"
)

// InfluxSink mirrors every contract transition into an InfluxDB bucket so
// operators can chart execution history (suspensions, failures, tool
// latency) outside the core.
type InfluxSink struct {
	client influxdb2.Client
	write  influxapi.WriteAPIBlocking
	logger *slog.Logger
}

// NewInfluxSink connects to the given InfluxDB instance. Writes are
// best-effort: a down sink logs and drops points rather than stalling runs.
func NewInfluxSink(url, token, org, bucket string, logger *slog.Logger) *InfluxSink {
	if logger == nil {
		logger = slog.Default()
	}
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(org, bucket),
		logger: logger,
	}
}

// WriteTransition records one execution_state payload as a point in the
// contract_transition measurement.
func (s *InfluxSink) WriteTransition(ctx context.Context, sessionID string, p events.ExecutionStatePayload) {
	point := influxdb2.NewPoint("contract_transition",
		map[string]string{
			"session_id": sessionID,
			"trigger":    string(p.Trigger),
			"to_status":  string(p.ToStatus),
		},
		map[string]any{
			"execution_id":     p.ExecutionID,
			"action_summary":   p.ActionSummary,
			"from_status":      string(p.FromStatus),
			"is_terminal":      p.IsTerminal,
			"has_side_effects": p.HasSideEffects,
		},
		p.Timestamp,
	)
	if err := s.write.WritePoint(ctx, point); err != nil {
		s.logger.Warn("influx transition write failed",
			slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry instruments the cognitive graph core: one span per node
// execution, Prometheus metrics for contract transitions and latencies, and
// an optional InfluxDB sink that mirrors every transition into a time
// series for operator dashboards.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/aleutian-ai/coggraph/contract"
	"github.com/aleutian-ai/coggraph/events"
)

// Config selects the trace exporter and names the service.
type Config struct {
	// TraceExporter is "otlp", "stdout", or "off".
	TraceExporter string
	OTLPEndpoint  string
	ServiceName   string
}

// Telemetry bundles the tracer, the metric instruments, and the optional
// transition sink. It implements graph.Instrumentation.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	registry       *prometheus.Registry

	nodeLatency       metric.Float64Histogram
	transitions       metric.Int64Counter
	hitlSuspensions   metric.Int64Counter
	checkpointLatency metric.Float64Histogram

	sink *InfluxSink
}

// Setup initializes tracing and metrics per cfg.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "coggraph"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	t := &Telemetry{registry: prometheus.NewRegistry()}

	switch cfg.TraceExporter {
	case "otlp":
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
		}
		t.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
		}
		t.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
	case "", "off":
		// Tracing disabled; spans come from the global (noop) provider.
	default:
		return nil, fmt.Errorf("telemetry: unknown trace exporter %q", cfg.TraceExporter)
	}

	if t.tracerProvider != nil {
		otel.SetTracerProvider(t.tracerProvider)
		t.tracer = t.tracerProvider.Tracer(serviceName)
	} else {
		t.tracer = otel.Tracer(serviceName)
	}

	promExp, err := otelprom.New(otelprom.WithRegisterer(t.registry))
	if err != nil {
		return nil, fmt.Errorf("telemetry: prometheus exporter: %w", err)
	}
	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExp),
		sdkmetric.WithResource(res),
	)
	meter := t.meterProvider.Meter(serviceName)

	if t.nodeLatency, err = meter.Float64Histogram("graph.node.duration",
		metric.WithDescription("Node execution latency in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if t.transitions, err = meter.Int64Counter("contract.transitions",
		metric.WithDescription("Contract transitions by trigger")); err != nil {
		return nil, err
	}
	if t.hitlSuspensions, err = meter.Int64Counter("hitl.suspensions",
		metric.WithDescription("Runs suspended for user input")); err != nil {
		return nil, err
	}
	if t.checkpointLatency, err = meter.Float64Histogram("checkpoint.duration",
		metric.WithDescription("Checkpoint save/load latency in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	return t, nil
}

// WithInfluxSink attaches the transition time-series sink.
func (t *Telemetry) WithInfluxSink(sink *InfluxSink) *Telemetry {
	t.sink = sink
	return t
}

// PrometheusHandler serves the /metrics scrape endpoint.
func (t *Telemetry) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// StartNodeSpan opens a graph.node.<name> span; the returned func records
// latency and the node's error.
func (t *Telemetry) StartNodeSpan(ctx context.Context, sessionID, node string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := t.tracer.Start(ctx, "graph.node."+node,
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("graph.node", node),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		t.nodeLatency.Record(context.Background(), time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("graph.node", node)))
	}
}

// WrapEmitter tees execution_state events into the transition counter, the
// suspension counter, and the Influx sink before forwarding to inner.
func (t *Telemetry) WrapEmitter(inner events.Emitter, sessionID string) events.Emitter {
	return &tapEmitter{inner: inner, t: t, sessionID: sessionID}
}

// ObserveCheckpoint records one checkpoint store operation.
func (t *Telemetry) ObserveCheckpoint(op string, d time.Duration, err error) {
	t.checkpointLatency.Record(context.Background(), d.Seconds(),
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.Bool("error", err != nil),
		))
}

// Shutdown flushes exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var firstErr error
	if t.sink != nil {
		t.sink.Close()
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// tapEmitter forwards every event and mirrors contract transitions into
// metrics and the time-series sink.
type tapEmitter struct {
	inner     events.Emitter
	t         *Telemetry
	sessionID string
}

func (e *tapEmitter) Emit(ev events.Event) error {
	if ev.Type == events.TypeExecutionState {
		if p, ok := ev.Payload.(events.ExecutionStatePayload); ok {
			e.t.transitions.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("trigger", string(p.Trigger))))
			if p.Trigger == contract.TriggerSuspend {
				e.t.hitlSuspensions.Add(context.Background(), 1)
			}
			if e.t.sink != nil {
				e.t.sink.WriteTransition(context.Background(), e.sessionID, p)
			}
		}
	}
	return e.inner.Emit(ev)
}

func (e *tapEmitter) Close() {
	e.inner.Close()
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records OpenTelemetry metrics for renders, chat turns,
// session saves and memory consolidation.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope for all instruments.
const MeterName = "github.com/jeranaias/instantcoffee"

// Recorder records application metrics.
// Use NewRecorder for OTel metrics or NoopRecorder{} when disabled.
type Recorder interface {
	// RecordRender records one diagram render.
	RecordRender(ctx context.Context, dialect string, duration time.Duration, err error)

	// RecordChatTurn records one user message round trip, including any
	// tool-call continuations.
	RecordChatTurn(ctx context.Context, provider string, toolCalls int, duration time.Duration, err error)

	// RecordSave records a session persist; created is true for inserts.
	RecordSave(ctx context.Context, created bool, err error)

	// RecordConsolidation records a memory consolidation run.
	RecordConsolidation(ctx context.Context, before, after int, err error)
}

type otelRecorder struct {
	renders        metric.Int64Counter
	renderLatency  metric.Float64Histogram
	renderErrors   metric.Int64Counter
	chatTurns      metric.Int64Counter
	chatLatency    metric.Float64Histogram
	toolCalls      metric.Int64Counter
	saves          metric.Int64Counter
	consolidations metric.Int64Counter
	memoriesPruned metric.Int64Counter
}

// NewRecorder creates instruments on meter.
func NewRecorder(meter metric.Meter) (Recorder, error) {
	r := &otelRecorder{}
	var err error

	if r.renders, err = meter.Int64Counter("instantcoffee.render.count",
		metric.WithDescription("Number of diagram renders"),
	); err != nil {
		return nil, err
	}
	if r.renderLatency, err = meter.Float64Histogram("instantcoffee.render.latency_ms",
		metric.WithDescription("Diagram render latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if r.renderErrors, err = meter.Int64Counter("instantcoffee.render.errors",
		metric.WithDescription("Number of failed diagram renders"),
	); err != nil {
		return nil, err
	}
	if r.chatTurns, err = meter.Int64Counter("instantcoffee.chat.turns",
		metric.WithDescription("Number of chat turns"),
	); err != nil {
		return nil, err
	}
	if r.chatLatency, err = meter.Float64Histogram("instantcoffee.chat.latency_ms",
		metric.WithDescription("Chat turn latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if r.toolCalls, err = meter.Int64Counter("instantcoffee.chat.tool_calls",
		metric.WithDescription("Number of update_diagram tool calls handled"),
	); err != nil {
		return nil, err
	}
	if r.saves, err = meter.Int64Counter("instantcoffee.session.saves",
		metric.WithDescription("Number of session saves"),
	); err != nil {
		return nil, err
	}
	if r.consolidations, err = meter.Int64Counter("instantcoffee.memory.consolidations",
		metric.WithDescription("Number of memory consolidation runs"),
	); err != nil {
		return nil, err
	}
	if r.memoriesPruned, err = meter.Int64Counter("instantcoffee.memory.pruned",
		metric.WithDescription("Memories removed by consolidation"),
	); err != nil {
		return nil, err
	}

	return r, nil
}

var (
	defaultRecorder     Recorder
	defaultRecorderOnce sync.Once
)

// Default returns a recorder on the global meter provider, created on first
// use. Instrument creation failures degrade to NoopRecorder.
func Default() Recorder {
	defaultRecorderOnce.Do(func() {
		r, err := NewRecorder(otel.Meter(MeterName))
		if err != nil {
			defaultRecorder = NoopRecorder{}
			return
		}
		defaultRecorder = r
	})
	return defaultRecorder
}

// OrNoop returns r, or NoopRecorder{} when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}

func (r *otelRecorder) RecordRender(ctx context.Context, dialect string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("dialect", dialect),
		attribute.Bool("success", err == nil),
	)
	r.renders.Add(ctx, 1, attrs)
	r.renderLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		r.renderErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("dialect", dialect)))
	}
}

func (r *otelRecorder) RecordChatTurn(ctx context.Context, provider string, toolCalls int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", err == nil),
	)
	r.chatTurns.Add(ctx, 1, attrs)
	r.chatLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if toolCalls > 0 {
		r.toolCalls.Add(ctx, int64(toolCalls), metric.WithAttributes(attribute.String("provider", provider)))
	}
}

func (r *otelRecorder) RecordSave(ctx context.Context, created bool, err error) {
	r.saves.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("created", created),
		attribute.Bool("success", err == nil),
	))
}

func (r *otelRecorder) RecordConsolidation(ctx context.Context, before, after int, err error) {
	r.consolidations.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", err == nil)))
	if err == nil && before > after {
		r.memoriesPruned.Add(ctx, int64(before-after))
	}
}

// NoopRecorder discards all metrics.
type NoopRecorder struct{}

func (NoopRecorder) RecordRender(context.Context, string, time.Duration, error)        {}
func (NoopRecorder) RecordChatTurn(context.Context, string, int, time.Duration, error) {}
func (NoopRecorder) RecordSave(context.Context, bool, error)                           {}
func (NoopRecorder) RecordConsolidation(context.Context, int, int, error)              {}

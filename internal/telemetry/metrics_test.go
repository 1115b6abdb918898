// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestRecorder(t *testing.T) (Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	r, err := NewRecorder(provider.Meter(MeterName))
	require.NoError(t, err)
	return r, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", m.Data)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRecordRender(t *testing.T) {
	r, reader := newTestRecorder(t)
	ctx := context.Background()

	r.RecordRender(ctx, "d2", 20*time.Millisecond, nil)
	r.RecordRender(ctx, "mermaid", 5*time.Millisecond, errors.New("syntax"))

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "instantcoffee.render.count")))
	assert.Equal(t, int64(1), sumOf(t, findMetric(rm, "instantcoffee.render.errors")))

	hist := findMetric(rm, "instantcoffee.render.latency_ms")
	require.NotNil(t, hist)
	_, ok := hist.Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestRecordChatTurn(t *testing.T) {
	r, reader := newTestRecorder(t)
	ctx := context.Background()

	r.RecordChatTurn(ctx, "ollama", 2, time.Second, nil)
	r.RecordChatTurn(ctx, "ollama", 0, time.Second, nil)

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "instantcoffee.chat.turns")))
	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "instantcoffee.chat.tool_calls")))
}

func TestRecordSaveAndConsolidation(t *testing.T) {
	r, reader := newTestRecorder(t)
	ctx := context.Background()

	r.RecordSave(ctx, true, nil)
	r.RecordSave(ctx, false, nil)
	r.RecordConsolidation(ctx, 10, 4, nil)
	r.RecordConsolidation(ctx, 3, 3, errors.New("bad json"))

	rm := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "instantcoffee.session.saves")))
	assert.Equal(t, int64(2), sumOf(t, findMetric(rm, "instantcoffee.memory.consolidations")))
	assert.Equal(t, int64(6), sumOf(t, findMetric(rm, "instantcoffee.memory.pruned")))
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	ctx := context.Background()
	r.RecordRender(ctx, "d2", time.Millisecond, nil)
	r.RecordChatTurn(ctx, "x", 1, time.Millisecond, nil)
	r.RecordSave(ctx, true, nil)
	r.RecordConsolidation(ctx, 1, 1, nil)

	assert.IsType(t, NoopRecorder{}, OrNoop(nil))
	assert.Equal(t, r, OrNoop(r))
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestDefault(t *testing.T) {
	assert.NotNil(t, Default())
}

// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/roomkit/roomkit/internal/telemetry"
	"github.com/roomkit/roomkit/realtime/realtimetest"
)

// TestLifecycleObservability pins what lifecycle operations emit: one span
// per operation carrying the room attributes, and one counter bump per
// completed operation.
func TestLifecycleObservability(t *testing.T) {
	spanExporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExporter))

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	defer func() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
	}()

	client := realtimetest.NewClient()
	room := newTestRoom(t, client, "obs-room")

	ctx := context.Background()
	require.NoError(t, room.Attach(ctx))
	require.NoError(t, room.Detach(ctx))
	releaseRoom(t, room)

	spans := spanExporter.GetSpans()
	byName := make(map[string]int)
	for _, span := range spans {
		byName[span.Name]++
		attrs := make(map[string]attribute.Value, len(span.Attributes))
		for _, kv := range span.Attributes {
			attrs[string(kv.Key)] = kv.Value
		}
		if v, ok := attrs[telemetry.RoomIDKey]; assert.True(t, ok, "span %s missing room id", span.Name) {
			assert.Equal(t, "obs-room", v.AsString())
		}
		_, ok := attrs[telemetry.OperationKey]
		assert.True(t, ok, "span %s missing operation", span.Name)
	}
	assert.Equal(t, 1, byName["room.attach"])
	assert.Equal(t, 1, byName["room.detach"])
	assert.Equal(t, 1, byName["room.release"])

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	got := operationCounts(rm)
	assert.Equal(t, int64(1), got["attach/ok"])
	assert.Equal(t, int64(1), got["detach/ok"])
	assert.Equal(t, int64(1), got["release/ok"])
}

func TestLifecycleObservability_ErrorOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	defer otel.SetMeterProvider(metricnoop.NewMeterProvider())

	client := realtimetest.NewClient()
	room := newTestRoom(t, client, "obs-err")
	defer releaseRoom(t, room)

	boom := errors.New("broken beyond repair")
	client.Lookup("obs-err::messages").ScriptAttach(realtimetest.Terminal(boom))

	require.Error(t, room.Attach(context.Background()))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	got := operationCounts(rm)
	assert.Equal(t, int64(1), got["attach/error"])

	// The error data point carries the chat error code.
	found := false
	forEachOperationPoint(rm, func(dp metricdata.DataPoint[int64]) {
		outcome, _ := dp.Attributes.Value(attribute.Key(telemetry.OutcomeKey))
		if outcome.AsString() != "error" {
			return
		}
		code, ok := dp.Attributes.Value(attribute.Key(telemetry.ErrorCodeKey))
		if assert.True(t, ok, "error point missing chat error code") {
			assert.Equal(t, int64(ErrorCodeMessagesAttachmentFailed), code.AsInt64())
		}
		found = true
	})
	assert.True(t, found, "no error data point recorded")
}

// operationCounts flattens the operations counter into "op/outcome" values.
func operationCounts(rm metricdata.ResourceMetrics) map[string]int64 {
	out := make(map[string]int64)
	forEachOperationPoint(rm, func(dp metricdata.DataPoint[int64]) {
		op, _ := dp.Attributes.Value(attribute.Key(telemetry.OperationKey))
		outcome, _ := dp.Attributes.Value(attribute.Key(telemetry.OutcomeKey))
		out[op.AsString()+"/"+outcome.AsString()] += dp.Value
	})
	return out
}

func forEachOperationPoint(rm metricdata.ResourceMetrics, fn func(metricdata.DataPoint[int64])) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "roomkit_chat_operations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				fn(dp)
			}
		}
	}
}

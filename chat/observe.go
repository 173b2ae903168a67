// SPDX-License-Identifier: MIT

package chat

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roomkit/roomkit/internal/telemetry"
)

// meterName scopes the chat instruments under one meter.
const meterName = "roomkit.chat"

// emitOperationObs counts one finished lifecycle operation on the global
// meter. The provider is resolved at call time, so telemetry installed after
// client construction still takes effect; without one this is a noop.
func emitOperationObs(ctx context.Context, operation string, err error) {
	meter := otel.GetMeterProvider().Meter(meterName)

	total, merr := meter.Int64Counter("roomkit_chat_operations_total",
		metric.WithDescription("Completed room lifecycle operations"))
	if merr != nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.OperationKey, operation),
		attribute.String(telemetry.OutcomeKey, outcome),
	}
	if code := CodeOf(err); code != 0 {
		attrs = append(attrs, attribute.Int(telemetry.ErrorCodeKey, int(code)))
	}
	total.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// emitDiscontinuityObs counts a delivered discontinuity for one feature.
func emitDiscontinuityObs(ctx context.Context, feature Feature) {
	meter := otel.GetMeterProvider().Meter(meterName)

	total, merr := meter.Int64Counter("roomkit_chat_discontinuities_total",
		metric.WithDescription("Discontinuities delivered to feature listeners"))
	if merr != nil {
		return
	}
	total.Add(ctx, 1, metric.WithAttributes(
		attribute.String(telemetry.FeatureKey, string(feature)),
	))
}

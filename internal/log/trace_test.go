// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestWithTraceContextNoSpan(t *testing.T) {
	logger := WithTraceContext(context.Background())
	if logger.GetLevel() == zerolog.Disabled {
		t.Error("logger without a span must still be usable")
	}
}

func TestWithTraceContextNoopSpan(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	ctx, span := tracer.Start(context.Background(), "noop")
	defer span.End()

	var buf bytes.Buffer
	base = zerolog.New(&buf)
	defer Configure(Config{})

	logger := WithTraceContext(ctx)
	logger.Info().Msg("no ids")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output: %v", err)
	}
	if _, ok := entry["trace_id"]; ok {
		t.Error("noop span must not contribute a trace_id")
	}
}

func TestWithTraceContextValidSpan(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatal(err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatal(err)
	}
	ctx := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		}))

	var buf bytes.Buffer
	base = zerolog.New(&buf)
	defer Configure(Config{})

	logger := WithTraceContext(ctx)
	logger.Info().Msg("correlated")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output: %v", err)
	}
	if entry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v, want the span's trace ID", entry["trace_id"])
	}
	if entry["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v, want the span's span ID", entry["span_id"])
	}
}

// SPDX-License-Identifier: MIT

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

// ctxKey scopes correlation values so unrelated packages cannot collide.
type ctxKey string

const (
	roomIDKey      ctxKey = "room_id"
	operationIDKey ctxKey = "operation_id"
)

func withValue(ctx context.Context, key ctxKey, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, id)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRoomID records a room ID for later log correlation.
func ContextWithRoomID(ctx context.Context, id string) context.Context {
	return withValue(ctx, roomIDKey, id)
}

// ContextWithOperationID records a lifecycle operation ID for later log
// correlation.
func ContextWithOperationID(ctx context.Context, id string) context.Context {
	return withValue(ctx, operationIDKey, id)
}

// RoomIDFromContext reports the room ID recorded in ctx, or "".
func RoomIDFromContext(ctx context.Context) string {
	return stringValue(ctx, roomIDKey)
}

// OperationIDFromContext reports the operation ID recorded in ctx, or "".
func OperationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, operationIDKey)
}

// WithContext copies the correlation fields recorded in ctx onto logger.
// The logger comes back untouched when ctx carries none.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	rid := RoomIDFromContext(ctx)
	oid := OperationIDFromContext(ctx)
	if rid == "" && oid == "" {
		return logger
	}

	builder := logger.With()
	if rid != "" {
		builder = builder.Str(FieldRoomID, rid)
	}
	if oid != "" {
		builder = builder.Str(FieldOperationID, oid)
	}
	return builder.Logger()
}

// WithComponentFromContext returns a logger that is annotated with the component
// name and enriched with correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	l := FromContext(ctx).With().Str(FieldComponent, component).Logger()
	return WithContext(ctx, l)
}

// FromContext returns the logger embedded in ctx, falling back to the base
// logger when ctx carries none.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		l := Base()
		return &l
	}
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	b := Base()
	return &b
}

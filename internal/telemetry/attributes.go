// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the module.
const (
	// Room attributes
	RoomIDKey     = "room.id"
	RoomStatusKey = "room.status"
	FeatureKey    = "room.feature"

	// Channel attributes
	ChannelKey      = "realtime.channel"
	ChannelStateKey = "realtime.channel_state"

	// Lifecycle attributes
	OperationKey = "lifecycle.operation"
	OutcomeKey   = "lifecycle.outcome"

	// Soak harness attributes
	RunIDKey    = "soak.run_id"
	ProfileKey  = "soak.profile"
	ScenarioKey = "soak.scenario"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
	ErrorCodeKey = "chat.error_code"
)

// OperationAttributes creates span attributes for a room lifecycle operation.
func OperationAttributes(roomID, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RoomIDKey, roomID),
		attribute.String(OperationKey, operation),
	}
}

// ChannelAttributes creates channel-related span attributes.
func ChannelAttributes(feature, channel, state string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if feature != "" {
		attrs = append(attrs, attribute.String(FeatureKey, feature))
	}
	if channel != "" {
		attrs = append(attrs, attribute.String(ChannelKey, channel))
	}
	if state != "" {
		attrs = append(attrs, attribute.String(ChannelStateKey, state))
	}
	return attrs
}

// ScenarioAttributes creates soak-run span attributes.
func ScenarioAttributes(runID, profile, scenario string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RunIDKey, runID),
		attribute.String(ProfileKey, profile),
		attribute.String(ScenarioKey, scenario),
	}
}

// ErrorAttributes creates error-related span attributes. Code carries the
// chat error code when the error maps to one, zero otherwise.
func ErrorAttributes(errorType string, code int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
	if code != 0 {
		attrs = append(attrs, attribute.Int(ErrorCodeKey, code))
	}
	return attrs
}

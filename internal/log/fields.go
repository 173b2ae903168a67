// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRoomID      = "room_id"
	FieldOperationID = "operation_id"
	FieldClientID    = "client_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldOperation = "operation"
	FieldAttempt   = "attempt"
	FieldStream    = "stream"

	// Domain fields
	FieldFeature = "feature"
	FieldChannel = "channel"

	// State fields
	FieldOldStatus    = "old_status"
	FieldNewStatus    = "new_status"
	FieldChannelState = "channel_state"
)

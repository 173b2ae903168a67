// SPDX-License-Identifier: MIT

package chat

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable numeric identifier for a failure category.
type ErrorCode int

const (
	// ErrorCodeBadRequest covers invalid input and options misuse.
	ErrorCodeBadRequest ErrorCode = 40000

	// Attachment failures, one code per feature.
	ErrorCodeMessagesAttachmentFailed  ErrorCode = 102001
	ErrorCodePresenceAttachmentFailed  ErrorCode = 102002
	ErrorCodeReactionsAttachmentFailed ErrorCode = 102003
	ErrorCodeOccupancyAttachmentFailed ErrorCode = 102004
	ErrorCodeTypingAttachmentFailed    ErrorCode = 102005

	// Detachment failures, one code per feature.
	ErrorCodeMessagesDetachmentFailed  ErrorCode = 102050
	ErrorCodePresenceDetachmentFailed  ErrorCode = 102051
	ErrorCodeReactionsDetachmentFailed ErrorCode = 102052
	ErrorCodeOccupancyDetachmentFailed ErrorCode = 102053
	ErrorCodeTypingDetachmentFailed    ErrorCode = 102054

	// Room status preconditions.
	ErrorCodeRoomInFailedState  ErrorCode = 102101
	ErrorCodeRoomIsReleasing    ErrorCode = 102102
	ErrorCodeRoomIsReleased     ErrorCode = 102103
	ErrorCodeRoomInInvalidState ErrorCode = 102107
)

// Sentinel error classes. Use errors.Is against these to branch on failure
// category without inspecting codes.
var (
	ErrBadRequest         = errors.New("bad request")
	ErrRoomInFailedState  = errors.New("room is in a failed state")
	ErrRoomReleasing      = errors.New("room is releasing")
	ErrRoomReleased       = errors.New("room is released")
	ErrRoomInInvalidState = errors.New("room is in an invalid state")
	ErrFeatureAttachment  = errors.New("feature failed to attach")
	ErrFeatureDetachment  = errors.New("feature failed to detach")
	ErrFeatureDisabled    = errors.New("feature is not enabled for this room")
)

// Error is the typed error returned by all room operations.
type Error struct {
	// Code identifies the failure category.
	Code ErrorCode
	// Feature names the contributor involved, when the failure is
	// feature-specific.
	Feature Feature
	// Status is the room status at the time of failure.
	Status RoomStatus

	cause error
}

func (e *Error) Error() string {
	msg := codeMessage(e.Code)
	if e.Feature != "" {
		msg = fmt.Sprintf("%s (feature %s)", msg, e.Feature)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", msg, e.cause.Error())
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	class := errorClass(e.Code)
	return class != nil && target == class
}

func newError(code ErrorCode, feature Feature, status RoomStatus, cause error) *Error {
	return &Error{Code: code, Feature: feature, Status: status, cause: cause}
}

// ErrorFrom extracts the typed Error from err's chain, if present.
func ErrorFrom(err error) (*Error, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}

// CodeOf returns the error code carried by err, or 0 when err carries none.
func CodeOf(err error) ErrorCode {
	if cerr, ok := ErrorFrom(err); ok {
		return cerr.Code
	}
	return 0
}

func errorClass(code ErrorCode) error {
	switch code {
	case ErrorCodeBadRequest:
		return ErrBadRequest
	case ErrorCodeRoomInFailedState:
		return ErrRoomInFailedState
	case ErrorCodeRoomIsReleasing:
		return ErrRoomReleasing
	case ErrorCodeRoomIsReleased:
		return ErrRoomReleased
	case ErrorCodeRoomInInvalidState:
		return ErrRoomInInvalidState
	case ErrorCodeMessagesAttachmentFailed,
		ErrorCodePresenceAttachmentFailed,
		ErrorCodeReactionsAttachmentFailed,
		ErrorCodeOccupancyAttachmentFailed,
		ErrorCodeTypingAttachmentFailed:
		return ErrFeatureAttachment
	case ErrorCodeMessagesDetachmentFailed,
		ErrorCodePresenceDetachmentFailed,
		ErrorCodeReactionsDetachmentFailed,
		ErrorCodeOccupancyDetachmentFailed,
		ErrorCodeTypingDetachmentFailed:
		return ErrFeatureDetachment
	default:
		return nil
	}
}

func codeMessage(code ErrorCode) string {
	switch code {
	case ErrorCodeBadRequest:
		return "bad request"
	case ErrorCodeRoomInFailedState:
		return "cannot perform operation, room is in a failed state"
	case ErrorCodeRoomIsReleasing:
		return "cannot perform operation, room is releasing"
	case ErrorCodeRoomIsReleased:
		return "cannot perform operation, room is released"
	case ErrorCodeRoomInInvalidState:
		return "room is in an invalid state"
	case ErrorCodeMessagesAttachmentFailed,
		ErrorCodePresenceAttachmentFailed,
		ErrorCodeReactionsAttachmentFailed,
		ErrorCodeOccupancyAttachmentFailed,
		ErrorCodeTypingAttachmentFailed:
		return "feature failed to attach"
	case ErrorCodeMessagesDetachmentFailed,
		ErrorCodePresenceDetachmentFailed,
		ErrorCodeReactionsDetachmentFailed,
		ErrorCodeOccupancyDetachmentFailed,
		ErrorCodeTypingDetachmentFailed:
		return "feature failed to detach"
	}
	return fmt.Sprintf("error %d", int(code))
}

// attachmentFailedCode maps a feature to its attachment failure code.
func attachmentFailedCode(f Feature) ErrorCode {
	switch f {
	case FeatureMessages:
		return ErrorCodeMessagesAttachmentFailed
	case FeaturePresence:
		return ErrorCodePresenceAttachmentFailed
	case FeatureReactions:
		return ErrorCodeReactionsAttachmentFailed
	case FeatureOccupancy:
		return ErrorCodeOccupancyAttachmentFailed
	case FeatureTyping:
		return ErrorCodeTypingAttachmentFailed
	}
	return ErrorCodeRoomInInvalidState
}

// detachmentFailedCode maps a feature to its detachment failure code.
func detachmentFailedCode(f Feature) ErrorCode {
	switch f {
	case FeatureMessages:
		return ErrorCodeMessagesDetachmentFailed
	case FeaturePresence:
		return ErrorCodePresenceDetachmentFailed
	case FeatureReactions:
		return ErrorCodeReactionsDetachmentFailed
	case FeatureOccupancy:
		return ErrorCodeOccupancyDetachmentFailed
	case FeatureTyping:
		return ErrorCodeTypingDetachmentFailed
	}
	return ErrorCodeRoomInInvalidState
}

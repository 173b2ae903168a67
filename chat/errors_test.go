// SPDX-License-Identifier: MIT

package chat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ClassMatching(t *testing.T) {
	tests := []struct {
		name  string
		code  ErrorCode
		class error
	}{
		{name: "bad request", code: ErrorCodeBadRequest, class: ErrBadRequest},
		{name: "failed state", code: ErrorCodeRoomInFailedState, class: ErrRoomInFailedState},
		{name: "releasing", code: ErrorCodeRoomIsReleasing, class: ErrRoomReleasing},
		{name: "released", code: ErrorCodeRoomIsReleased, class: ErrRoomReleased},
		{name: "invalid state", code: ErrorCodeRoomInInvalidState, class: ErrRoomInInvalidState},
		{name: "messages attach", code: ErrorCodeMessagesAttachmentFailed, class: ErrFeatureAttachment},
		{name: "typing attach", code: ErrorCodeTypingAttachmentFailed, class: ErrFeatureAttachment},
		{name: "presence detach", code: ErrorCodePresenceDetachmentFailed, class: ErrFeatureDetachment},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := newError(tc.code, "", RoomStatusInitialized, nil)
			assert.ErrorIs(t, err, tc.class)
		})
	}
}

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := newError(ErrorCodeTypingAttachmentFailed, FeatureTyping, RoomStatusSuspended, cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrFeatureAttachment)
	assert.Contains(t, err.Error(), "typing")
	assert.Contains(t, err.Error(), "socket closed")

	cerr, ok := ErrorFrom(err)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeTypingAttachmentFailed, cerr.Code)
	assert.Equal(t, FeatureTyping, cerr.Feature)
	assert.Equal(t, RoomStatusSuspended, cerr.Status)
}

func TestError_FromWrappedChain(t *testing.T) {
	inner := newError(ErrorCodeRoomIsReleased, "", RoomStatusReleased, nil)
	wrapped := fmt.Errorf("get room: %w", inner)

	assert.ErrorIs(t, wrapped, ErrRoomReleased)
	assert.Equal(t, ErrorCodeRoomIsReleased, CodeOf(wrapped))

	_, ok := ErrorFrom(errors.New("plain"))
	assert.False(t, ok)
	assert.Equal(t, ErrorCode(0), CodeOf(errors.New("plain")))
}

func TestError_FeatureCodeMapping(t *testing.T) {
	attach := map[Feature]ErrorCode{
		FeatureMessages:  ErrorCodeMessagesAttachmentFailed,
		FeaturePresence:  ErrorCodePresenceAttachmentFailed,
		FeatureTyping:    ErrorCodeTypingAttachmentFailed,
		FeatureOccupancy: ErrorCodeOccupancyAttachmentFailed,
		FeatureReactions: ErrorCodeReactionsAttachmentFailed,
	}
	for feature, want := range attach {
		assert.Equal(t, want, attachmentFailedCode(feature), "attach %s", feature)
	}

	detach := map[Feature]ErrorCode{
		FeatureMessages:  ErrorCodeMessagesDetachmentFailed,
		FeaturePresence:  ErrorCodePresenceDetachmentFailed,
		FeatureTyping:    ErrorCodeTypingDetachmentFailed,
		FeatureOccupancy: ErrorCodeOccupancyDetachmentFailed,
		FeatureReactions: ErrorCodeReactionsDetachmentFailed,
	}
	for feature, want := range detach {
		assert.Equal(t, want, detachmentFailedCode(feature), "detach %s", feature)
	}
}

func TestError_NeverMatchesNilOrForeign(t *testing.T) {
	err := newError(ErrorCodeRoomInFailedState, "", RoomStatusFailed, nil)
	assert.NotErrorIs(t, err, ErrRoomReleased)
	assert.NotErrorIs(t, err, errors.New("unrelated"))
}

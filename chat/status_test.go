// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStatusTracker_EmitsTransitionsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	tracker := newStatusTracker("general")

	changes := &recorder[StatusChange]{}
	tracker.On(changes.add)

	tracker.Set(RoomStatusAttaching, nil)
	tracker.Set(RoomStatusAttached, nil)
	tracker.Set(RoomStatusDetaching, nil)
	tracker.Set(RoomStatusDetached, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tracker.em.WaitIdle(ctx))

	seq := changes.snapshot()
	require.Len(t, seq, 4)
	assert.Equal(t, []RoomStatus{
		RoomStatusAttaching,
		RoomStatusAttached,
		RoomStatusDetaching,
		RoomStatusDetached,
	}, statusSequence(seq))

	// Previous is threaded through each change.
	assert.Equal(t, RoomStatusInitialized, seq[0].Previous)
	assert.Equal(t, RoomStatusAttaching, seq[1].Previous)
}

func TestStatusTracker_SuppressesNoopTransitions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	tracker := newStatusTracker("general")

	changes := &recorder[StatusChange]{}
	tracker.On(changes.add)

	tracker.Set(RoomStatusAttached, nil)
	tracker.Set(RoomStatusAttached, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tracker.em.WaitIdle(ctx))
	assert.Equal(t, 1, changes.len())

	// Same status with a new error is a real change.
	boom := errors.New("degraded")
	tracker.Set(RoomStatusAttached, boom)
	require.NoError(t, tracker.em.WaitIdle(ctx))
	assert.Equal(t, 2, changes.len())
	assert.ErrorIs(t, tracker.Err(), boom)
}

func TestStatusTracker_OnceFiresOnNextChangeOnly(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	tracker := newStatusTracker("general")

	changes := &recorder[StatusChange]{}
	tracker.Once(changes.add)

	tracker.Set(RoomStatusAttaching, nil)
	tracker.Set(RoomStatusAttached, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tracker.em.WaitIdle(ctx))

	seq := changes.snapshot()
	require.Len(t, seq, 1)
	assert.Equal(t, RoomStatusAttaching, seq[0].Current)
}

func TestRoomStatus_StringNames(t *testing.T) {
	tests := map[RoomStatus]string{
		RoomStatusInitialized: "initialized",
		RoomStatusAttaching:   "attaching",
		RoomStatusAttached:    "attached",
		RoomStatusDetaching:   "detaching",
		RoomStatusDetached:    "detached",
		RoomStatusSuspended:   "suspended",
		RoomStatusFailed:      "failed",
		RoomStatusReleasing:   "releasing",
		RoomStatusReleased:    "released",
	}
	for status, want := range tests {
		assert.Equal(t, want, status.String())
	}
	assert.Equal(t, "unknown", RoomStatus(99).String())
}

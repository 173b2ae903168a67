// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roomkit/roomkit/realtime"
	"github.com/roomkit/roomkit/realtime/realtimetest"
)

func TestMessages_SendAndSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client := realtimetest.NewClient()
	room := newTestRoom(t, client, "general")
	defer releaseRoom(t, room)

	ctx := context.Background()
	require.NoError(t, room.Attach(ctx))

	received := &recorder[Message]{}
	room.Messages().Subscribe(received.add)

	require.NoError(t, room.Messages().Send(ctx, "hello there"))
	require.NoError(t, room.messages.em.WaitIdle(ctx))

	msgs := received.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Text)
	assert.Equal(t, client.ClientID(), msgs[0].ClientID)
	assert.False(t, msgs[0].Timestamp.IsZero())

	published := client.Lookup("general::messages").Publishes()
	require.Len(t, published, 1)
	assert.Equal(t, eventChatMessage, published[0].Event)
	assert.Equal(t, []byte("hello there"), published[0].Data)
}

func TestMessages_RejectsEmptyText(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client := realtimetest.NewClient()
	room := newTestRoom(t, client, "general")
	defer releaseRoom(t, room)

	err := room.Messages().Send(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, ErrorCodeBadRequest, CodeOf(err))
	assert.Empty(t, client.Lookup("general::messages").Publishes())
}

func TestTyping_HeartbeatThrottle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client := realtimetest.NewClient()
	opts := fullOptions()
	opts.Typing.HeartbeatThrottle = 50 * time.Millisecond
	room := newRoom(client, "general", opts.normalized())
	defer releaseRoom(t, room)

	ctx := context.Background()
	require.NoError(t, room.Attach(ctx))

	events := &recorder[TypingEvent]{}
	room.Typing().Subscribe(events.add)

	typingCh := client.Lookup("general::typing")

	// Three rapid starts collapse into a single heartbeat.
	require.NoError(t, room.Typing().Start(ctx))
	require.NoError(t, room.Typing().Start(ctx))
	require.NoError(t, room.Typing().Start(ctx))
	require.Len(t, typingCh.Publishes(), 1)

	// Stop publishes and re-arms, so the next start goes out immediately.
	require.NoError(t, room.Typing().Stop(ctx))
	require.NoError(t, room.Typing().Start(ctx))

	published := typingCh.Publishes()
	require.Len(t, published, 3)
	assert.Equal(t, eventTypingStarted, published[0].Event)
	assert.Equal(t, eventTypingStopped, published[1].Event)
	assert.Equal(t, eventTypingStarted, published[2].Event)

	require.NoError(t, room.typing.em.WaitIdle(ctx))
	seen := events.snapshot()
	require.Len(t, seen, 3)
	assert.True(t, seen[0].Typing)
	assert.False(t, seen[1].Typing)
	assert.True(t, seen[2].Typing)
	assert.Equal(t, client.ClientID(), seen[0].ClientID)
}

func TestTyping_WindowExpiryAllowsNextHeartbeat(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client := realtimetest.NewClient()
	opts := fullOptions()
	opts.Typing.HeartbeatThrottle = 20 * time.Millisecond
	room := newRoom(client, "general", opts.normalized())
	defer releaseRoom(t, room)

	ctx := context.Background()
	require.NoError(t, room.Attach(ctx))

	require.NoError(t, room.Typing().Start(ctx))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, room.Typing().Start(ctx))

	assert.Len(t, client.Lookup("general::typing").Publishes(), 2)
}

func TestPresence_EnterGetSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client := realtimetest.NewClient()
	room := newTestRoom(t, client, "general")
	defer releaseRoom(t, room)

	ctx := context.Background()
	require.NoError(t, room.Attach(ctx))

	events := &recorder[realtime.PresenceEvent]{}
	room.Presence().Subscribe(events.add)

	require.NoError(t, room.Presence().Enter(ctx, []byte(`{"mood":"curious"}`)))

	members, err := room.Presence().Get(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, client.ClientID(), members[0].ClientID)
	assert.Equal(t, realtime.PresencePresent, members[0].Action)

	// Another participant joins via the transport.
	client.Lookup("general::presence").PushPresence(realtime.PresenceEvent{
		Action:   realtime.PresenceEnter,
		ClientID: "visitor",
	})
	members, err = room.Presence().Get(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, room.Presence().Leave(ctx, nil))
	members, err = room.Presence().Get(ctx)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "visitor", members[0].ClientID)

	require.NoError(t, room.presence.em.WaitIdle(ctx))
	seen := events.snapshot()
	require.Len(t, seen, 3)
	assert.Equal(t, realtime.PresenceEnter, seen[0].Action)
	assert.Equal(t, realtime.PresenceEnter, seen[1].Action)
	assert.Equal(t, realtime.PresenceLeave, seen[2].Action)
}

func TestOccupancy_TracksUpdates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client := realtimetest.NewClient()
	room := newTestRoom(t, client, "general")
	defer releaseRoom(t, room)

	ctx := context.Background()
	require.NoError(t, room.Attach(ctx))

	_, ok := room.Occupancy().Current()
	assert.False(t, ok, "no snapshot before the first update")

	events := &recorder[OccupancyEvent]{}
	room.Occupancy().Subscribe(events.add)

	occupancyCh := client.Lookup("general::occupancy")
	occupancyCh.PushMessage(realtime.Message{
		Name: eventOccupancyUpdate,
		Data: []byte(`{"connections":7,"presenceMembers":3}`),
	})
	// Malformed payloads are dropped, not fatal.
	occupancyCh.PushMessage(realtime.Message{
		Name: eventOccupancyUpdate,
		Data: []byte(`{"connections":`),
	})

	require.NoError(t, room.occupancy.em.WaitIdle(ctx))
	seen := events.snapshot()
	require.Len(t, seen, 1)
	assert.Equal(t, OccupancyEvent{Connections: 7, PresenceMembers: 3}, seen[0])

	current, ok := room.Occupancy().Current()
	require.True(t, ok)
	assert.Equal(t, OccupancyEvent{Connections: 7, PresenceMembers: 3}, current)
}

func TestReactions_SendAndSubscribe(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client := realtimetest.NewClient()
	room := newTestRoom(t, client, "general")
	defer releaseRoom(t, room)

	ctx := context.Background()
	require.NoError(t, room.Attach(ctx))

	events := &recorder[Reaction]{}
	room.Reactions().Subscribe(events.add)

	require.NoError(t, room.Reactions().Send(ctx, "celebrate"))
	require.NoError(t, room.reactions.em.WaitIdle(ctx))

	seen := events.snapshot()
	require.Len(t, seen, 1)
	assert.Equal(t, "celebrate", seen[0].Name)
	assert.Equal(t, client.ClientID(), seen[0].ClientID)

	err := room.Reactions().Send(ctx, "")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestRoom_DisabledFeatureStubs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	client := realtimetest.NewClient()
	opts := RoomOptions{Lifecycle: fastLifecycle()}
	room := newRoom(client, "lean", opts.normalized())
	defer releaseRoom(t, room)

	ctx := context.Background()
	require.NoError(t, room.Attach(ctx))

	// Only the messages channel exists.
	assert.Equal(t, []string{"attach lean::messages"}, client.OperationLog())

	require.NotNil(t, room.Presence())
	require.NotNil(t, room.Typing())
	require.NotNil(t, room.Occupancy())
	require.NotNil(t, room.Reactions())

	for name, err := range map[string]error{
		"presence enter": room.Presence().Enter(ctx, nil),
		"presence leave": room.Presence().Leave(ctx, nil),
		"typing start":   room.Typing().Start(ctx),
		"typing stop":    room.Typing().Stop(ctx),
		"reactions send": room.Reactions().Send(ctx, "wave"),
	} {
		assert.ErrorIs(t, err, ErrFeatureDisabled, name)
		assert.ErrorIs(t, err, ErrBadRequest, name)
	}

	_, err := room.Presence().Get(ctx)
	assert.ErrorIs(t, err, ErrFeatureDisabled)

	_, ok := room.Occupancy().Current()
	assert.False(t, ok)

	// Subscriptions on disabled features are inert but safe.
	sub := room.Typing().Subscribe(func(TypingEvent) {})
	sub.Unsubscribe()
}

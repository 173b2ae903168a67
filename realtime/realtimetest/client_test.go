// SPDX-License-Identifier: MIT

package realtimetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomkit/roomkit/realtime"
)

func TestChannel_AttachLifecycle(t *testing.T) {
	client := NewClient()
	ch := client.Lookup("room::messages")

	var seen []realtime.ChannelState
	ch.OnStateChange(func(change realtime.StateChange) {
		seen = append(seen, change.Current)
	})

	require.NoError(t, ch.Attach(context.Background()))
	assert.Equal(t, realtime.ChannelStateAttached, ch.State())
	assert.Equal(t, []realtime.ChannelState{
		realtime.ChannelStateAttaching,
		realtime.ChannelStateAttached,
	}, seen)
	assert.Equal(t, 1, ch.AttachCalls())

	// Attach on an attached channel is a silent no-op.
	require.NoError(t, ch.Attach(context.Background()))
	assert.Equal(t, 2, ch.AttachCalls())
	assert.Len(t, seen, 2)

	require.NoError(t, ch.Detach(context.Background()))
	assert.Equal(t, realtime.ChannelStateDetached, ch.State())
}

func TestChannel_ScriptedFailures(t *testing.T) {
	client := NewClient()
	ch := client.Lookup("room::presence")

	transient := errors.New("transport hiccup")
	terminal := errors.New("channel denied")
	ch.ScriptAttach(Transient(transient), Terminal(terminal), OK())

	err := ch.Attach(context.Background())
	assert.ErrorIs(t, err, transient)
	assert.Equal(t, realtime.ChannelStateSuspended, ch.State())
	assert.ErrorIs(t, ch.ErrorReason(), transient)

	err = ch.Attach(context.Background())
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, realtime.ChannelStateFailed, ch.State())

	require.NoError(t, ch.Attach(context.Background()))
	assert.Equal(t, realtime.ChannelStateAttached, ch.State())
}

func TestChannel_PublishEchoesToSubscribers(t *testing.T) {
	client := NewClientWithID("alice")
	ch := client.Lookup("room::messages")

	var got []realtime.Message
	sub := ch.Subscribe("chat.message", func(m realtime.Message) {
		got = append(got, m)
	})

	require.NoError(t, ch.Publish(context.Background(), "chat.message", []byte("hi")))
	require.NoError(t, ch.Publish(context.Background(), "typing.started", nil))

	require.Len(t, got, 1, "only matching event names are delivered")
	assert.Equal(t, "alice", got[0].ClientID)
	assert.Equal(t, []byte("hi"), got[0].Data)
	assert.Len(t, ch.Publishes(), 2)

	sub.Unsubscribe()
	require.NoError(t, ch.Publish(context.Background(), "chat.message", []byte("again")))
	assert.Len(t, got, 1)
}

func TestChannel_PresenceSet(t *testing.T) {
	client := NewClientWithID("bob")
	ch := client.Lookup("room::presence")

	var events []realtime.PresenceEvent
	ch.Presence().Subscribe(func(ev realtime.PresenceEvent) {
		events = append(events, ev)
	})

	require.NoError(t, ch.Presence().Enter(context.Background(), []byte(`{"mood":"ok"}`)))
	ch.PushPresence(realtime.PresenceEvent{Action: realtime.PresenceEnter, ClientID: "carol"})

	members, err := ch.Presence().Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, members, 2)

	require.NoError(t, ch.Presence().Leave(context.Background(), nil))
	members, err = ch.Presence().Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, members, 1)

	require.Len(t, events, 3)
	assert.Equal(t, realtime.PresenceEnter, events[0].Action)
	assert.Equal(t, realtime.PresenceLeave, events[2].Action)
}

func TestClient_TracksOperationConcurrency(t *testing.T) {
	client := NewClient()
	a := client.Lookup("room::messages")
	b := client.Lookup("room::typing")

	require.NoError(t, a.Attach(context.Background()))
	require.NoError(t, b.Attach(context.Background()))
	require.NoError(t, a.Detach(context.Background()))

	assert.Equal(t, 1, client.MaxConcurrentOps())
	assert.Equal(t, []string{
		"attach room::messages",
		"attach room::typing",
		"detach room::messages",
	}, client.OperationLog())
}

func TestClient_ReleaseDropsHandle(t *testing.T) {
	client := NewClient()
	first := client.Lookup("room::messages")
	client.Release("room::messages")
	second := client.Lookup("room::messages")

	assert.NotSame(t, first, second)
	assert.Equal(t, []string{"room::messages"}, client.ReleasedNames())
}

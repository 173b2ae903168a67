// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/roomkit/roomkit/internal/emitter"
	"github.com/roomkit/roomkit/realtime"
)

const eventChatMessage = "chat.message"

// Message is a chat message observed on a room.
type Message struct {
	Text      string
	ClientID  string
	Timestamp time.Time
}

// Messages sends and receives chat messages on a room. It is always enabled.
type Messages struct {
	channel realtime.Channel
	em      *emitter.Emitter[Message]
	sub     realtime.Subscription
}

func newMessages(channel realtime.Channel) *Messages {
	m := &Messages{
		channel: channel,
		em:      emitter.New[Message](string(FeatureMessages)),
	}
	m.sub = channel.Subscribe(eventChatMessage, func(msg realtime.Message) {
		m.em.Emit(Message{
			Text:      string(msg.Data),
			ClientID:  msg.ClientID,
			Timestamp: msg.Timestamp,
		})
	})
	return m
}

// Send publishes text to the room's message channel.
func (m *Messages) Send(ctx context.Context, text string) error {
	if text == "" {
		return newError(ErrorCodeBadRequest, FeatureMessages, RoomStatusInitialized,
			errors.New("message text must not be empty"))
	}
	return m.channel.Publish(ctx, eventChatMessage, []byte(text))
}

// Subscribe registers fn for every message on the room. Listeners observe
// messages in publish order; a panicking listener skips only its own
// delivery.
func (m *Messages) Subscribe(fn func(Message)) Subscription {
	return emitterSubscription[Message]{sub: m.em.On(fn)}
}

func (m *Messages) close() {
	if m.sub != nil {
		m.sub.Unsubscribe()
	}
}

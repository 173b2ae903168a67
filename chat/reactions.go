// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"errors"
	"time"

	"github.com/roomkit/roomkit/internal/emitter"
	"github.com/roomkit/roomkit/realtime"
)

const eventRoomReaction = "roomReaction"

// Reaction is an ephemeral room-level reaction.
type Reaction struct {
	Name      string
	ClientID  string
	Timestamp time.Time
}

// Reactions sends and receives room-level reactions.
type Reactions struct {
	channel realtime.Channel
	em      *emitter.Emitter[Reaction]
	sub     realtime.Subscription
	err     error
}

func newReactions(channel realtime.Channel) *Reactions {
	r := &Reactions{
		channel: channel,
		em:      emitter.New[Reaction](string(FeatureReactions)),
	}
	r.sub = channel.Subscribe(eventRoomReaction, func(msg realtime.Message) {
		r.em.Emit(Reaction{
			Name:      string(msg.Data),
			ClientID:  msg.ClientID,
			Timestamp: msg.Timestamp,
		})
	})
	return r
}

func newDisabledReactions() *Reactions {
	return &Reactions{
		em:  emitter.New[Reaction](string(FeatureReactions)),
		err: disabledFeatureError(FeatureReactions),
	}
}

// Send publishes a named reaction to the room.
func (r *Reactions) Send(ctx context.Context, name string) error {
	if r.err != nil {
		return r.err
	}
	if name == "" {
		return newError(ErrorCodeBadRequest, FeatureReactions, RoomStatusInitialized,
			errors.New("reaction name must not be empty"))
	}
	return r.channel.Publish(ctx, eventRoomReaction, []byte(name))
}

// Subscribe registers fn for reactions from all clients.
func (r *Reactions) Subscribe(fn func(Reaction)) Subscription {
	return emitterSubscription[Reaction]{sub: r.em.On(fn)}
}

func (r *Reactions) close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
}

// SPDX-License-Identifier: MIT

package chat

import (
	"context"

	"github.com/roomkit/roomkit/internal/emitter"
	"github.com/roomkit/roomkit/realtime"
)

// Presence exposes the room's presence set when the feature is enabled.
// On a room built without presence every method fails with a bad-request
// error wrapping ErrFeatureDisabled.
type Presence struct {
	presence realtime.Presence
	em       *emitter.Emitter[realtime.PresenceEvent]
	sub      realtime.Subscription
	err      error
}

func newPresence(channel realtime.Channel) *Presence {
	p := &Presence{
		presence: channel.Presence(),
		em:       emitter.New[realtime.PresenceEvent](string(FeaturePresence)),
	}
	p.sub = p.presence.Subscribe(func(ev realtime.PresenceEvent) {
		p.em.Emit(ev)
	})
	return p
}

func newDisabledPresence() *Presence {
	return &Presence{
		em:  emitter.New[realtime.PresenceEvent](string(FeaturePresence)),
		err: disabledFeatureError(FeaturePresence),
	}
}

// Enter adds the local client to the presence set.
func (p *Presence) Enter(ctx context.Context, data []byte) error {
	if p.err != nil {
		return p.err
	}
	return p.presence.Enter(ctx, data)
}

// Leave removes the local client from the presence set.
func (p *Presence) Leave(ctx context.Context, data []byte) error {
	if p.err != nil {
		return p.err
	}
	return p.presence.Leave(ctx, data)
}

// Get returns the current presence set.
func (p *Presence) Get(ctx context.Context) ([]realtime.PresenceEvent, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.presence.Get(ctx)
}

// Subscribe registers fn for presence set mutations.
func (p *Presence) Subscribe(fn func(realtime.PresenceEvent)) Subscription {
	return emitterSubscription[realtime.PresenceEvent]{sub: p.em.On(fn)}
}

func (p *Presence) close() {
	if p.sub != nil {
		p.sub.Unsubscribe()
	}
}

func disabledFeatureError(f Feature) error {
	return newError(ErrorCodeBadRequest, f, RoomStatusInitialized, ErrFeatureDisabled)
}

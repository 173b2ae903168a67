// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roomkit/roomkit/internal/emitter"
	"github.com/roomkit/roomkit/realtime"
)

const (
	eventTypingStarted = "typing.started"
	eventTypingStopped = "typing.stopped"
)

// TypingEvent reports one client starting or stopping typing.
type TypingEvent struct {
	ClientID string
	Typing   bool
}

// Typing publishes typing heartbeats for the local client and fans out the
// typing signals of others. Start calls inside the heartbeat throttle window
// are absorbed without hitting the transport.
type Typing struct {
	channel  realtime.Channel
	throttle time.Duration
	em       *emitter.Emitter[TypingEvent]
	subs     []realtime.Subscription
	err      error

	mu      sync.Mutex
	limiter *rate.Limiter
}

func newTyping(channel realtime.Channel, opts TypingOptions) *Typing {
	t := &Typing{
		channel:  channel,
		throttle: opts.HeartbeatThrottle,
		em:       emitter.New[TypingEvent](string(FeatureTyping)),
		limiter:  rate.NewLimiter(rate.Every(opts.HeartbeatThrottle), 1),
	}
	t.subs = append(t.subs,
		channel.Subscribe(eventTypingStarted, func(msg realtime.Message) {
			t.em.Emit(TypingEvent{ClientID: msg.ClientID, Typing: true})
		}),
		channel.Subscribe(eventTypingStopped, func(msg realtime.Message) {
			t.em.Emit(TypingEvent{ClientID: msg.ClientID, Typing: false})
		}),
	)
	return t
}

func newDisabledTyping() *Typing {
	return &Typing{
		em:  emitter.New[TypingEvent](string(FeatureTyping)),
		err: disabledFeatureError(FeatureTyping),
	}
}

// Start signals that the local client is typing. At most one heartbeat per
// throttle window reaches the channel; a failed publish re-arms the window
// so the next call retries immediately.
func (t *Typing) Start(ctx context.Context) error {
	if t.err != nil {
		return t.err
	}
	if !t.allow() {
		return nil
	}
	if err := t.channel.Publish(ctx, eventTypingStarted, nil); err != nil {
		t.rearm()
		return err
	}
	return nil
}

// Stop signals that the local client stopped typing and re-arms the
// heartbeat window.
func (t *Typing) Stop(ctx context.Context) error {
	if t.err != nil {
		return t.err
	}
	if err := t.channel.Publish(ctx, eventTypingStopped, nil); err != nil {
		return err
	}
	t.rearm()
	return nil
}

// Subscribe registers fn for typing signals from all clients, the local one
// included.
func (t *Typing) Subscribe(fn func(TypingEvent)) Subscription {
	return emitterSubscription[TypingEvent]{sub: t.em.On(fn)}
}

func (t *Typing) allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limiter.Allow()
}

// rearm replaces the limiter with a full one so the next Start publishes.
func (t *Typing) rearm() {
	t.mu.Lock()
	t.limiter = rate.NewLimiter(rate.Every(t.throttle), 1)
	t.mu.Unlock()
}

func (t *Typing) close() {
	for _, sub := range t.subs {
		sub.Unsubscribe()
	}
}

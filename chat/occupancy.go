// SPDX-License-Identifier: MIT

package chat

import (
	"encoding/json"
	"sync"

	"github.com/roomkit/roomkit/internal/emitter"
	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/realtime"
)

const eventOccupancyUpdate = "occupancy.update"

// OccupancyEvent is a point-in-time occupancy snapshot for a room.
type OccupancyEvent struct {
	Connections     int `json:"connections"`
	PresenceMembers int `json:"presenceMembers"`
}

// Occupancy tracks the room's occupancy snapshots pushed by the transport.
// A disabled instance never sees updates: Current stays empty and
// subscriptions stay silent.
type Occupancy struct {
	channel realtime.Channel
	em      *emitter.Emitter[OccupancyEvent]
	sub     realtime.Subscription

	mu   sync.Mutex
	last OccupancyEvent
	seen bool
}

func newOccupancy(channel realtime.Channel) *Occupancy {
	o := &Occupancy{
		channel: channel,
		em:      emitter.New[OccupancyEvent](string(FeatureOccupancy)),
	}
	o.sub = channel.Subscribe(eventOccupancyUpdate, func(msg realtime.Message) {
		var ev OccupancyEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			logger := log.WithComponent("occupancy")
			logger.Warn().Err(err).
				Str(log.FieldChannel, channel.Name()).
				Msg("dropping malformed occupancy update")
			return
		}
		o.mu.Lock()
		o.last = ev
		o.seen = true
		o.mu.Unlock()
		o.em.Emit(ev)
	})
	return o
}

func newDisabledOccupancy() *Occupancy {
	return &Occupancy{em: emitter.New[OccupancyEvent](string(FeatureOccupancy))}
}

// Current returns the most recent occupancy snapshot. ok is false until the
// first update arrives or when the feature is disabled.
func (o *Occupancy) Current() (OccupancyEvent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last, o.seen
}

// Subscribe registers fn for occupancy updates.
func (o *Occupancy) Subscribe(fn func(OccupancyEvent)) Subscription {
	return emitterSubscription[OccupancyEvent]{sub: o.em.On(fn)}
}

func (o *Occupancy) close() {
	if o.sub != nil {
		o.sub.Unsubscribe()
	}
}

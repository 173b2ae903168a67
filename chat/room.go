// SPDX-License-Identifier: MIT

package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/roomkit/roomkit/internal/emitter"
	"github.com/roomkit/roomkit/internal/log"
	"github.com/roomkit/roomkit/realtime"
)

// Discontinuity reports a continuity break on one feature channel: the
// transport reattached without resuming, so events may have been missed.
type Discontinuity struct {
	Feature Feature
	Reason  error
}

// Room is a single chat room: one lifecycle spanning one channel per enabled
// feature. Rooms come from Rooms.Get and die with Release.
type Room struct {
	id      string
	options RoomOptions

	client  realtime.Client
	tracker *statusTracker
	coord   *lifecycleCoordinator
	discEm  *emitter.Emitter[Discontinuity]

	messages  *Messages
	presence  *Presence
	typing    *Typing
	occupancy *Occupancy
	reactions *Reactions

	channelNames []string
	disposeOnce  sync.Once

	logger zerolog.Logger
}

func newRoom(client realtime.Client, id string, opts RoomOptions) *Room {
	r := &Room{
		id:      id,
		options: opts,
		client:  client,
		tracker: newStatusTracker(id),
		discEm:  emitter.New[Discontinuity]("discontinuity"),
		logger: log.WithComponent("room").With().
			Str(log.FieldRoomID, id).Logger(),
	}

	var contributors []*contributor
	for _, f := range opts.enabledFeatures() {
		f := f
		name := channelName(id, f)
		ch := client.Channel(name)
		r.channelNames = append(r.channelNames, name)
		contributors = append(contributors, &contributor{
			feature: f,
			channel: ch,
			discontinuity: func(reason error) {
				r.discEm.Emit(Discontinuity{Feature: f, Reason: reason})
			},
		})

		switch f {
		case FeatureMessages:
			r.messages = newMessages(ch)
		case FeaturePresence:
			r.presence = newPresence(ch)
		case FeatureTyping:
			r.typing = newTyping(ch, opts.Typing)
		case FeatureOccupancy:
			r.occupancy = newOccupancy(ch)
		case FeatureReactions:
			r.reactions = newReactions(ch)
		}
	}
	if r.presence == nil {
		r.presence = newDisabledPresence()
	}
	if r.typing == nil {
		r.typing = newDisabledTyping()
	}
	if r.occupancy == nil {
		r.occupancy = newDisabledOccupancy()
	}
	if r.reactions == nil {
		r.reactions = newDisabledReactions()
	}

	r.coord = newLifecycleCoordinator(id, contributors, opts.Lifecycle, r.tracker)
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Options returns the effective options the room was built with.
func (r *Room) Options() RoomOptions { return r.options }

// Attach brings every enabled feature channel up, in a fixed order. Callers
// racing Attach share the same serialized operation queue; ctx bounds only
// this caller's wait.
func (r *Room) Attach(ctx context.Context) error { return r.coord.Attach(ctx) }

// Detach winds every feature channel down in reverse order.
func (r *Room) Detach(ctx context.Context) error { return r.coord.Detach(ctx) }

// Release permanently disposes of the room. It never fails on the room's
// account; a non-nil return means ctx expired while the release was still
// running in the background.
func (r *Room) Release(ctx context.Context) error {
	if err := r.coord.Release(ctx); err != nil {
		return err
	}
	r.disposeOnce.Do(r.dispose)
	return nil
}

// Status returns the room's current lifecycle status.
func (r *Room) Status() RoomStatus { return r.tracker.Current() }

// ErrorReason returns the error that put the room into its current status,
// or nil.
func (r *Room) ErrorReason() error { return r.tracker.Err() }

// OnStatusChange registers fn for every status transition. Listeners observe
// transitions in the order they happened.
func (r *Room) OnStatusChange(fn func(StatusChange)) Subscription {
	return emitterSubscription[StatusChange]{sub: r.tracker.On(fn)}
}

// OnStatusChangeOnce registers fn for the next status transition only.
func (r *Room) OnStatusChangeOnce(fn func(StatusChange)) Subscription {
	return emitterSubscription[StatusChange]{sub: r.tracker.Once(fn)}
}

// OnDiscontinuity registers fn for continuity breaks on any enabled feature.
// During a lifecycle operation breaks are buffered and delivered once the
// room settles; at most one per feature survives the buffering.
func (r *Room) OnDiscontinuity(fn func(Discontinuity)) Subscription {
	return emitterSubscription[Discontinuity]{sub: r.discEm.On(fn)}
}

// Messages is always enabled.
func (r *Room) Messages() *Messages { return r.messages }

// Presence returns the presence feature; disabled rooms get a stub whose
// methods fail with ErrFeatureDisabled.
func (r *Room) Presence() *Presence { return r.presence }

// Typing returns the typing feature, or its disabled stub.
func (r *Room) Typing() *Typing { return r.typing }

// Occupancy returns the occupancy feature, or its disabled stub.
func (r *Room) Occupancy() *Occupancy { return r.occupancy }

// Reactions returns the reactions feature, or its disabled stub.
func (r *Room) Reactions() *Reactions { return r.reactions }

// dispose drops the feature channel subscriptions and returns the channel
// handles to the transport. Runs once, after the lifecycle reached Released.
func (r *Room) dispose() {
	r.messages.close()
	r.presence.close()
	r.typing.close()
	r.occupancy.close()
	r.reactions.close()
	for _, name := range r.channelNames {
		r.client.Release(name)
	}
	r.logger.Debug().Msg("room disposed")
}
